package dispatch

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/discovery"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/parsing"
	"github.com/jonathan/offer-ingest/internal/types"
)

// Route binds a source to its detail fetcher, parser and key derivation.
type Route struct {
	Fetch        fetch.Fetcher
	Parse        parsing.Parser
	ExternalID   func(rawURL string) string
	Canonicalize discovery.Canonicalizer
}

// Registry maps each source to its route.
type Registry struct {
	routes map[types.Source]Route
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[types.Source]Route)}
}

// Register sets the route for source.
func (r *Registry) Register(source types.Source, route Route) {
	r.routes[source] = route
}

// Route returns the route for source.
func (r *Registry) Route(source types.Source) (Route, error) {
	route, ok := r.routes[source]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	return route, nil
}

// Sources lists the registered sources in stable order.
func (r *Registry) Sources() []types.Source {
	var out []types.Source
	for _, s := range types.AllSources() {
		if _, ok := r.routes[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ExternalID derives the offer key from rawURL, or "" when source is not registered.
func (r *Registry) ExternalID(source types.Source, rawURL string) string {
	route, ok := r.routes[source]
	if !ok || route.ExternalID == nil {
		return ""
	}
	if route.Canonicalize != nil {
		if canonical, ok := route.Canonicalize(rawURL); ok {
			rawURL = canonical
		}
	}
	return route.ExternalID(rawURL)
}

// CanonicalURL returns the stored form of rawURL, or rawURL itself when it does not
// canonicalise.
func (r *Registry) CanonicalURL(source types.Source, rawURL string) string {
	route, ok := r.routes[source]
	if !ok || route.Canonicalize == nil {
		return rawURL
	}
	if canonical, ok := route.Canonicalize(rawURL); ok {
		return canonical
	}
	return rawURL
}

// Deps are the shared resources routes are built from.
type Deps struct {
	Client   *fetch.Client
	Limiters *fetch.Limiters
	// Renderer is required by browser-rendered sources; they are skipped when nil.
	Renderer fetch.Renderer
	Logger   *zap.Logger
}

// ParserFor returns the document parser of source.
func ParserFor(source types.Source) (parsing.Parser, bool) {
	switch source {
	case types.SourceJustJoin:
		return parsing.ParseJustJoin, true
	case types.SourceNoFluff:
		return parsing.ParseNoFluff, true
	case types.SourcePracuj:
		return parsing.ParsePracuj, true
	case types.SourceTheProtocol:
		return parsing.ParseTheProtocol, true
	}
	return nil, false
}

// UsesBrowser reports whether detail pages of source are rendered in the browser.
func UsesBrowser(source types.Source) bool {
	return source == types.SourcePracuj
}

// BuildRegistry registers a route for every configured source.
func BuildRegistry(cfg *config.Config, deps Deps) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := NewRegistry()
	for _, source := range types.AllSources() {
		sc := cfg.Source(source)
		if UsesBrowser(source) && deps.Renderer == nil {
			logger.Warn("no browser available, source not routed", zap.String("source", string(source)))
			continue
		}
		route, err := buildRoute(source, sc, deps)
		if err != nil {
			return nil, err
		}
		registry.Register(source, route)
	}
	return registry, nil
}

func buildRoute(source types.Source, sc config.SourceConfig, deps Deps) (Route, error) {
	rules, err := discovery.RulesFor(source, sc)
	if err != nil {
		return Route{}, err
	}
	limiter := fetch.LimiterName(source, fetch.KindDetail)
	parse, ok := ParserFor(source)
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}

	switch source {
	case types.SourceJustJoin:
		return Route{
			Fetch: &fetch.APIFetcher{
				Client:   deps.Client,
				Limiters: deps.Limiters,
				Limiter:  limiter,
				Endpoint: sc.DetailURL,
				IDFunc:   parsing.SlugID,
				Method:   http.MethodGet,
				Headers:  sc.Headers,
			},
			Parse:        parse,
			ExternalID:   parsing.SlugID,
			Canonicalize: rules.Canonicalize,
		}, nil
	case types.SourceNoFluff:
		return Route{
			Fetch: &fetch.APIFetcher{
				Client:   deps.Client,
				Limiters: deps.Limiters,
				Limiter:  limiter,
				Endpoint: sc.DetailURL,
				IDFunc:   parsing.SlugID,
				Method:   http.MethodGet,
				Headers:  sc.Headers,
			},
			Parse:        parse,
			ExternalID:   parsing.SlugID,
			Canonicalize: rules.Canonicalize,
		}, nil
	case types.SourcePracuj:
		return Route{
			Fetch: &fetch.RenderFetcher{
				Renderer:    deps.Renderer,
				Limiters:    deps.Limiters,
				Limiter:     limiter,
				Marker:      parsing.HydrationSelector,
				WaitTimeout: sc.WaitTimeout,
				Label:       string(source),
			},
			Parse:        parse,
			ExternalID:   parsing.OfertaID,
			Canonicalize: rules.Canonicalize,
		}, nil
	case types.SourceTheProtocol:
		return Route{
			Fetch:        fetch.NewPageFetcher(deps.Client, deps.Limiters, limiter, sc.BaseURL),
			Parse:        parse,
			ExternalID:   parsing.OfertaID,
			Canonicalize: rules.Canonicalize,
		}, nil
	}
	return Route{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
}
