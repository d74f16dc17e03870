package discovery

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/types"
)

// ErrBrowserRequired is returned when a browser-based strategy is built without a renderer.
var ErrBrowserRequired = errors.New("discovery strategy requires a browser")

// Deps are the shared resources discoverers are built from.
type Deps struct {
	Client   *fetch.Client
	Limiters *fetch.Limiters
	Renderer fetch.Renderer
	Dumper   *fetch.DebugDumper
	Logger   *zap.Logger
}

var pathRewrites = map[types.Source][]PathRewrite{
	types.SourcePracuj: {{From: "/pl/praca/", To: "/praca/"}},
}

// RulesFor derives the canonicalisation rules of a source from its settings.
func RulesFor(source types.Source, sc config.SourceConfig) (CanonicalRules, error) {
	base, err := url.Parse(sc.BaseURL)
	if err != nil || base.Host == "" {
		return CanonicalRules{}, fmt.Errorf("%s: invalid base URL %q", source, sc.BaseURL)
	}
	host := strings.ToLower(base.Host)
	alias := "www." + host
	if strings.HasPrefix(host, "www.") {
		alias = strings.TrimPrefix(host, "www.")
	}

	pattern := sc.OfferPattern
	if pattern == "" {
		pattern = "^" + regexp.QuoteMeta("https://"+host+strings.TrimRight(base.Path, "/")+"/") + `[^/?#]+$`
	}
	offerPattern, err := regexp.Compile(pattern)
	if err != nil {
		return CanonicalRules{}, fmt.Errorf("%s: invalid offer pattern: %w", source, err)
	}

	return CanonicalRules{
		Host:         host,
		HostAliases:  []string{alias},
		PathRewrites: pathRewrites[source],
		DropQuery:    true,
		OfferPattern: offerPattern,
	}, nil
}

// New builds the discovery strategy bound to source.
func New(source types.Source, sc config.SourceConfig, deps Deps) (Discoverer, error) {
	rules, err := RulesFor(source, sc)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", string(source)))
	limiter := fetch.LimiterName(source, fetch.KindDiscovery)

	switch source {
	case types.SourceJustJoin:
		return &SearchDiscoverer{
			Pages: &JustJoinPages{
				Client:    deps.Client,
				SearchURL: sc.SearchURL,
				OfferBase: sc.BaseURL,
				PageSize:  sc.PageSize,
				Headers:   sc.Headers,
			},
			Limiters:     deps.Limiters,
			Limiter:      limiter,
			MaxPages:     sc.MaxPages,
			Canonicalize: rules.Canonicalize,
			Logger:       logger,
		}, nil
	case types.SourceNoFluff:
		return &SearchDiscoverer{
			Pages: &NoFluffPages{
				Client:    deps.Client,
				SearchURL: sc.SearchURL,
				OfferBase: sc.BaseURL,
				PageSize:  sc.PageSize,
				Headers:   sc.Headers,
			},
			Limiters:     deps.Limiters,
			Limiter:      limiter,
			MaxPages:     sc.MaxPages,
			Canonicalize: rules.Canonicalize,
			Logger:       logger,
		}, nil
	case types.SourcePracuj:
		return &SitemapDiscoverer{
			Client:       deps.Client,
			Limiters:     deps.Limiters,
			Limiter:      limiter,
			RootURL:      sc.SitemapURL,
			Canonicalize: rules.Canonicalize,
			Logger:       logger,
		}, nil
	case types.SourceTheProtocol:
		if deps.Renderer == nil {
			return nil, fmt.Errorf("%s: %w", source, ErrBrowserRequired)
		}
		return &ListingDiscoverer{
			Renderer:     deps.Renderer,
			Limiters:     deps.Limiters,
			Limiter:      limiter,
			ListingURLs:  sc.ListingURLs,
			Selectors:    sc.ListingSelectors,
			WaitTimeout:  sc.WaitTimeout,
			Canonicalize: rules.Canonicalize,
			Dumper:       deps.Dumper,
			Label:        string(source),
			Logger:       logger,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
}

// UsesBrowser reports whether discovery for source renders pages in the browser.
func UsesBrowser(source types.Source) bool {
	return source == types.SourceTheProtocol
}
