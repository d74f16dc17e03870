package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/fetch"
)

// SearchPage is one page of search API results.
type SearchPage struct {
	URLs []string
	// TotalPages is the server-reported page count, 0 when unknown.
	TotalPages int
}

// PageFetcher retrieves one zero-based page of search results.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (*SearchPage, error)
}

// SearchDiscoverer pages through a search API until an empty page, the reported
// total or MaxPages is reached.
type SearchDiscoverer struct {
	Pages        PageFetcher
	Limiters     *fetch.Limiters
	Limiter      string
	MaxPages     int
	Canonicalize Canonicalizer
	Logger       *zap.Logger
}

// Discover implements Discoverer. A failing page ends the run with the URLs gathered so far.
func (d *SearchDiscoverer) Discover(ctx context.Context) ([]string, error) {
	found := newURLSet()
	pages := 0
	for page := 0; d.MaxPages <= 0 || page < d.MaxPages; page++ {
		if err := d.Limiters.Wait(ctx, d.Limiter); err != nil {
			return found.list, err
		}
		result, err := d.Pages.FetchPage(ctx, page)
		if err != nil {
			return found.list, fmt.Errorf("search page %d: %w", page, err)
		}
		pages++
		if len(result.URLs) == 0 {
			break
		}
		for _, raw := range result.URLs {
			if canonical, ok := d.Canonicalize(raw); ok {
				found.add(canonical)
			}
		}
		if result.TotalPages > 0 && page+1 >= result.TotalPages {
			break
		}
	}

	if d.Logger != nil {
		d.Logger.Debug("search pagination finished", zap.Int("pages", pages), zap.Int("offers", len(found.list)))
	}
	return found.list, nil
}

// JustJoinPages reads the JUSTJOIN offer search API with GET and one-based page numbers.
type JustJoinPages struct {
	Client    *fetch.Client
	SearchURL string
	OfferBase string
	PageSize  int
	Headers   map[string]string
}

type justJoinSearchResponse struct {
	Data []struct {
		Slug string `json:"slug"`
	} `json:"data"`
	Meta struct {
		TotalPages int `json:"totalPages"`
	} `json:"meta"`
}

// FetchPage implements PageFetcher.
func (p *JustJoinPages) FetchPage(ctx context.Context, page int) (*SearchPage, error) {
	endpoint, err := withQuery(p.SearchURL, map[string]string{
		"page":    strconv.Itoa(page + 1),
		"perPage": strconv.Itoa(p.PageSize),
		"sortBy":  "published",
		"orderBy": "DESC",
	})
	if err != nil {
		return nil, err
	}
	res, err := p.Client.Do(ctx, http.MethodGet, endpoint, nil, &fetch.Options{Headers: jsonHeaders(p.Headers)})
	if err != nil {
		return nil, err
	}

	var body justJoinSearchResponse
	if err := json.Unmarshal(res.Body, &body); err != nil {
		return nil, &Error{URL: endpoint, Message: "failed to decode search response", Cause: err}
	}
	out := &SearchPage{TotalPages: body.Meta.TotalPages}
	for _, item := range body.Data {
		if item.Slug != "" {
			out.URLs = append(out.URLs, joinOfferURL(p.OfferBase, item.Slug))
		}
	}
	return out, nil
}

// NoFluffPages reads the NOFLUFF posting search API with POST and one-based page numbers.
type NoFluffPages struct {
	Client    *fetch.Client
	SearchURL string
	OfferBase string
	PageSize  int
	Headers   map[string]string
}

type noFluffSearchRequest struct {
	CriteriaSearch map[string][]string `json:"criteriaSearch"`
	Page           int                 `json:"page"`
	PageSize       int                 `json:"pageSize"`
}

type noFluffSearchResponse struct {
	Postings []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"postings"`
	TotalPages int `json:"totalPages"`
}

// FetchPage implements PageFetcher.
func (p *NoFluffPages) FetchPage(ctx context.Context, page int) (*SearchPage, error) {
	endpoint, err := withQuery(p.SearchURL, map[string]string{
		"page":     strconv.Itoa(page + 1),
		"pageSize": strconv.Itoa(p.PageSize),
	})
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(noFluffSearchRequest{
		CriteriaSearch: map[string][]string{},
		Page:           page + 1,
		PageSize:       p.PageSize,
	})
	if err != nil {
		return nil, err
	}
	res, err := p.Client.Do(ctx, http.MethodPost, endpoint, payload, &fetch.Options{
		Headers:     jsonHeaders(p.Headers),
		ContentType: "application/infiniteSearch+json",
	})
	if err != nil {
		return nil, err
	}

	var body noFluffSearchResponse
	if err := json.Unmarshal(res.Body, &body); err != nil {
		return nil, &Error{URL: endpoint, Message: "failed to decode search response", Cause: err}
	}
	out := &SearchPage{TotalPages: body.TotalPages}
	for _, item := range body.Postings {
		slug := item.URL
		if slug == "" {
			slug = item.ID
		}
		if slug != "" {
			out.URLs = append(out.URLs, joinOfferURL(p.OfferBase, slug))
		}
	}
	return out, nil
}

func withQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "invalid search URL", Cause: err}
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func jsonHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func joinOfferURL(base, slug string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(strings.Trim(slug, "/"))
}
