package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Document is the raw material handed to a parser.
type Document struct {
	// URL is the offer page URL, not the API endpoint it may have been read from.
	URL         string
	Body        []byte
	ContentType string
}

// Fetcher retrieves the raw document for one offer URL.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Document, error)
}

// PageFetcher retrieves server-rendered HTML with a browser-like user agent and referrer.
type PageFetcher struct {
	client   *Client
	limiters *Limiters
	limiter  string
	referer  string
}

// NewPageFetcher creates a PageFetcher drawing from the named limiter bucket.
func NewPageFetcher(client *Client, limiters *Limiters, limiter, referer string) *PageFetcher {
	return &PageFetcher{client: client, limiters: limiters, limiter: limiter, referer: referer}
}

// Fetch implements Fetcher.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	if err := f.limiters.Wait(ctx, f.limiter); err != nil {
		return nil, err
	}
	res, err := f.client.Get(ctx, pageURL, &Options{Referer: f.referer})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == http.StatusForbidden || statusErr.Code == http.StatusServiceUnavailable) {
			if title, wall := botWallBody(res.Body, pageURL); wall {
				return nil, &BotWallError{URL: pageURL, Title: title}
			}
		}
		return nil, err
	}
	if title, wall := botWallBody(res.Body, pageURL); wall {
		return nil, &BotWallError{URL: pageURL, Title: title}
	}
	return &Document{URL: pageURL, Body: res.Body, ContentType: res.ContentType}, nil
}

// APIFetcher reads an offer from a JSON API. Endpoint contains an "{id}" placeholder
// filled with IDFunc(pageURL).
type APIFetcher struct {
	Client   *Client
	Limiters *Limiters
	Limiter  string
	Endpoint string
	IDFunc   func(pageURL string) string
	Method   string
	Headers  map[string]string
}

// Fetch implements Fetcher.
func (f *APIFetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	id := f.IDFunc(pageURL)
	if id == "" {
		return nil, &Error{URL: pageURL, Message: "cannot derive offer id from URL"}
	}
	endpoint := strings.ReplaceAll(f.Endpoint, "{id}", url.PathEscape(id))

	if err := f.Limiters.Wait(ctx, f.Limiter); err != nil {
		return nil, err
	}
	method := f.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range f.Headers {
		headers[k] = v
	}
	res, err := f.Client.Do(ctx, method, endpoint, nil, &Options{Headers: headers, Referer: pageURL})
	if err != nil {
		return nil, err
	}
	return &Document{URL: pageURL, Body: res.Body, ContentType: res.ContentType}, nil
}

// Renderer renders a page in a browser. *Browser implements it.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Page, error)
}

// RenderFetcher reads a client-rendered page once its hydration marker is populated.
// A page whose marker never appears is still returned so the parser can classify it.
type RenderFetcher struct {
	Renderer    Renderer
	Limiters    *Limiters
	Limiter     string
	Marker      string
	WaitTimeout time.Duration
	Label       string
}

// Fetch implements Fetcher.
func (f *RenderFetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	if err := f.Limiters.Wait(ctx, f.Limiter); err != nil {
		return nil, err
	}
	req := RenderRequest{URL: pageURL, Label: f.Label}
	if f.Marker != "" {
		req.Wait = WaitMarker(f.Marker, f.WaitTimeout)
	}
	page, err := f.Renderer.Render(ctx, req)
	if err != nil {
		// Expired and removed offers never hydrate; their HTML still carries the banner.
		var waitTimeout *WaitTimeoutError
		if !errors.As(err, &waitTimeout) || page == nil || page.HTML == "" {
			return nil, err
		}
	}
	return &Document{URL: pageURL, Body: []byte(page.HTML), ContentType: "text/html"}, nil
}
