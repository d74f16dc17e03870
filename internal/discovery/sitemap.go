package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/fetch"
)

// SitemapDiscoverer walks a sitemap or sitemap index depth-first and collects offer URLs.
type SitemapDiscoverer struct {
	Client       *fetch.Client
	Limiters     *fetch.Limiters
	Limiter      string
	RootURL      string
	Canonicalize Canonicalizer
	Logger       *zap.Logger
}

type sitemapDocument struct {
	XMLName  xml.Name
	Sitemaps []sitemapEntry `xml:"sitemap"`
	URLs     []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// Discover implements Discoverer. Only a failure of the root document is returned;
// failing child sitemaps are logged and skipped.
func (d *SitemapDiscoverer) Discover(ctx context.Context) ([]string, error) {
	logger := d.logger()
	found := newURLSet()
	visited := map[string]bool{d.RootURL: true}

	root, err := d.load(ctx, d.RootURL)
	if err != nil {
		return nil, err
	}

	stack := [][]string{locs(root.Sitemaps)}
	d.collect(root, found)

	for len(stack) > 0 {
		top := len(stack) - 1
		if len(stack[top]) == 0 {
			stack = stack[:top]
			continue
		}
		child := stack[top][0]
		stack[top] = stack[top][1:]

		if visited[child] {
			continue
		}
		visited[child] = true

		if err := ctx.Err(); err != nil {
			return found.list, err
		}
		doc, err := d.load(ctx, child)
		if err != nil {
			logger.Warn("child sitemap failed, skipping", zap.String("url", child), zap.Error(err))
			continue
		}
		d.collect(doc, found)
		if len(doc.Sitemaps) > 0 {
			stack = append(stack, locs(doc.Sitemaps))
		}
	}

	logger.Debug("sitemap traversal finished",
		zap.String("root", d.RootURL),
		zap.Int("sitemaps", len(visited)),
		zap.Int("offers", len(found.list)))
	return found.list, nil
}

func (d *SitemapDiscoverer) collect(doc *sitemapDocument, found *urlSet) {
	for _, entry := range doc.URLs {
		if canonical, ok := d.Canonicalize(entry.Loc); ok {
			found.add(canonical)
		}
	}
}

func (d *SitemapDiscoverer) load(ctx context.Context, sitemapURL string) (*sitemapDocument, error) {
	if err := d.Limiters.Wait(ctx, d.Limiter); err != nil {
		return nil, err
	}
	res, err := d.Client.Get(ctx, sitemapURL, &fetch.Options{Headers: map[string]string{"Accept": "application/xml,text/xml,*/*"}})
	if err != nil {
		return nil, err
	}

	body := res.Body
	if isGzip(body) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, &Error{URL: sitemapURL, Message: "failed to open gzip sitemap", Cause: err}
		}
		body, err = io.ReadAll(io.LimitReader(zr, fetch.MaxBodyBytes*4))
		if err != nil {
			return nil, &Error{URL: sitemapURL, Message: "failed to decompress sitemap", Cause: err}
		}
	}

	var doc sitemapDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &Error{URL: sitemapURL, Message: "failed to parse sitemap XML", Cause: err}
	}
	switch doc.XMLName.Local {
	case "sitemapindex", "urlset":
	default:
		return nil, &Error{URL: sitemapURL, Message: "unexpected sitemap root element <" + doc.XMLName.Local + ">"}
	}
	return &doc, nil
}

func (d *SitemapDiscoverer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func locs(entries []sitemapEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

func isGzip(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}
