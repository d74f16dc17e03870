package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/fetch"
)

// ListingDiscoverer renders listing pages in the browser and collects offer anchors.
type ListingDiscoverer struct {
	Renderer     fetch.Renderer
	Limiters     *fetch.Limiters
	Limiter      string
	ListingURLs  []string
	Selectors    []string
	WaitTimeout  time.Duration
	Canonicalize Canonicalizer
	Dumper       *fetch.DebugDumper
	Label        string
	Logger       *zap.Logger
}

// Discover implements Discoverer. A bot wall or a listing with no offer anchors ends
// the run with the URLs gathered from earlier listing pages.
func (d *ListingDiscoverer) Discover(ctx context.Context) ([]string, error) {
	found := newURLSet()
	for _, listingURL := range d.ListingURLs {
		links, err := d.discoverPage(ctx, listingURL)
		for _, link := range links {
			found.add(link)
		}
		if err != nil {
			return found.list, err
		}
	}
	return found.list, nil
}

func (d *ListingDiscoverer) discoverPage(ctx context.Context, listingURL string) ([]string, error) {
	if err := d.Limiters.Wait(ctx, d.Limiter); err != nil {
		return nil, err
	}

	page, err := d.Renderer.Render(ctx, fetch.RenderRequest{
		URL:   listingURL,
		Wait:  fetch.WaitAnyVisible(d.Selectors, d.WaitTimeout),
		Label: d.Label,
	})
	var waitTimeout *fetch.WaitTimeoutError
	switch {
	case err == nil:
	case errors.As(err, &waitTimeout) && page != nil:
		// Markup may have changed; the anchors are still worth a look.
	default:
		return nil, err
	}

	base := page.URL
	if base == "" {
		base = listingURL
	}
	links, err := ExtractOfferLinks(page.HTML, base, d.Canonicalize)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		if _, dumpErr := d.Dumper.Save(d.Label+"-empty", page.HTML, nil); dumpErr != nil && d.Logger != nil {
			d.Logger.Warn("failed to dump empty listing", zap.Error(dumpErr))
		}
		if waitTimeout != nil {
			return nil, fmt.Errorf("%w at %s: %v", ErrNoOffersFound, listingURL, waitTimeout)
		}
		return nil, fmt.Errorf("%w at %s", ErrNoOffersFound, listingURL)
	}
	return links, nil
}
