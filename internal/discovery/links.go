package discovery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractOfferLinks returns the canonical form of every anchor in htmlContent that
// canon accepts, resolved against baseURL, in document order without duplicates.
func ExtractOfferLinks(htmlContent, baseURL string, canon Canonicalizer) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &Error{URL: baseURL, Message: "failed to parse base URL", Cause: err}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &Error{URL: baseURL, Message: "invalid base URL (must have scheme and host)"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &Error{URL: baseURL, Message: "failed to parse HTML", Cause: err}
	}

	links := newURLSet()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		linkURL, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		canonical, ok := canon(base.ResolveReference(linkURL).String())
		if !ok {
			return
		}
		links.add(canonical)
	})
	return links.list, nil
}
