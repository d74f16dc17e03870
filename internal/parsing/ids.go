package parsing

import (
	"net/url"
	"path"
	"strings"
)

const ofertaMarker = ",oferta,"

// SlugID returns the last non-empty path segment of rawURL.
func SlugID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	seg := path.Base(p)
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	return seg
}

// OfertaID returns the token following ",oferta," in the last path segment,
// falling back to the whole segment when the marker is absent.
func OfertaID(rawURL string) string {
	seg := SlugID(rawURL)
	if idx := strings.LastIndex(seg, ofertaMarker); idx >= 0 {
		return seg[idx+len(ofertaMarker):]
	}
	return seg
}

// HasOfertaID reports whether rawURL carries an explicit ",oferta," identifier.
func HasOfertaID(rawURL string) bool {
	return strings.Contains(SlugID(rawURL), ofertaMarker)
}
