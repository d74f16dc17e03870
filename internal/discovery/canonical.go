package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

// Canonicalizer maps a raw URL to its canonical offer URL. ok is false for URLs that
// are not offers of the source.
type Canonicalizer func(raw string) (canonical string, ok bool)

// PathRewrite replaces a leading path prefix.
type PathRewrite struct {
	From string
	To   string
}

// CanonicalRules describes how one source's offer URLs are normalised.
type CanonicalRules struct {
	// Host, when set, is forced onto every URL; links to hosts other than Host
	// and HostAliases are rejected.
	Host         string
	HostAliases  []string
	PathRewrites []PathRewrite
	// DropQuery removes the whole query string instead of only tracking parameters.
	DropQuery bool
	// OfferPattern, when set, must match the canonical URL.
	OfferPattern *regexp.Regexp
}

var trackingParams = regexp.MustCompile(`(?i)^(utm_.*|fbclid|gclid|msclkid|ref|referrer|searchid|s|sc|tracking_?id)$`)

var commaEscapes = strings.NewReplacer("%2C", ",", "%2c", ",")

// Canonicalize applies the rules to raw.
func (r CanonicalRules) Canonicalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	u.Scheme = "https"

	host := strings.ToLower(u.Host)
	if r.Host != "" {
		if host != r.Host && !containsFold(r.HostAliases, host) {
			return "", false
		}
		host = r.Host
	}
	u.Host = host
	u.User = nil

	path, err := url.PathUnescape(commaEscapes.Replace(u.EscapedPath()))
	if err != nil {
		return "", false
	}
	for _, rw := range r.PathRewrites {
		if strings.HasPrefix(path, rw.From) {
			path = rw.To + strings.TrimPrefix(path, rw.From)
			break
		}
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	u.Path = path
	u.RawPath = ""

	if r.DropQuery {
		u.RawQuery = ""
	} else if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingParams.MatchString(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	u.RawFragment = ""

	canonical := u.String()
	if r.OfferPattern != nil && !r.OfferPattern.MatchString(canonical) {
		return "", false
	}
	return canonical, true
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
