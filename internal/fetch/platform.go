package fetch

import (
	"net/url"
	"strings"

	"github.com/jonathan/offer-ingest/internal/types"
)

var sourceHosts = map[string]types.Source{
	"justjoin.it":     types.SourceJustJoin,
	"nofluffjobs.com": types.SourceNoFluff,
	"pracuj.pl":       types.SourcePracuj,
	"theprotocol.it":  types.SourceTheProtocol,
}

// DetectSource identifies the job board serving urlStr from its host.
func DetectSource(urlStr string) (types.Source, bool) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for suffix, source := range sourceHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return source, true
		}
	}
	return "", false
}
