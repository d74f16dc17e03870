package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/offer-ingest/internal/types"
)

// RateConfig describes a token bucket.
type RateConfig struct {
	RPS   float64 `yaml:"rps" validate:"min=0"`
	Burst int     `yaml:"burst" validate:"min=0"`
}

// SourceConfig holds per-source discovery and fetch settings.
type SourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"required,url"`

	// Discovery endpoints; which one is used depends on the source's strategy.
	SitemapURL       string   `yaml:"sitemap_url" validate:"omitempty,url"`
	SearchURL        string   `yaml:"search_url" validate:"omitempty,url"`
	ListingURLs      []string `yaml:"listing_urls" validate:"dive,url"`
	ListingSelectors []string `yaml:"listing_selectors"`
	OfferPattern     string   `yaml:"offer_pattern"`
	PageSize         int      `yaml:"page_size" validate:"min=0"`
	MaxPages         int      `yaml:"max_pages" validate:"min=0"`

	// DetailURL is an API endpoint template with an {id} placeholder.
	DetailURL string            `yaml:"detail_url"`
	Headers   map[string]string `yaml:"headers"`

	DiscoveryRate RateConfig    `yaml:"discovery_rate"`
	DetailRate    RateConfig    `yaml:"detail_rate"`
	WaitTimeout   time.Duration `yaml:"wait_timeout" validate:"min=0"`
	StaleAfter    time.Duration `yaml:"stale_after" validate:"gt=0"`
}

type sourcesFile struct {
	Sources map[string]yaml.Node `yaml:"sources"`
}

// LoadSources reads per-source overrides from path and merges them over DefaultSources.
// An empty path returns the defaults.
func LoadSources(path string) (map[types.Source]SourceConfig, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	for name, node := range file.Sources {
		source, err := types.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("sources file: %w", err)
		}
		sc := sources[source]
		// Decoding into the defaults only overwrites keys present in the file.
		if err := node.Decode(&sc); err != nil {
			return nil, fmt.Errorf("sources file: %s: %w", source, err)
		}
		sources[source] = sc
	}
	return sources, nil
}

// DefaultSources returns the built-in settings for every source.
func DefaultSources() map[types.Source]SourceConfig {
	return map[types.Source]SourceConfig{
		types.SourceJustJoin: {
			Enabled:       true,
			Schedule:      "@every 2h",
			BaseURL:       "https://justjoin.it/job-offer/",
			SearchURL:     "https://api.justjoin.it/v2/user-panel/offers",
			DetailURL:     "https://api.justjoin.it/v1/offers/{id}",
			Headers:       map[string]string{"Version": "2"},
			PageSize:      100,
			MaxPages:      200,
			DiscoveryRate: RateConfig{RPS: 1, Burst: 1},
			DetailRate:    RateConfig{RPS: 0.5, Burst: 1},
			StaleAfter:    48 * time.Hour,
		},
		types.SourceNoFluff: {
			Enabled:       true,
			Schedule:      "@every 2h",
			BaseURL:       "https://nofluffjobs.com/pl/job/",
			SearchURL:     "https://nofluffjobs.com/api/search/posting?salaryCurrency=PLN&salaryPeriod=month&region=pl",
			DetailURL:     "https://nofluffjobs.com/api/posting/{id}?salaryCurrency=PLN&salaryPeriod=month&region=pl",
			PageSize:      100,
			MaxPages:      200,
			DiscoveryRate: RateConfig{RPS: 1, Burst: 1},
			DetailRate:    RateConfig{RPS: 0.5, Burst: 1},
			StaleAfter:    48 * time.Hour,
		},
		types.SourcePracuj: {
			Enabled:       true,
			Schedule:      "@every 6h",
			BaseURL:       "https://www.pracuj.pl/",
			SitemapURL:    "https://www.pracuj.pl/sitemap.xml",
			OfferPattern:  `,oferta,\d+`,
			DiscoveryRate: RateConfig{RPS: 2, Burst: 2},
			DetailRate:    RateConfig{RPS: 0.2, Burst: 1},
			WaitTimeout:   20 * time.Second,
			StaleAfter:    72 * time.Hour,
		},
		types.SourceTheProtocol: {
			Enabled:  true,
			Schedule: "@every 6h",
			BaseURL:  "https://theprotocol.it/",
			ListingURLs: []string{
				"https://theprotocol.it/filtry/warszawa;wp",
				"https://theprotocol.it/filtry/krakow;wp",
				"https://theprotocol.it/filtry/praca-zdalna;rw",
			},
			ListingSelectors: []string{
				`a[href*="/szczegoly/praca/"]`,
				`[data-test="list-item-offer"]`,
				`[data-test="offersList"] a`,
			},
			OfferPattern:  `/szczegoly/praca/[^/?#]+`,
			DiscoveryRate: RateConfig{RPS: 0.2, Burst: 1},
			DetailRate:    RateConfig{RPS: 0.5, Burst: 1},
			WaitTimeout:   20 * time.Second,
			StaleAfter:    72 * time.Hour,
		},
	}
}
