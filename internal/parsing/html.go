package parsing

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

// ParseTheProtocol parses a server-rendered offer page. The JSON-LD JobPosting is the primary
// source; DOM heuristics fill whatever it leaves empty.
func ParseTheProtocol(doc []byte, pageURL string) (*types.ParsedOffer, error) {
	return ParseJSONLDPage(types.SourceTheProtocol, doc, pageURL)
}

// ParseJSONLDPage parses any offer page carrying a JSON-LD JobPosting or, failing that, an h1 title.
func ParseJSONLDPage(source types.Source, doc []byte, pageURL string) (*types.ParsedOffer, error) {
	d, err := loadDocument(doc)
	if err != nil {
		return nil, newParseError(source, doc, "invalid HTML", err)
	}
	if DetectExpired(bodyText(d)) {
		return nil, expired("expiry banner on page")
	}

	offer := &types.ParsedOffer{Source: source, ExternalID: OfertaID(pageURL), URL: pageURL}
	jp, hasLD := ExtractJobPosting(d)
	if hasLD {
		jp.apply(offer, now())
	}
	fillFromDOM(offer, d)
	if offer.Active == nil {
		offer.Active = types.Bool(true)
	}

	if offer.Title == "" {
		if hasLD {
			return nil, newParseError(source, doc, "JobPosting has no title", nil)
		}
		return nil, newParseError(source, doc, "no JSON-LD JobPosting and no h1 title", nil)
	}
	return offer, nil
}

var contractHintSelector = `[data-test*="contract"], [class*="contract"], [data-test*="employment"], [class*="employment-type"]`

// fillFromDOM runs the heuristic strategies for every field still empty.
func fillFromDOM(offer *types.ParsedOffer, d *goquery.Document) {
	if offer.Title == "" {
		offer.Title = firstNonEmpty(
			func() string { return firstH1(d) },
			func() string { return ogTitle(d) },
		)
	}
	if offer.CompanyName == "" {
		offer.CompanyName = firstNonEmpty(
			func() string { return companyFromSelectors(d) },
			func() string { return breadcrumbCompany(d, offer.Title) },
			func() string { return metaContent(d, `meta[property="og:site_name"]`) },
		)
	}
	if offer.URL == "" {
		offer.URL = canonicalLink(d)
	}
	if offer.Description == "" {
		for _, sel := range []string{`[data-test*="description"]`, "article", "main"} {
			if s := d.Find(sel).First(); s.Length() > 0 {
				offer.Description = selectionText(s)
				break
			}
		}
	}
	if !offer.HasSalary() {
		if r, ok := salaryNearHeadings(d, offer.Source.HomeCurrency()); ok {
			offer.SalaryMin, offer.SalaryMax = r.Min, r.Max
			offer.SalaryCurrency, offer.SalaryPeriod = r.Currency, r.Period
		}
	}
	if len(offer.Skills) == 0 {
		offer.Skills = normalize.SkillsFromTags(chipsUnderHeadings(d), types.ProvenanceTag)
	}
	if len(offer.Contracts) == 0 {
		var hints []string
		d.Find(contractHintSelector).Each(func(_ int, s *goquery.Selection) {
			hints = append(hints, s.Text())
		})
		offer.MainContract, offer.Contracts = normalize.InferContracts(hints...)
	}
	if offer.Level == types.LevelUnknown {
		offer.Level = normalize.InferLevel(offer.Title, d.Find(`[data-test*="position-level"], [class*="seniority"]`).Text())
	}
}
