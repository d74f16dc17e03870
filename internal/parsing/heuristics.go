package parsing

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

func loadDocument(doc []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(doc))
}

// HTMLToText renders an HTML fragment as plain text with one line per block element.
func HTMLToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return normalize.CleanText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalize.CleanText(fragment)
	}
	return selectionText(doc.Selection)
}

func selectionText(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find("script, style, noscript").Remove()
	sel.Find("br").ReplaceWithHtml("\n")
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		li.PrependHtml("- ")
	})
	sel.Find("p, li, div, ul, ol, h1, h2, h3, h4, h5, h6, section, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return normalize.CleanText(sel.Text())
}

func firstH1(doc *goquery.Document) string {
	return normalize.CleanLine(doc.Find("h1").First().Text())
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return normalize.CleanLine(v)
		}
	}
	return ""
}

func ogTitle(doc *goquery.Document) string {
	title := metaContent(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`)
	// og titles usually carry a " | Site" suffix
	if idx := strings.Index(title, " | "); idx > 0 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

func canonicalLink(doc *goquery.Document) string {
	if v, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		return strings.TrimSpace(v)
	}
	return metaContent(doc, `meta[property="og:url"]`)
}

const breadcrumbSelector = `nav[aria-label*="readcrumb"] a, .breadcrumb a, .breadcrumbs a, [itemtype*="BreadcrumbList"] [itemprop="name"]`

// breadcrumbCompany returns the last breadcrumb entry that is not the page title itself.
func breadcrumbCompany(doc *goquery.Document, title string) string {
	var crumbs []string
	doc.Find(breadcrumbSelector).Each(func(_ int, s *goquery.Selection) {
		if text := normalize.CleanLine(s.Text()); text != "" && !strings.EqualFold(text, title) {
			crumbs = append(crumbs, text)
		}
	})
	if len(crumbs) < 2 {
		return ""
	}
	return crumbs[len(crumbs)-1]
}

func companyFromSelectors(doc *goquery.Document) string {
	for _, sel := range []string{`[data-test="text-company-name"]`, `[data-test*="company-name"]`, `[class*="company-name"]`, `[itemprop="hiringOrganization"] [itemprop="name"]`} {
		if text := normalize.CleanLine(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var (
	salaryHeading = regexp.MustCompile(`(?i)wynagrodzeni|salary|widełki|widelki|stawka|pay range|compensation`)
	skillHeading  = regexp.MustCompile(`(?i)technolog|tech stack|skills|umiejętnoś|umiejetnos|must have|nice to have|wymagan|requirements`)
	headingTags   = "h2, h3, h4, h5, dt, strong, [role='heading']"
)

// headingBlocks returns the next sibling and the parent of every heading matching re.
func headingBlocks(doc *goquery.Document, re *regexp.Regexp) []*goquery.Selection {
	var blocks []*goquery.Selection
	doc.Find(headingTags).Each(func(_ int, h *goquery.Selection) {
		if !re.MatchString(h.Text()) {
			return
		}
		if next := h.Next(); next.Length() > 0 {
			blocks = append(blocks, next)
		}
		blocks = append(blocks, h.Parent())
	})
	return blocks
}

// salaryNearHeadings looks for a salary-looking range in blocks labelled as salary.
func salaryNearHeadings(doc *goquery.Document, homeCurrency string) (normalize.SalaryRange, bool) {
	candidates := headingBlocks(doc, salaryHeading)
	doc.Find(`[data-test*="salary"], [class*="salary"]`).Each(func(_ int, s *goquery.Selection) {
		candidates = append(candidates, s)
	})
	for _, block := range candidates {
		text := normalize.CleanLine(block.Text())
		if text == "" || len(text) > 400 {
			continue
		}
		if r, ok := normalize.ParseSalaryText(text, homeCurrency); ok && *r.Max >= 100 {
			return r, true
		}
	}
	return normalize.SalaryRange{}, false
}

const maxChipBlockLength = 3000

// chipsUnderHeadings collects short list/chip texts under skill-like headings.
func chipsUnderHeadings(doc *goquery.Document) []string {
	var chips []string
	seen := make(map[string]bool)
	for _, block := range headingBlocks(doc, skillHeading) {
		if len(block.Text()) > maxChipBlockLength {
			continue
		}
		block.Find("li, span, [class*='chip'], [class*='tag'], [class*='badge']").Each(func(_ int, s *goquery.Selection) {
			if s.Children().Length() > 0 {
				return
			}
			text := normalize.CleanLine(s.Text())
			if text != "" && len([]rune(text)) <= 40 && !seen[text] {
				seen[text] = true
				chips = append(chips, text)
			}
		})
	}
	return chips
}

func bodyText(doc *goquery.Document) string {
	return normalize.CleanLine(doc.Find("body").Text())
}

var expiredBanner = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`oferta (?:wygasła|wygasla|jest nieaktualna|nie jest już aktualna|została zakończona|zostala zakonczona|jest nieaktywna|archiwalna)`,
	`ogłoszenie (?:wygasło|jest nieaktualne|nie jest już aktywne)`,
	`rekrutacja (?:została |zostala )?zakończona`,
	`this (?:job )?(?:offer|posting|ad) (?:has )?expired`,
	`(?:offer|job|posting) is no longer (?:available|active)`,
	`no longer accepting applications`,
}, "|"))

// DetectExpired reports whether text carries a removed/expired offer banner.
func DetectExpired(text string) bool {
	return expiredBanner.MatchString(text)
}

// activeFromValidThrough returns false when validThrough lies before now. A page served
// without a usable expiry date is live.
func activeFromValidThrough(validThrough any, now time.Time) *bool {
	ts := timestamp(validThrough)
	if ts == nil {
		return types.Bool(true)
	}
	return types.Bool(!ts.Before(now))
}
