package parsing

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

// JobPosting is a schema.org JobPosting object decoded loosely; property shapes vary between sites.
type JobPosting map[string]any

var jsonCommentWrapper = regexp.MustCompile(`^\s*(?:<!--|/\*<!\[CDATA\[\*/)|(?:-->|/\*\]\]>\*/)\s*$`)

// ExtractJobPosting returns the first JobPosting found in the document's JSON-LD blocks,
// including ones nested in arrays or @graph containers.
func ExtractJobPosting(doc *goquery.Document) (JobPosting, bool) {
	var found JobPosting
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := jsonCommentWrapper.ReplaceAllString(s.Text(), "")
		raw = strings.TrimRight(strings.TrimSpace(raw), ";")
		var tree any
		if err := json.Unmarshal([]byte(raw), &tree); err != nil {
			return true
		}
		if obj := findObject(tree, isJobPosting); obj != nil {
			found = obj
			return false
		}
		return true
	})
	return found, found != nil
}

func isJobPosting(m map[string]any) bool {
	for _, t := range strs(m["@type"]) {
		if strings.EqualFold(t, "JobPosting") {
			return true
		}
	}
	return false
}

// apply copies every JobPosting property it understands onto offer.
func (jp JobPosting) apply(offer *types.ParsedOffer, now time.Time) {
	offer.Title = firstNonEmpty(
		func() string { return normalize.CleanLine(str(jp["title"])) },
		func() string { return normalize.CleanLine(str(jp["name"])) },
	)
	offer.Description = HTMLToText(str(jp["description"]))
	offer.CompanyName = normalize.CleanLine(str(jp["hiringOrganization"]))
	offer.CityName = jp.city()
	offer.Remote = jp.remote()

	main, all := normalize.InferContracts(strs(jp["employmentType"])...)
	offer.MainContract, offer.Contracts = main, all

	offer.Level = normalize.InferLevel(offer.Title, str(jp["experienceRequirements"]), str(jp["occupationalCategory"]))

	jp.applySalary(offer)

	var tags []string
	for _, s := range strs(jp["skills"]) {
		tags = append(tags, splitList(s)...)
	}
	offer.Skills = normalize.SkillsFromTags(tags, types.ProvenanceTag)

	if u := str(jp["url"]); u != "" {
		offer.URL = u
	}
	offer.PublishedAt = timestamp(jp["datePosted"])
	offer.Active = activeFromValidThrough(jp["validThrough"], now)
}

func (jp JobPosting) city() string {
	for _, place := range list(jp["jobLocation"]) {
		address := field(place, "address")
		if s, ok := address.(string); ok {
			return normalize.CleanLine(strings.Split(s, ",")[0])
		}
		if city := str(field(address, "addressLocality")); city != "" {
			return normalize.CleanLine(city)
		}
	}
	return ""
}

func (jp JobPosting) remote() *bool {
	for _, t := range strs(jp["jobLocationType"]) {
		if strings.EqualFold(t, "TELECOMMUTE") {
			return types.Bool(true)
		}
	}
	if jp["applicantLocationRequirements"] != nil && jp["jobLocation"] == nil {
		return types.Bool(true)
	}
	if jp["jobLocationType"] != nil || jp["jobLocation"] != nil {
		return types.Bool(false)
	}
	return nil
}

func (jp JobPosting) applySalary(offer *types.ParsedOffer) {
	salaries := list(jp["baseSalary"])
	if len(salaries) == 0 {
		return
	}
	salary := salaries[0]
	value := field(salary, "value")

	if n := num(value); n != nil {
		offer.SalaryMin, offer.SalaryMax = n, num(value)
	} else {
		offer.SalaryMin = num(field(value, "minValue"))
		offer.SalaryMax = num(field(value, "maxValue"))
		if !offer.HasSalary() {
			if v := num(field(value, "value")); v != nil {
				offer.SalaryMin, offer.SalaryMax = v, num(field(value, "value"))
			}
		}
	}
	if !offer.HasSalary() {
		return
	}
	offer.FillSinglePointSalary()

	offer.SalaryCurrency = normalize.ParseCurrency(str(field(salary, "currency")))
	if offer.SalaryCurrency == "" {
		offer.SalaryCurrency = offer.Source.HomeCurrency()
	}
	offer.SalaryPeriod = normalize.ParsePeriod(firstNonEmpty(
		func() string { return str(field(value, "unitText")) },
		func() string { return str(field(salary, "unitText")) },
	))
	if offer.SalaryPeriod == "" {
		offer.SalaryPeriod = types.PeriodMonth
	}
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
