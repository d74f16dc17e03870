package parsing

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

// HydrationSelector locates the framework hydration blob on client-rendered pages.
const HydrationSelector = `script#__NEXT_DATA__`

// ParsePracuj parses a rendered Pracuj offer page. The hydration JSON is preferred; the
// JSON-LD JobPosting and DOM heuristics are fallbacks. A page with neither structured
// block nor an h1 title is a ParseError.
func ParsePracuj(doc []byte, pageURL string) (*types.ParsedOffer, error) {
	d, err := loadDocument(doc)
	if err != nil {
		return nil, newParseError(types.SourcePracuj, doc, "invalid HTML", err)
	}
	if DetectExpired(bodyText(d)) {
		return nil, expired("expiry banner on page")
	}

	offer := &types.ParsedOffer{Source: types.SourcePracuj, ExternalID: OfertaID(pageURL), URL: pageURL}

	hydrated, hydrationErr := pracujHydration(d)
	if hydrated != nil {
		if isExpired := boolean(hydrated["isExpired"]); isExpired != nil && *isExpired {
			return nil, expired("hydration marks offer expired")
		}
		applyPracujHydration(offer, hydrated)
	} else if jp, ok := ExtractJobPosting(d); ok {
		jp.apply(offer, now())
	}
	fillFromDOM(offer, d)

	if offer.Title == "" {
		return nil, newParseError(types.SourcePracuj, doc, "no hydration offer, JSON-LD or h1 title", hydrationErr)
	}
	return offer, nil
}

// pracujHydration returns the offer object inside the hydration JSON, or nil when absent.
func pracujHydration(d *goquery.Document) (map[string]any, error) {
	raw := strings.TrimSpace(d.Find(HydrationSelector).First().Text())
	if raw == "" {
		return nil, nil
	}
	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, err
	}
	return findObject(tree, func(m map[string]any) bool {
		return str(m["jobTitle"]) != "" && (m["employer"] != nil || m["employerName"] != nil || m["typesOfContracts"] != nil)
	}), nil
}

func applyPracujHydration(offer *types.ParsedOffer, h map[string]any) {
	offer.Title = normalize.CleanLine(str(h["jobTitle"]))
	offer.CompanyName = firstNonEmpty(
		func() string { return normalize.CleanLine(str(h["employerName"])) },
		func() string { return normalize.CleanLine(str(h["employer"])) },
	)
	for _, wp := range list(h["workplaces"]) {
		city := firstNonEmpty(
			func() string { return str(field(wp, "inlandLocation", "location", "name")) },
			func() string { return str(field(wp, "city")) },
			func() string { return strings.Split(str(field(wp, "displayAddress")), ",")[0] },
		)
		if city != "" {
			offer.CityName = normalize.CleanLine(city)
			break
		}
	}

	offer.Remote = pracujRemote(h["workModes"])

	var levels []string
	for _, l := range list(h["positionLevels"]) {
		levels = append(levels, str(l))
	}
	offer.Level = normalize.InferLevel(append(levels, offer.Title)...)

	pracujContracts(offer, h["typesOfContracts"])

	for _, t := range list(field(h, "technologies", "expected")) {
		offer.Skills = append(offer.Skills, types.Skill{Name: str(t), Provenance: types.ProvenanceRequired})
	}
	for _, t := range list(field(h, "technologies", "optional")) {
		offer.Skills = append(offer.Skills, types.Skill{Name: str(t), Provenance: types.ProvenanceOptional})
	}

	var sections []string
	for _, sec := range list(h["textSections"]) {
		if title := str(field(sec, "title")); title != "" {
			sections = append(sections, title)
		}
		for _, el := range strs(field(sec, "textElements")) {
			sections = append(sections, "- "+el)
		}
		sections = append(sections, "")
	}
	offer.Description = normalize.CleanText(strings.Join(sections, "\n"))

	offer.ApplyURL = firstNonEmpty(
		func() string { return str(field(h, "applying", "applyURL")) },
		func() string { return str(h["applyUrl"]) },
	)
	offer.PublishedAt = timestamp(h["dateOfInitialPublication"])
	offer.Active = activeFromValidThrough(h["expirationDate"], now())
}

func pracujRemote(modes any) *bool {
	items := list(modes)
	if len(items) == 0 {
		return nil
	}
	for _, m := range items {
		code := strings.ToLower(firstNonEmpty(
			func() string { return str(field(m, "code")) },
			func() string { return str(m) },
		))
		if code == "home-office" || code == "remote" || strings.Contains(code, "zdaln") {
			return types.Bool(true)
		}
	}
	return types.Bool(false)
}

func pracujContracts(offer *types.ParsedOffer, contracts any) {
	type salaried struct {
		contract types.ContractType
		salary   any
	}
	var labels []string
	var withSalary []salaried
	for _, c := range list(contracts) {
		name := str(c)
		contract, ok := normalize.ParseContract(name)
		if !ok {
			continue
		}
		labels = append(labels, string(contract))
		if s := field(c, "salary"); s != nil {
			withSalary = append(withSalary, salaried{contract, s})
		}
	}
	offer.MainContract, offer.Contracts = normalize.InferContracts(strings.Join(labels, " "))

	for _, preferred := range offer.Contracts {
		for _, ws := range withSalary {
			if ws.contract != preferred {
				continue
			}
			offer.SalaryMin, offer.SalaryMax = num(field(ws.salary, "from")), num(field(ws.salary, "to"))
			if !offer.HasSalary() {
				continue
			}
			offer.FillSinglePointSalary()
			offer.SalaryCurrency = normalize.ParseCurrency(firstNonEmpty(
				func() string { return str(field(ws.salary, "currency", "code")) },
				func() string { return str(field(ws.salary, "currency")) },
			))
			if offer.SalaryCurrency == "" {
				offer.SalaryCurrency = offer.Source.HomeCurrency()
			}
			offer.SalaryPeriod = normalize.ParsePeriod(firstNonEmpty(
				func() string { return str(field(ws.salary, "timeUnit", "longForm", "name")) },
				func() string { return str(field(ws.salary, "timeUnit", "shortForm", "name")) },
				func() string { return str(field(ws.salary, "timeUnit")) },
			))
			if offer.SalaryPeriod == "" {
				offer.SalaryPeriod = types.PeriodMonth
			}
			return
		}
	}
}
