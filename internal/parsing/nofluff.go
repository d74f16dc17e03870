package parsing

import (
	"strings"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

var noFluffClosedStatuses = map[string]bool{
	"EXPIRED":  true,
	"ARCHIVED": true,
	"CLOSED":   true,
	"DELETED":  true,
}

// ParseNoFluff parses a NoFluff posting API payload. The envelope must carry id and title.
func ParseNoFluff(doc []byte, pageURL string) (*types.ParsedOffer, error) {
	obj, err := decodeEnvelope(types.SourceNoFluff, doc)
	if err != nil {
		return nil, err
	}
	id := str(obj["id"])
	title := normalize.CleanLine(str(obj["title"]))
	if id == "" || title == "" {
		return nil, newParseError(types.SourceNoFluff, doc, "posting envelope without id or title", nil)
	}
	if status := strings.ToUpper(str(obj["status"])); noFluffClosedStatuses[status] {
		return nil, expired("posting status " + status)
	}

	offer := &types.ParsedOffer{
		Source:     types.SourceNoFluff,
		ExternalID: id,
		Title:      title,
		CompanyName: firstNonEmpty(
			func() string { return normalize.CleanLine(str(field(obj, "company", "name"))) },
			func() string { return normalize.CleanLine(str(obj["name"])) },
		),
		URL:         pageURL,
		ApplyURL:    str(field(obj, "apply", "link")),
		PublishedAt: timestamp(obj["posted"]),
		Active:      activeFromValidThrough(obj["expiresAt"], now()),
	}
	offer.Description = HTMLToText(firstNonEmpty(
		func() string { return str(field(obj, "details", "description")) },
		func() string { return str(field(obj, "requirements", "description")) },
	))

	places := list(field(obj, "location", "places"))
	for _, p := range places {
		if city := str(field(p, "city")); city != "" && !strings.EqualFold(city, "remote") {
			offer.CityName = normalize.CleanLine(city)
			break
		}
	}
	if remote := boolean(field(obj, "location", "fullyRemote")); remote != nil {
		offer.Remote = remote
	} else if pct := num(field(obj, "location", "remote")); pct != nil {
		offer.Remote = types.Bool(*pct >= 100)
	}

	offer.Level = normalize.InferLevel(append(strs(field(obj, "basics", "seniority")), title)...)

	noFluffSalary(offer, obj)

	offer.Skills = append(noFluffSkills(field(obj, "requirements", "musts"), types.ProvenanceRequired),
		noFluffSkills(field(obj, "requirements", "nices"), types.ProvenanceOptional)...)
	if tech := str(field(obj, "basics", "technology")); tech != "" {
		offer.Skills = append([]types.Skill{{Name: tech, Provenance: types.ProvenanceTag}}, offer.Skills...)
	}
	return offer, nil
}

func noFluffSalary(offer *types.ParsedOffer, obj map[string]any) {
	salary := field(obj, "essentials", "originalSalary")
	typed, _ := field(salary, "types").(map[string]any)

	byContract := make(map[types.ContractType]any)
	var labels []string
	for label, spec := range typed {
		contract, ok := normalize.ParseContract(label)
		if !ok {
			continue
		}
		labels = append(labels, string(contract))
		byContract[contract] = spec
	}
	offer.MainContract, offer.Contracts = normalize.InferContracts(strings.Join(labels, " "))

	for _, contract := range offer.Contracts {
		spec := byContract[contract]
		bounds := list(field(spec, "range"))
		if len(bounds) == 0 {
			continue
		}
		offer.SalaryMin = num(bounds[0])
		if len(bounds) > 1 {
			offer.SalaryMax = num(bounds[1])
		}
		if !offer.HasSalary() {
			continue
		}
		offer.FillSinglePointSalary()
		offer.SalaryCurrency = normalize.ParseCurrency(str(field(salary, "currency")))
		if offer.SalaryCurrency == "" {
			offer.SalaryCurrency = offer.Source.HomeCurrency()
		}
		offer.SalaryPeriod = normalize.ParsePeriod(str(field(spec, "period")))
		if offer.SalaryPeriod == "" {
			offer.SalaryPeriod = types.PeriodMonth
		}
		return
	}
}

func noFluffSkills(v any, provenance string) []types.Skill {
	var skills []types.Skill
	for _, item := range list(v) {
		name := firstNonEmpty(
			func() string { return str(field(item, "value")) },
			func() string { return str(item) },
		)
		if name == "" {
			continue
		}
		skills = append(skills, types.Skill{Name: name, Provenance: provenance})
	}
	return skills
}
