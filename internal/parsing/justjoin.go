package parsing

import (
	"strings"

	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/types"
)

// justJoinSkillLevels names the 1-5 skill scale used by the JustJoin API.
var justJoinSkillLevels = map[int]string{
	1: "nice to have",
	2: "junior",
	3: "regular",
	4: "advanced",
	5: "master",
}

// ParseJustJoin parses a JustJoin offer API payload. The envelope must carry slug and title.
func ParseJustJoin(doc []byte, pageURL string) (*types.ParsedOffer, error) {
	obj, err := decodeEnvelope(types.SourceJustJoin, doc)
	if err != nil {
		return nil, err
	}
	slug := firstNonEmpty(
		func() string { return str(obj["slug"]) },
		func() string { return str(obj["id"]) },
	)
	title := normalize.CleanLine(str(obj["title"]))
	if slug == "" || title == "" {
		return nil, newParseError(types.SourceJustJoin, doc, "offer envelope without slug or title", nil)
	}
	if strings.EqualFold(str(obj["status"]), "expired") {
		return nil, expired("status expired")
	}

	offer := &types.ParsedOffer{
		Source:      types.SourceJustJoin,
		ExternalID:  slug,
		Title:       title,
		Description: HTMLToText(str(obj["body"])),
		CompanyName: normalize.CleanLine(str(obj["companyName"])),
		CityName:    justJoinCity(obj),
		URL:         pageURL,
		ApplyURL:    str(obj["applyUrl"]),
		PublishedAt: timestamp(obj["publishedAt"]),
		Active:      activeFromValidThrough(obj["expiredAt"], now()),
	}

	switch strings.ToLower(str(obj["workplaceType"])) {
	case "remote":
		offer.Remote = types.Bool(true)
	case "hybrid", "office":
		offer.Remote = types.Bool(false)
	}
	if offer.Remote == nil {
		offer.Remote = boolean(obj["remote"])
	}

	offer.Level = normalize.InferLevel(strings.ReplaceAll(str(obj["experienceLevel"]), "_", "-"), title)

	justJoinEmployment(offer, obj)

	offer.Skills = append(justJoinSkills(obj["requiredSkills"], types.ProvenanceRequired),
		justJoinSkills(obj["niceToHaveSkills"], types.ProvenanceOptional)...)
	if len(offer.Skills) == 0 {
		offer.Skills = normalize.SkillsFromTags(strs(obj["skills"]), types.ProvenanceTag)
	}
	return offer, nil
}

func justJoinCity(obj map[string]any) string {
	if city := str(obj["city"]); city != "" {
		return normalize.CleanLine(city)
	}
	for _, loc := range list(obj["multilocation"]) {
		if city := str(field(loc, "city")); city != "" {
			return normalize.CleanLine(city)
		}
	}
	return ""
}

// justJoinEmployment reads contracts and picks the salary of the preferred contract that has one.
func justJoinEmployment(offer *types.ParsedOffer, obj map[string]any) {
	byContract := make(map[types.ContractType]any)
	var labels []string
	for _, et := range list(obj["employmentTypes"]) {
		label := str(field(et, "type"))
		contract, ok := normalize.ParseContract(label)
		if !ok {
			continue
		}
		labels = append(labels, string(contract))
		if _, seen := byContract[contract]; !seen {
			byContract[contract] = et
		}
	}
	offer.MainContract, offer.Contracts = normalize.InferContracts(strings.Join(labels, " "))

	for _, contract := range offer.Contracts {
		et := byContract[contract]
		lo, hi := num(field(et, "from")), num(field(et, "to"))
		if lo == nil && hi == nil {
			continue
		}
		offer.SalaryMin, offer.SalaryMax = lo, hi
		offer.FillSinglePointSalary()
		offer.SalaryCurrency = normalize.ParseCurrency(str(field(et, "currency")))
		if offer.SalaryCurrency == "" {
			offer.SalaryCurrency = offer.Source.HomeCurrency()
		}
		offer.SalaryPeriod = normalize.ParsePeriod(str(field(et, "unit")))
		if offer.SalaryPeriod == "" {
			offer.SalaryPeriod = types.PeriodMonth
		}
		return
	}
}

func justJoinSkills(v any, provenance string) []types.Skill {
	var skills []types.Skill
	for _, item := range list(v) {
		name := str(field(item, "name"))
		if name == "" {
			name = str(item)
		}
		if name == "" {
			continue
		}
		skill := types.Skill{Name: name, Provenance: provenance}
		if lvl := num(field(item, "level")); lvl != nil {
			skill.Ordinal = int(*lvl)
			skill.Proficiency = justJoinSkillLevels[skill.Ordinal]
		}
		skills = append(skills, skill)
	}
	return skills
}
