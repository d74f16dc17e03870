package normalize

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Normalize maps a parsed offer to canonical form. It never fails: unrecognised values
// fall back to unknown or empty. Normalize(Normalize(x).ParsedOffer) equals Normalize(x).
func Normalize(p types.ParsedOffer) types.NormalizedOffer {
	n, _ := normalize(p)
	return n
}

// Normalizer is Normalize with the fallbacks it applied reported to a logger.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer; a nil logger discards fallback notes.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize runs Normalize and logs each fallback at debug level.
func (n *Normalizer) Normalize(p types.ParsedOffer) types.NormalizedOffer {
	out, notes := normalize(p)
	for _, note := range notes {
		n.logger.Debug("normalization fallback",
			zap.String("source", string(p.Source)),
			zap.String("external_id", p.ExternalID),
			zap.String("detail", note))
	}
	return out
}

func normalize(p types.ParsedOffer) (types.NormalizedOffer, []string) {
	var notes []string
	out := types.ParsedOffer{
		Source:      p.Source,
		ExternalID:  strings.TrimSpace(p.ExternalID),
		Title:       CleanLine(p.Title),
		Description: CleanText(p.Description),
		CompanyName: CleanLine(p.CompanyName),
		CityName:    CleanLine(p.CityName),
		URL:         strings.TrimSpace(p.URL),
		ApplyURL:    strings.TrimSpace(p.ApplyURL),
		Remote:      copyBool(p.Remote),
		Active:      copyBool(p.Active),
	}
	if p.PublishedAt != nil {
		t := p.PublishedAt.UTC()
		out.PublishedAt = &t
	}

	out.Level = CoerceLevel(p.Level)
	if out.Level == types.LevelUnknown && strings.TrimSpace(string(p.Level)) != "" {
		notes = append(notes, "unrecognised level "+string(p.Level))
	}

	found := make(map[types.ContractType]bool)
	for _, c := range p.Contracts {
		coerced, ok := ParseContract(string(c))
		if !ok {
			notes = append(notes, "unrecognised contract "+string(c))
			continue
		}
		found[coerced] = true
	}
	main, mainOK := ParseContract(string(p.MainContract))
	if mainOK {
		found[main] = true
	}
	out.Contracts = orderContracts(found)
	switch {
	case mainOK:
		out.MainContract = main
	case len(out.Contracts) > 0:
		out.MainContract = out.Contracts[0]
	}

	var minMonthly, maxMonthly *int
	if p.HasSalary() {
		out.SalaryMin, out.SalaryMax = copyFloat(p.SalaryMin), copyFloat(p.SalaryMax)
		out.FillSinglePointSalary()
		if *out.SalaryMin > *out.SalaryMax {
			out.SalaryMin, out.SalaryMax = out.SalaryMax, out.SalaryMin
		}
		out.SalaryCurrency = ParseCurrency(p.SalaryCurrency)
		if out.SalaryCurrency == "" {
			if p.SalaryCurrency != "" {
				notes = append(notes, "unrecognised currency "+p.SalaryCurrency)
			}
			out.SalaryCurrency = p.Source.HomeCurrency()
		}
		out.SalaryPeriod = ParsePeriod(string(p.SalaryPeriod))
		if out.SalaryPeriod == "" {
			if p.SalaryPeriod != "" {
				notes = append(notes, "unrecognised salary period "+string(p.SalaryPeriod))
			}
			out.SalaryPeriod = types.PeriodMonth
		}
		minMonthly = MonthlyAmount(*out.SalaryMin, out.SalaryPeriod)
		maxMonthly = MonthlyAmount(*out.SalaryMax, out.SalaryPeriod)
		if minMonthly == nil || maxMonthly == nil {
			notes = append(notes, "monthly salary out of range")
		}
	}

	out.Skills = NormalizeSkills(p.Skills)

	return types.NormalizedOffer{
		ParsedOffer:      out,
		SalaryMinMonthly: minMonthly,
		SalaryMaxMonthly: maxMonthly,
		Tags:             TagsFromSkills(out.Skills),
	}, notes
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
