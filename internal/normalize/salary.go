package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Conversion factors to a monthly basis.
const (
	HoursPerMonth = 168.0
	DaysPerMonth  = 21.75
	WeeksPerMonth = 4.345
	MonthsPerYear = 12.0

	// MonthlyCeiling is the largest plausible monthly amount; anything above is treated as noise.
	MonthlyCeiling = 1_000_000
)

// SalaryRange is a salary found in free text.
type SalaryRange struct {
	Min      *float64
	Max      *float64
	Currency string
	Period   types.SalaryPeriod
}

// MonthlyAmount converts value quoted per period to whole monthly units, rounding half up.
// It returns nil when the result is not positive or exceeds MonthlyCeiling.
func MonthlyAmount(value float64, period types.SalaryPeriod) *int {
	var monthly float64
	switch period {
	case types.PeriodHour:
		monthly = value * HoursPerMonth
	case types.PeriodDay:
		monthly = value * DaysPerMonth
	case types.PeriodWeek:
		monthly = value * WeeksPerMonth
	case types.PeriodYear:
		monthly = value / MonthsPerYear
	default:
		monthly = value
	}
	rounded := math.Floor(monthly + 0.5)
	if math.IsNaN(rounded) || rounded <= 0 || rounded > MonthlyCeiling {
		return nil
	}
	return types.Int(int(rounded))
}

var periodFamilies = []struct {
	period  types.SalaryPeriod
	pattern *regexp.Regexp
}{
	{types.PeriodHour, wordPattern(`hour`, `hourly`, `h`, `hr`, `godz\.?`, `godzina`, `godzinę`, `godzine`, `godzinowo`, `per hour`)},
	{types.PeriodDay, wordPattern(`day`, `daily`, `md`, `dzień`, `dzien`, `dziennie`, `dniówka`, `dniowka`)},
	{types.PeriodWeek, wordPattern(`week`, `weekly`, `tydzień`, `tydzien`, `tygodniowo`)},
	{types.PeriodYear, wordPattern(`year`, `yearly`, `annual`, `annually`, `annum`, `rok`, `rocznie`, `roczne`)},
	{types.PeriodMonth, wordPattern(`month`, `monthly`, `mth`, `mies\.?`, `miesiąc`, `miesiac`, `miesięcznie`, `miesiecznie`)},
}

// ParsePeriod recognises a salary period token; it returns "" when none is present.
func ParsePeriod(s string) types.SalaryPeriod {
	upper := types.SalaryPeriod(strings.ToUpper(strings.TrimSpace(s)))
	switch upper {
	case types.PeriodHour, types.PeriodDay, types.PeriodWeek, types.PeriodMonth, types.PeriodYear:
		return upper
	}
	for _, family := range periodFamilies {
		if family.pattern.MatchString(s) {
			return family.period
		}
	}
	return ""
}

var currencySymbols = []struct {
	code    string
	pattern *regexp.Regexp
}{
	{"PLN", regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:pln|zł|zl|złotych)(?:$|[^\p{L}])`)},
	{"EUR", regexp.MustCompile(`(?i)€|(?:^|[^\p{L}])euro?(?:$|[^\p{L}])`)},
	{"USD", regexp.MustCompile(`(?i)\$|(?:^|[^\p{L}])usd(?:$|[^\p{L}])`)},
	{"GBP", regexp.MustCompile(`(?i)£|(?:^|[^\p{L}])gbp(?:$|[^\p{L}])`)},
	{"CHF", regexp.MustCompile(`(?i)(?:^|[^\p{L}])chf(?:$|[^\p{L}])`)},
}

var isoCode = regexp.MustCompile(`^[A-Za-z]{3}$`)

// ParseCurrency returns an ISO currency code for s, or "" when no currency is recognisable.
func ParseCurrency(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, c := range currencySymbols {
		if c.pattern.MatchString(trimmed) {
			return c.code
		}
	}
	if isoCode.MatchString(trimmed) {
		return strings.ToUpper(trimmed)
	}
	return ""
}

const amountPattern = `(\d{1,3}(?:[ \x{00a0}\x{202f}.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)\s*([kK]\b)?`

var (
	rangeRe  = regexp.MustCompile(amountPattern + `\s*(?:-|–|—|to|do)\s*` + amountPattern)
	singleRe = regexp.MustCompile(amountPattern)

	groupedThousands        = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
	groupedThousandsDecimal = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+[.,]\d{1,2}$`)
)

// ParseSalaryText extracts a salary range from free text such as "10 000 - 15 000 PLN netto/mies.".
// A single number fills both bounds. Missing currency falls back to homeCurrency and a missing period to MONTH.
func ParseSalaryText(text, homeCurrency string) (SalaryRange, bool) {
	var out SalaryRange
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		lo, okLo := parseAmount(m[1])
		hi, okHi := parseAmount(m[3])
		if !okLo || !okHi {
			return out, false
		}
		loK, hiK := m[2] != "", m[4] != ""
		if hiK && !loK && lo < 1000 {
			loK = true
		}
		if loK {
			lo *= 1000
		}
		if hiK {
			hi *= 1000
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		out.Min, out.Max = types.Float(lo), types.Float(hi)
	} else if m := singleRe.FindStringSubmatch(text); m != nil {
		v, ok := parseAmount(m[1])
		if !ok {
			return out, false
		}
		if m[2] != "" {
			v *= 1000
		}
		out.Min, out.Max = types.Float(v), types.Float(v)
	} else {
		return out, false
	}
	if *out.Max <= 0 {
		return SalaryRange{}, false
	}

	out.Currency = ParseCurrency(currencyToken(text))
	if out.Currency == "" {
		out.Currency = homeCurrency
	}
	out.Period = ParsePeriod(text)
	if out.Period == "" {
		out.Period = types.PeriodMonth
	}
	return out, true
}

// currencyToken returns the first currency mention in text.
func currencyToken(text string) string {
	for _, c := range currencySymbols {
		if loc := c.pattern.FindString(text); loc != "" {
			return loc
		}
	}
	return ""
}

func parseAmount(raw string) (float64, bool) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(raw)
	switch {
	case groupedThousands.MatchString(s):
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	case groupedThousandsDecimal.MatchString(s):
		last := strings.LastIndexAny(s, ".,")
		s = strings.NewReplacer(".", "", ",", "").Replace(s[:last]) + "." + s[last+1:]
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
