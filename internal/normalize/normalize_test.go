package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/offer-ingest/internal/types"
)

func TestInferLevel(t *testing.T) {
	tests := []struct {
		name     string
		texts    []string
		expected types.Level
	}{
		{"senior english", []string{"Senior Go Developer"}, types.LevelSenior},
		{"regular", []string{"Regular Java Developer"}, types.LevelMid},
		{"junior", []string{"Junior QA Engineer"}, types.LevelJunior},
		{"polish junior", []string{"Młodszy programista"}, types.LevelJunior},
		{"polish intern", []string{"Stażysta w dziale IT"}, types.LevelInternship},
		{"highest wins", []string{"Mid/Senior Backend Engineer"}, types.LevelSenior},
		{"lead", []string{"Team Lead"}, types.LevelLead},
		{"c-level", []string{"CTO"}, types.LevelLead},
		{"across texts", []string{"Backend Developer", "senior"}, types.LevelSenior},
		{"no signal", []string{"Software Engineer"}, types.LevelUnknown},
		{"empty", nil, types.LevelUnknown},
		{"word boundary", []string{"Middleware Engineer"}, types.LevelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferLevel(tt.texts...))
		})
	}
}

func TestInferContracts(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		expectedMain types.ContractType
		expectedAll  []types.ContractType
	}{
		{"employment", "Umowa o pracę", types.ContractEmployment, []types.ContractType{types.ContractEmployment}},
		{"b2b", "B2B", types.ContractB2B, []types.ContractType{types.ContractB2B}},
		{"mandate", "zlecenie", types.ContractMandate, []types.ContractType{types.ContractMandate}},
		{"specific task", "umowa o dzieło", types.ContractSpecificTask, []types.ContractType{types.ContractSpecificTask}},
		{"b2b preferred", "UoP, B2B", types.ContractB2B, []types.ContractType{types.ContractB2B, types.ContractEmployment}},
		{"api code", "mandate_contract", types.ContractMandate, []types.ContractType{types.ContractMandate}},
		{"permanent", "permanent", types.ContractEmployment, []types.ContractType{types.ContractEmployment}},
		{"nothing", "full remote", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, all := InferContracts(tt.input)
			assert.Equal(t, tt.expectedMain, main)
			assert.Equal(t, tt.expectedAll, all)
		})
	}
}

func TestMonthlyAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		period   types.SalaryPeriod
		expected *int
	}{
		{"hourly", 50, types.PeriodHour, types.Int(8400)},
		{"yearly min", 120000, types.PeriodYear, types.Int(10000)},
		{"yearly max", 180000, types.PeriodYear, types.Int(15000)},
		{"daily", 1000, types.PeriodDay, types.Int(21750)},
		{"weekly", 1000, types.PeriodWeek, types.Int(4345)},
		{"monthly", 12345.4, types.PeriodMonth, types.Int(12345)},
		{"half rounds up", 10, types.PeriodDay, types.Int(218)},
		{"unknown period is monthly", 9000, "", types.Int(9000)},
		{"zero dropped", 0, types.PeriodMonth, nil},
		{"negative dropped", -5, types.PeriodHour, nil},
		{"above ceiling dropped", 2_000_000, types.PeriodMonth, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MonthlyAmount(tt.value, tt.period))
		})
	}
}

func TestParseSalaryText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		min, max float64
		currency string
		period   types.SalaryPeriod
	}{
		{"spaced range", "10 000 - 15 000 PLN", 10000, 15000, "PLN", types.PeriodMonth},
		{"hourly zloty", "160-180 zł/h netto", 160, 180, "PLN", types.PeriodHour},
		{"k suffix", "15k-20k EUR", 15000, 20000, "EUR", types.PeriodMonth},
		{"single value", "8 500 zł brutto", 8500, 8500, "PLN", types.PeriodMonth},
		{"yearly usd", "Up to 120 000 USD per year", 120000, 120000, "USD", types.PeriodYear},
		{"decimal comma", "1 500,50 PLN", 1500.5, 1500.5, "PLN", types.PeriodMonth},
		{"home currency fallback", "12000 - 18000 / mies.", 12000, 18000, "PLN", types.PeriodMonth},
		{"polish range words", "od 9000 do 11000 zł miesięcznie", 9000, 11000, "PLN", types.PeriodMonth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSalaryText(tt.text, "PLN")
			require.True(t, ok)
			require.NotNil(t, got.Min)
			require.NotNil(t, got.Max)
			assert.InDelta(t, tt.min, *got.Min, 0.001)
			assert.InDelta(t, tt.max, *got.Max, 0.001)
			assert.Equal(t, tt.currency, got.Currency)
			assert.Equal(t, tt.period, got.Period)
		})
	}

	t.Run("no numbers", func(t *testing.T) {
		_, ok := ParseSalaryText("Wynagrodzenie do negocjacji", "PLN")
		assert.False(t, ok)
	})
}

func TestParseCurrency(t *testing.T) {
	assert.Equal(t, "PLN", ParseCurrency("zł"))
	assert.Equal(t, "PLN", ParseCurrency("pln"))
	assert.Equal(t, "EUR", ParseCurrency("€"))
	assert.Equal(t, "USD", ParseCurrency("$"))
	assert.Equal(t, "JPY", ParseCurrency("jpy"))
	assert.Equal(t, "", ParseCurrency("??"))
	assert.Equal(t, "", ParseCurrency(""))
}

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, types.PeriodHour, ParsePeriod("HOUR"))
	assert.Equal(t, types.PeriodHour, ParsePeriod("per hour"))
	assert.Equal(t, types.PeriodDay, ParsePeriod("dziennie"))
	assert.Equal(t, types.PeriodYear, ParsePeriod("annually"))
	assert.Equal(t, types.PeriodMonth, ParsePeriod("month"))
	assert.Equal(t, types.SalaryPeriod(""), ParsePeriod("fortnight"))
}

func TestPlausibleTag(t *testing.T) {
	tests := []struct {
		tag      string
		expected bool
	}{
		{"Go", true},
		{"Kubernetes", true},
		{"Node.js", true},
		{".NET", true},
		{"Middleware", true},
		{"B2B", false},
		{"English", false},
		{"język angielski", false},
		{"10000 PLN", false},
		{"Senior", false},
		{"Umowa o pracę", false},
		{"ISO 27001", false},
		{strings.Repeat("x", 41), false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.expected, PlausibleTag(tt.tag))
		})
	}
}

func TestNormalizeSkills(t *testing.T) {
	input := []types.Skill{
		{Name: "js", Proficiency: "advanced", Ordinal: 4, Provenance: types.ProvenanceRequired},
		{Name: "JavaScript"},
		{Name: "Docker"},
		{Name: "docker", Proficiency: "regular", Ordinal: 3},
		{Name: "English", Proficiency: "B2"},
		{Name: "  k8s  "},
	}

	got := NormalizeSkills(input)

	require.Len(t, got, 3)
	assert.Equal(t, types.Skill{Name: "JavaScript", Proficiency: "advanced", Ordinal: 4, Provenance: types.ProvenanceRequired}, got[0])
	assert.Equal(t, types.Skill{Name: "Docker", Proficiency: "regular", Ordinal: 3}, got[1])
	assert.Equal(t, "Kubernetes", got[2].Name)
	assert.Equal(t, []string{"JavaScript", "Docker", "Kubernetes"}, TagsFromSkills(got))
}

func TestNormalizeSkills_PreservesFirstSeenCasing(t *testing.T) {
	got := NormalizeSkills([]types.Skill{{Name: "gRPC"}, {Name: "GRPC"}})
	require.Len(t, got, 1)
	assert.Equal(t, "gRPC", got[0].Name)
}

func TestNormalize(t *testing.T) {
	published := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	in := types.ParsedOffer{
		Source:       types.SourceTheProtocol,
		ExternalID:   " 123 ",
		Title:        "  Senior   Go Developer ",
		CompanyName:  "Acme\nSp. z o.o.",
		Level:        "Senior",
		Contracts:    []types.ContractType{"uop", "b2b", "freelance"},
		SalaryMin:    types.Float(120000),
		SalaryPeriod: "year",
		Skills:       []types.Skill{{Name: "golang"}, {Name: "Go"}, {Name: "PLN 20000"}},
		PublishedAt:  &published,
	}

	got := Normalize(in)

	assert.Equal(t, "123", got.ExternalID)
	assert.Equal(t, "Senior Go Developer", got.Title)
	assert.Equal(t, "Acme Sp. z o.o.", got.CompanyName)
	assert.Equal(t, types.LevelSenior, got.Level)
	assert.Equal(t, []types.ContractType{types.ContractB2B, types.ContractEmployment}, got.Contracts)
	assert.Equal(t, types.ContractB2B, got.MainContract)
	require.NotNil(t, got.SalaryMax)
	assert.Equal(t, 120000.0, *got.SalaryMax)
	assert.Equal(t, "PLN", got.SalaryCurrency)
	assert.Equal(t, types.PeriodYear, got.SalaryPeriod)
	assert.Equal(t, types.Int(10000), got.SalaryMinMonthly)
	assert.Equal(t, types.Int(10000), got.SalaryMaxMonthly)
	assert.Equal(t, []string{"Go"}, got.Tags)
	assert.Nil(t, got.Active, "active stays unknown when the parser did not decide")

	// input is not mutated
	assert.Nil(t, in.SalaryMax)
	assert.Equal(t, " 123 ", in.ExternalID)
}

func TestNormalize_NoSalaryLeavesCurrencyEmpty(t *testing.T) {
	got := Normalize(types.ParsedOffer{Source: types.SourcePracuj, ExternalID: "1", Title: "QA", SalaryCurrency: "PLN"})
	assert.Empty(t, got.SalaryCurrency)
	assert.Empty(t, got.SalaryPeriod)
	assert.Nil(t, got.SalaryMinMonthly)
}

func TestNormalize_SwapsInvertedRange(t *testing.T) {
	got := Normalize(types.ParsedOffer{
		Source: types.SourceJustJoin, ExternalID: "x", Title: "Dev",
		SalaryMin: types.Float(20000), SalaryMax: types.Float(15000), SalaryCurrency: "pln",
	})
	assert.Equal(t, 15000.0, *got.SalaryMin)
	assert.Equal(t, 20000.0, *got.SalaryMax)
	assert.Equal(t, types.PeriodMonth, got.SalaryPeriod)
}

func TestNormalize_Idempotent(t *testing.T) {
	published := time.Date(2024, 11, 5, 8, 30, 0, 0, time.UTC)
	offers := []types.ParsedOffer{
		{
			Source: types.SourceNoFluff, ExternalID: "go-dev", Title: "Go dev",
			Level: "mid / regular", Contracts: []types.ContractType{"B2B", "permanent"},
			SalaryMin: types.Float(50), SalaryMax: types.Float(50), SalaryCurrency: "zł", SalaryPeriod: "h",
			Skills:      []types.Skill{{Name: "k8s", Proficiency: "junior"}, {Name: "Kubernetes"}, {Name: "ts"}},
			Remote:      types.Bool(true),
			Active:      types.Bool(false),
			PublishedAt: &published,
		},
		{
			Source: types.SourcePracuj, ExternalID: "1004123", Title: "Specjalista ds. danych",
			Description: "Line one\r\n\r\n\r\n\r\n  Line   two  ",
			MainContract: "zlecenie",
			SalaryMax:    types.Float(3_000_000),
		},
		{Source: types.SourceJustJoin, ExternalID: "empty", Title: ""},
	}

	for _, offer := range offers {
		t.Run(offer.ExternalID, func(t *testing.T) {
			once := Normalize(offer)
			twice := Normalize(once.ParsedOffer)
			assert.Equal(t, once, twice)
		})
	}
}

func TestNormalizer_LogsFallbacks(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewNormalizer(zap.New(core))

	got := n.Normalize(types.ParsedOffer{
		Source: types.SourceJustJoin, ExternalID: "x", Title: "Dev",
		Level: "wizard", SalaryMin: types.Float(100), SalaryPeriod: "fortnight",
	})

	assert.Equal(t, types.LevelUnknown, got.Level)
	assert.Equal(t, types.PeriodMonth, got.SalaryPeriod)
	assert.GreaterOrEqual(t, logs.FilterMessage("normalization fallback").Len(), 2)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b\n\nc", CleanText("  a \t b \r\n\r\n\r\n\r\nc  "))
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "x y", CleanLine(" x\n  y "))
}
