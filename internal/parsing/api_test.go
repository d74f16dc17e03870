package parsing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/offer-ingest/internal/types"
)

const justJoinPayload = `{
  "slug": "acme-senior-go-developer-warszawa",
  "title": "Senior Go Developer",
  "companyName": "Acme",
  "city": "Warszawa",
  "workplaceType": "remote",
  "experienceLevel": "senior",
  "body": "<p>Join us.</p>",
  "applyUrl": "https://acme.example/apply",
  "publishedAt": "2025-01-10T10:00:00.000Z",
  "expiredAt": "2025-02-10T10:00:00.000Z",
  "employmentTypes": [
    {"type": "permanent", "from": 18000, "to": 24000, "currency": "pln", "unit": "month", "gross": true},
    {"type": "b2b", "from": 140, "to": 180, "currency": "pln", "unit": "hour", "gross": false}
  ],
  "requiredSkills": [{"name": "Go", "level": 4}, {"name": "PostgreSQL", "level": 3}],
  "niceToHaveSkills": [{"name": "k8s", "level": 2}]
}`

func TestParseJustJoin(t *testing.T) {
	fixClock(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))

	offer, err := ParseJustJoin([]byte(justJoinPayload), "https://justjoin.it/job-offer/acme-senior-go-developer-warszawa")
	require.NoError(t, err)

	assert.Equal(t, "acme-senior-go-developer-warszawa", offer.ExternalID)
	assert.Equal(t, "Senior Go Developer", offer.Title)
	assert.Equal(t, "Acme", offer.CompanyName)
	assert.Equal(t, "Warszawa", offer.CityName)
	assert.Equal(t, "Join us.", offer.Description)
	assert.Equal(t, types.LevelSenior, offer.Level)
	require.NotNil(t, offer.Remote)
	assert.True(t, *offer.Remote)

	assert.Equal(t, types.ContractB2B, offer.MainContract)
	assert.Equal(t, []types.ContractType{types.ContractB2B, types.ContractEmployment}, offer.Contracts)
	assert.Equal(t, 140.0, *offer.SalaryMin)
	assert.Equal(t, 180.0, *offer.SalaryMax)
	assert.Equal(t, "PLN", offer.SalaryCurrency)
	assert.Equal(t, types.PeriodHour, offer.SalaryPeriod)

	require.Len(t, offer.Skills, 3)
	assert.Equal(t, types.Skill{Name: "Go", Proficiency: "advanced", Ordinal: 4, Provenance: types.ProvenanceRequired}, offer.Skills[0])
	assert.Equal(t, types.ProvenanceOptional, offer.Skills[2].Provenance)

	require.NotNil(t, offer.Active)
	assert.True(t, *offer.Active)
}

func TestParseJustJoin_Envelope(t *testing.T) {
	offer, err := ParseJustJoin([]byte(`{"data": {"slug": "x-1", "title": "QA", "employmentTypes": [{"type": "b2b", "from": null, "to": null}]}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "x-1", offer.ExternalID)
	assert.False(t, offer.HasSalary())
	assert.Equal(t, types.ContractB2B, offer.MainContract)
}

func TestParseJustJoin_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		expired bool
	}{
		{"malformed json", `{"slug": `, false},
		{"not an object", `[1, 2]`, false},
		{"missing slug", `{"title": "Go Developer"}`, false},
		{"missing title", `{"slug": "abc"}`, false},
		{"expired status", `{"slug": "abc", "title": "Go", "status": "EXPIRED"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJustJoin([]byte(tt.doc), "https://justjoin.it/job-offer/abc")
			require.Error(t, err)
			if tt.expired {
				assert.ErrorIs(t, err, ErrExpired)
				return
			}
			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr))
			assert.Equal(t, types.SourceJustJoin, parseErr.Source)
		})
	}
}

const noFluffPayload = `{
  "id": "backend-developer-acme-warszawa-xk2",
  "title": "Backend Developer",
  "company": {"name": "Acme", "url": "/company/acme"},
  "basics": {"category": "backend", "seniority": ["Mid"], "technology": "Java"},
  "location": {"places": [{"city": "Remote"}, {"city": "Warszawa"}], "fullyRemote": false},
  "essentials": {"originalSalary": {"currency": "PLN", "types": {
    "permanent": {"period": "Month", "range": [15000, 19000]},
    "zlecenie": {"period": "Month", "range": []}
  }}},
  "requirements": {
    "musts": [{"value": "Java", "type": "main"}, {"value": "Spring", "type": "main"}],
    "nices": [{"value": "Kafka", "type": "main"}],
    "description": "<p>Requirements text</p>"
  },
  "details": {"description": "<p>Details</p>"},
  "posted": 1736500000000,
  "status": "PUBLISHED"
}`

func TestParseNoFluff(t *testing.T) {
	offer, err := ParseNoFluff([]byte(noFluffPayload), "https://nofluffjobs.com/pl/job/backend-developer-acme-warszawa-xk2")
	require.NoError(t, err)

	assert.Equal(t, "backend-developer-acme-warszawa-xk2", offer.ExternalID)
	assert.Equal(t, "Acme", offer.CompanyName)
	assert.Equal(t, "Warszawa", offer.CityName)
	assert.Equal(t, "Details", offer.Description)
	assert.Equal(t, types.LevelMid, offer.Level)
	require.NotNil(t, offer.Remote)
	assert.False(t, *offer.Remote)

	assert.Equal(t, types.ContractEmployment, offer.MainContract)
	assert.Equal(t, []types.ContractType{types.ContractEmployment, types.ContractMandate}, offer.Contracts)
	assert.Equal(t, 15000.0, *offer.SalaryMin)
	assert.Equal(t, 19000.0, *offer.SalaryMax)
	assert.Equal(t, types.PeriodMonth, offer.SalaryPeriod)

	var names []string
	for _, s := range offer.Skills {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Java", "Java", "Spring", "Kafka"}, names)

	require.NotNil(t, offer.PublishedAt)
	assert.Equal(t, int64(1736500000000), offer.PublishedAt.UnixMilli())
	require.NotNil(t, offer.Active)
	assert.True(t, *offer.Active, "no expiry field means live")
}

func TestParseNoFluff_ClosedStatus(t *testing.T) {
	_, err := ParseNoFluff([]byte(`{"id": "a", "title": "B", "status": "archived"}`), "")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseNoFluff_MissingAnchor(t *testing.T) {
	_, err := ParseNoFluff([]byte(`{"postings": []}`), "")
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Snippet, "postings")
}
