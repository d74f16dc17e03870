package types

import "time"

// Skill is one skill requirement attached to an offer.
type Skill struct {
	Name        string `json:"name" validate:"required"`
	Proficiency string `json:"proficiency,omitempty"`
	// Ordinal is the proficiency on a source-specific scale; 0 means unknown.
	Ordinal    int    `json:"ordinal,omitempty"`
	Provenance string `json:"provenance,omitempty"`
}

// Skill provenance tags.
const (
	ProvenanceRequired = "required"
	ProvenanceOptional = "nice_to_have"
	ProvenanceTag      = "tag"
	ProvenanceText     = "text"
)

// ParsedOffer is the source-agnostic record a parser produces from one fetched document.
type ParsedOffer struct {
	Source         Source         `json:"source" validate:"required"`
	ExternalID     string         `json:"external_id" validate:"required"`
	Title          string         `json:"title" validate:"required"`
	Description    string         `json:"description,omitempty"`
	CompanyName    string         `json:"company_name,omitempty"`
	CityName       string         `json:"city_name,omitempty"`
	Remote         *bool          `json:"remote,omitempty"`
	Level          Level          `json:"level,omitempty"`
	Contracts      []ContractType `json:"contracts,omitempty"`
	MainContract   ContractType   `json:"main_contract,omitempty"`
	SalaryMin      *float64       `json:"salary_min,omitempty"`
	SalaryMax      *float64       `json:"salary_max,omitempty"`
	SalaryCurrency string         `json:"salary_currency,omitempty"`
	SalaryPeriod   SalaryPeriod   `json:"salary_period,omitempty"`
	URL            string         `json:"url,omitempty"`
	ApplyURL       string         `json:"apply_url,omitempty"`
	Skills         []Skill        `json:"skills,omitempty" validate:"dive"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	Active         *bool          `json:"active,omitempty"`
}

// FillSinglePointSalary copies a lone salary bound into the missing one.
func (p *ParsedOffer) FillSinglePointSalary() {
	switch {
	case p.SalaryMin != nil && p.SalaryMax == nil:
		v := *p.SalaryMin
		p.SalaryMax = &v
	case p.SalaryMax != nil && p.SalaryMin == nil:
		v := *p.SalaryMax
		p.SalaryMin = &v
	}
}

// HasSalary reports whether at least one salary bound is present.
func (p *ParsedOffer) HasSalary() bool {
	return p.SalaryMin != nil || p.SalaryMax != nil
}

// NormalizedOffer is a ParsedOffer in canonical form plus the fields derived from it.
type NormalizedOffer struct {
	ParsedOffer
	SalaryMinMonthly *int     `json:"salary_min_monthly,omitempty"`
	SalaryMaxMonthly *int     `json:"salary_max_monthly,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
