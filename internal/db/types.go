package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Offer is a canonical offer row with its resolved company, city and skills.
type Offer struct {
	ID               uuid.UUID            `json:"id"`
	Source           types.Source         `json:"source"`
	ExternalID       string               `json:"external_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description,omitempty"`
	CompanyID        *uuid.UUID           `json:"company_id,omitempty"`
	CompanyName      string               `json:"company_name,omitempty"`
	CityID           *uuid.UUID           `json:"city_id,omitempty"`
	CityName         string               `json:"city_name,omitempty"`
	Remote           *bool                `json:"remote,omitempty"`
	Level            types.Level          `json:"level,omitempty"`
	Contracts        []types.ContractType `json:"contracts,omitempty"`
	MainContract     types.ContractType   `json:"main_contract,omitempty"`
	SalaryMin        *float64             `json:"salary_min,omitempty"`
	SalaryMax        *float64             `json:"salary_max,omitempty"`
	SalaryCurrency   string               `json:"salary_currency,omitempty"`
	SalaryPeriod     types.SalaryPeriod   `json:"salary_period,omitempty"`
	SalaryMinMonthly *int                 `json:"salary_min_monthly,omitempty"`
	SalaryMaxMonthly *int                 `json:"salary_max_monthly,omitempty"`
	URL              string               `json:"url,omitempty"`
	ApplyURL         string               `json:"apply_url,omitempty"`
	Tags             []string             `json:"tags,omitempty"`
	Skills           []types.Skill        `json:"skills,omitempty"`
	Active           bool                 `json:"active"`
	PublishedAt      *time.Time           `json:"published_at,omitempty"`
	LastSeenAt       time.Time            `json:"last_seen_at"`
	DeactivatedAt    *time.Time           `json:"deactivated_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// City is a canonical city record
type City struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	NameNormalized string    `json:"name_normalized"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArchiveReason tags a history record.
type ArchiveReason string

const (
	ReasonRetention ArchiveReason = "RETENTION"
	ReasonManual    ArchiveReason = "MANUAL"
)

// HistoryRecord is an immutable snapshot of an archived offer.
type HistoryRecord struct {
	ID         uuid.UUID       `json:"id"`
	OfferID    uuid.UUID       `json:"offer_id"`
	Source     types.Source    `json:"source"`
	ExternalID string          `json:"external_id"`
	Reason     ArchiveReason   `json:"reason"`
	Snapshot   json.RawMessage `json:"snapshot"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// OfferFilters holds optional filters for listing offers
type OfferFilters struct {
	Source types.Source
	Active *bool
	Tag    string
	Limit  int
}
