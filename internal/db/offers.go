package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/offer-ingest/internal/types"
)

const offerColumns = `o.id, o.source, o.external_id, o.title, o.description,
	o.company_id, COALESCE(c.name, ''), o.city_id, COALESCE(ci.name, ''),
	o.remote, o.level, o.contracts, o.main_contract,
	o.salary_min, o.salary_max, o.salary_currency, o.salary_period,
	o.salary_min_monthly, o.salary_max_monthly, o.url, o.apply_url, o.tags,
	o.active, o.published_at, o.last_seen_at, o.deactivated_at, o.created_at, o.updated_at`

const offerFrom = ` FROM offers o
	LEFT JOIN companies c ON c.id = o.company_id
	LEFT JOIN cities ci ON ci.id = o.city_id`

// -----------------------------------------------------------------------------
// Upsert
// -----------------------------------------------------------------------------

// ApplyNormalized merges a normalized record into existing (nil for a new row) and returns
// the row to persist. Every field is overwritten; only the lifecycle timestamps carry over.
//
// Active comes from the record when set, otherwise it is true: a record without an expiry
// signal was just observed live, which also revives a row the stale sweep deactivated. LastSeenAt advances to now only when the result is
// active and never moves backwards. DeactivatedAt is set on an active to inactive transition.
// Company and city ids are left for the caller to resolve.
func ApplyNormalized(existing *Offer, n types.NormalizedOffer, now time.Time) *Offer {
	o := &Offer{
		Source:     n.Source,
		ExternalID: n.ExternalID,
		Active:     true,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	wasActive := false
	if existing != nil {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		o.LastSeenAt = existing.LastSeenAt
		o.DeactivatedAt = existing.DeactivatedAt
		wasActive = existing.Active
	}

	o.Title = n.Title
	o.Description = n.Description
	o.CompanyName = n.CompanyName
	o.CityName = n.CityName
	o.Remote = n.Remote
	o.Level = n.Level
	o.Contracts = append([]types.ContractType(nil), n.Contracts...)
	o.MainContract = n.MainContract
	o.SalaryMin = n.SalaryMin
	o.SalaryMax = n.SalaryMax
	o.SalaryCurrency = n.SalaryCurrency
	o.SalaryPeriod = n.SalaryPeriod
	o.SalaryMinMonthly = n.SalaryMinMonthly
	o.SalaryMaxMonthly = n.SalaryMaxMonthly
	o.URL = n.URL
	o.ApplyURL = n.ApplyURL
	o.Tags = append([]string(nil), n.Tags...)
	o.Skills = append([]types.Skill(nil), n.Skills...)
	o.PublishedAt = n.PublishedAt

	o.Active = n.Active == nil || *n.Active
	if o.Active && now.After(o.LastSeenAt) {
		o.LastSeenAt = now
	}

	switch {
	case o.Active:
		o.DeactivatedAt = nil
	case existing == nil || wasActive:
		deactivated := now
		o.DeactivatedAt = &deactivated
	}

	o.UpdatedAt = now
	return o
}

// UpsertOffer writes a normalized offer keyed by (source, external id) in one transaction.
// A concurrent insert of the same key surfaces as *DuplicateKeyError.
func (db *DB) UpsertOffer(ctx context.Context, n types.NormalizedOffer) (*Offer, error) {
	if n.Source == "" || n.ExternalID == "" {
		return nil, fmt.Errorf("offer key requires source and external id")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := getOffer(ctx, tx, true, `o.source = $1 AND o.external_id = $2`, string(n.Source), n.ExternalID)
	if err != nil {
		return nil, err
	}

	offer := ApplyNormalized(existing, n, db.now())

	if n.CompanyName != "" {
		company, err := findOrCreateCompany(ctx, tx, n.CompanyName)
		if err != nil {
			return nil, err
		}
		offer.CompanyID = &company.ID
		offer.CompanyName = company.Name
	}
	if n.CityName != "" {
		city, err := findOrCreateCity(ctx, tx, n.CityName)
		if err != nil {
			return nil, err
		}
		offer.CityID = &city.ID
		offer.CityName = city.Name
	}

	if existing == nil {
		args := append(offerArgs(offer), offer.CreatedAt)
		err = tx.QueryRow(ctx,
			`INSERT INTO offers (source, external_id, title, description, company_id, city_id,
				remote, level, contracts, main_contract, salary_min, salary_max, salary_currency,
				salary_period, salary_min_monthly, salary_max_monthly, url, apply_url, tags,
				active, published_at, last_seen_at, deactivated_at, updated_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25)
			 RETURNING id`,
			args...,
		).Scan(&offer.ID)
		if err != nil {
			return nil, asDuplicateKey(fmt.Errorf("failed to insert offer: %w", err), n.Source, n.ExternalID)
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE offers SET title = $3, description = $4, company_id = $5, city_id = $6,
				remote = $7, level = $8, contracts = $9, main_contract = $10, salary_min = $11,
				salary_max = $12, salary_currency = $13, salary_period = $14,
				salary_min_monthly = $15, salary_max_monthly = $16, url = $17, apply_url = $18,
				tags = $19, active = $20, published_at = $21, last_seen_at = $22,
				deactivated_at = $23, updated_at = $24
			 WHERE source = $1 AND external_id = $2`,
			offerArgs(offer)...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update offer: %w", err)
		}
	}

	if err := replaceSkills(ctx, tx, offer.ID, offer.Skills); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, asDuplicateKey(fmt.Errorf("failed to commit offer: %w", err), n.Source, n.ExternalID)
	}
	return offer, nil
}

// offerArgs returns the positional arguments shared by the insert and update statements.
func offerArgs(o *Offer) []any {
	contracts := make([]string, 0, len(o.Contracts))
	for _, c := range o.Contracts {
		contracts = append(contracts, string(c))
	}
	tags := make([]string, 0, len(o.Tags))
	tags = append(tags, o.Tags...)

	return []any{
		string(o.Source), o.ExternalID, o.Title, o.Description, o.CompanyID, o.CityID,
		o.Remote, string(o.Level), contracts, string(o.MainContract), o.SalaryMin, o.SalaryMax,
		o.SalaryCurrency, string(o.SalaryPeriod), o.SalaryMinMonthly, o.SalaryMaxMonthly,
		o.URL, o.ApplyURL, tags, o.Active, o.PublishedAt, o.LastSeenAt, o.DeactivatedAt,
		o.UpdatedAt,
	}
}

// replaceSkills deletes the offer's skills and inserts the new list in order.
func replaceSkills(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, skills []types.Skill) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM offer_skills WHERE offer_id = $1`, offerID)
	for i, s := range skills {
		batch.Queue(
			`INSERT INTO offer_skills (offer_id, position, name, proficiency, ordinal, provenance)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			offerID, i, s.Name, s.Proficiency, s.Ordinal, s.Provenance,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to replace skills: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Deactivation
// -----------------------------------------------------------------------------

// DeactivateByExternalID marks the offer inactive. It reports whether the offer exists;
// deactivating an already inactive offer keeps its original deactivation time.
func (db *DB) DeactivateByExternalID(ctx context.Context, source types.Source, externalID string) (bool, error) {
	return db.deactivateWhere(ctx, `source = $1 AND external_id = $2`, string(source), externalID)
}

// DeactivateByURL marks every offer of source stored under url inactive.
func (db *DB) DeactivateByURL(ctx context.Context, source types.Source, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	return db.deactivateWhere(ctx, `source = $1 AND url = $2`, string(source), url)
}

func (db *DB) deactivateWhere(ctx context.Context, where string, args ...any) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE offers SET
			deactivated_at = CASE WHEN active THEN NOW() ELSE deactivated_at END,
			active = FALSE,
			updated_at = NOW()
		 WHERE `+where,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate offer: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// GetOfferByKey retrieves an offer with its skills. It returns nil when absent.
func (db *DB) GetOfferByKey(ctx context.Context, source types.Source, externalID string) (*Offer, error) {
	offer, err := getOffer(ctx, db.pool, false, `o.source = $1 AND o.external_id = $2`, string(source), externalID)
	if err != nil || offer == nil {
		return offer, err
	}
	if offer.Skills, err = loadSkills(ctx, db.pool, offer.ID); err != nil {
		return nil, err
	}
	return offer, nil
}

// ListOffers retrieves offers with optional filters, most recently seen first.
// Skills are not loaded.
func (db *DB) ListOffers(ctx context.Context, filters OfferFilters) ([]Offer, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + offerColumns + offerFrom + ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Source != "" {
		query += fmt.Sprintf(" AND o.source = $%d", argNum)
		args = append(args, string(filters.Source))
		argNum++
	}
	if filters.Active != nil {
		query += fmt.Sprintf(" AND o.active = $%d", argNum)
		args = append(args, *filters.Active)
		argNum++
	}
	if filters.Tag != "" {
		query += fmt.Sprintf(" AND $%d = ANY(o.tags)", argNum)
		args = append(args, filters.Tag)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY o.last_seen_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

func getOffer(ctx context.Context, q querier, forUpdate bool, where string, args ...any) (*Offer, error) {
	query := `SELECT ` + offerColumns + offerFrom + ` WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE OF o`
	}
	offer, err := scanOffer(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return offer, nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var (
		o                                   Offer
		source, level, mainContract, period string
		contracts                           []string
	)
	err := row.Scan(
		&o.ID, &source, &o.ExternalID, &o.Title, &o.Description,
		&o.CompanyID, &o.CompanyName, &o.CityID, &o.CityName,
		&o.Remote, &level, &contracts, &mainContract,
		&o.SalaryMin, &o.SalaryMax, &o.SalaryCurrency, &period,
		&o.SalaryMinMonthly, &o.SalaryMaxMonthly, &o.URL, &o.ApplyURL, &o.Tags,
		&o.Active, &o.PublishedAt, &o.LastSeenAt, &o.DeactivatedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan offer: %w", err)
	}
	o.Source = types.Source(source)
	o.Level = types.Level(level)
	o.MainContract = types.ContractType(mainContract)
	o.SalaryPeriod = types.SalaryPeriod(period)
	for _, c := range contracts {
		o.Contracts = append(o.Contracts, types.ContractType(c))
	}
	return &o, nil
}

func loadSkills(ctx context.Context, q querier, offerID uuid.UUID) ([]types.Skill, error) {
	rows, err := q.Query(ctx,
		`SELECT name, proficiency, ordinal, provenance
		 FROM offer_skills WHERE offer_id = $1 ORDER BY position`,
		offerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	defer rows.Close()

	var skills []types.Skill
	for rows.Next() {
		var s types.Skill
		if err := rows.Scan(&s.Name, &s.Proficiency, &s.Ordinal, &s.Provenance); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	return skills, nil
}
