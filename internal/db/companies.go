package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Company Methods
// -----------------------------------------------------------------------------

// FindOrCreateCompany finds an existing company by name or creates a new one
func (db *DB) FindOrCreateCompany(ctx context.Context, name string) (*Company, error) {
	return findOrCreateCompany(ctx, db.pool, name)
}

// GetCompanyByNormalizedName retrieves a company by its normalized name
func (db *DB) GetCompanyByNormalizedName(ctx context.Context, normalized string) (*Company, error) {
	var c Company
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, name_normalized, created_at, updated_at
		 FROM companies WHERE name_normalized = $1`,
		normalized,
	).Scan(&c.ID, &c.Name, &c.NameNormalized, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// findOrCreateCompany inserts the company if absent and then re-reads it, so concurrent
// upserts naming the same company converge on one row.
func findOrCreateCompany(ctx context.Context, q querier, name string) (*Company, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, fmt.Errorf("company name cannot be empty")
	}

	if _, err := q.Exec(ctx,
		`INSERT INTO companies (name, name_normalized)
		 VALUES ($1, $2)
		 ON CONFLICT (name_normalized) DO NOTHING`,
		name, normalized,
	); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	var c Company
	err := q.QueryRow(ctx,
		`SELECT id, name, name_normalized, created_at, updated_at
		 FROM companies WHERE name_normalized = $1`,
		normalized,
	).Scan(&c.ID, &c.Name, &c.NameNormalized, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// -----------------------------------------------------------------------------
// City Methods
// -----------------------------------------------------------------------------

// FindOrCreateCity finds an existing city by name or creates a new one
func (db *DB) FindOrCreateCity(ctx context.Context, name string) (*City, error) {
	return findOrCreateCity(ctx, db.pool, name)
}

func findOrCreateCity(ctx context.Context, q querier, name string) (*City, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, fmt.Errorf("city name cannot be empty")
	}

	if _, err := q.Exec(ctx,
		`INSERT INTO cities (name, name_normalized)
		 VALUES ($1, $2)
		 ON CONFLICT (name_normalized) DO NOTHING`,
		name, normalized,
	); err != nil {
		return nil, fmt.Errorf("failed to create city: %w", err)
	}

	var c City
	err := q.QueryRow(ctx,
		`SELECT id, name, name_normalized, created_at
		 FROM cities WHERE name_normalized = $1`,
		normalized,
	).Scan(&c.ID, &c.Name, &c.NameNormalized, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get city: %w", err)
	}
	return &c, nil
}
