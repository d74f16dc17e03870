package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/offer-ingest/internal/types"
)

// DefaultSweepBatch is used when a sweep is given a non-positive batch size.
const DefaultSweepBatch = 500

// -----------------------------------------------------------------------------
// Staleness
// -----------------------------------------------------------------------------

// DeactivateStale deactivates active offers of source not seen since cutoff.
// Each batch is its own short statement so ingestion is never blocked for a whole sweep.
func (db *DB) DeactivateStale(ctx context.Context, source types.Source, cutoff time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		result, err := db.pool.Exec(ctx,
			`UPDATE offers SET active = FALSE, deactivated_at = NOW(), updated_at = NOW()
			 WHERE id IN (
				SELECT id FROM offers
				WHERE source = $1 AND active AND last_seen_at < $2
				ORDER BY last_seen_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			 )`,
			string(source), cutoff, batch,
		)
		if err != nil {
			return total, fmt.Errorf("failed to deactivate stale offers: %w", err)
		}
		n := int(result.RowsAffected())
		total += n
		if n < batch {
			return total, nil
		}
	}
}

// -----------------------------------------------------------------------------
// Archival
// -----------------------------------------------------------------------------

// ArchiveInactive moves offers inactive since before cutoff into offer_history.
func (db *DB) ArchiveInactive(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := db.archiveBatch(ctx, cutoff, batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}

func (db *DB) archiveBatch(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id FROM offers
		 WHERE NOT active AND COALESCE(deactivated_at, last_seen_at) < $1
		 ORDER BY COALESCE(deactivated_at, last_seen_at)
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		cutoff, batch,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to select inactive offers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return 0, fmt.Errorf("failed to select inactive offers: %w", err)
	}

	for _, id := range ids {
		if err := archiveOffer(ctx, tx, id, ReasonRetention); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit archive batch: %w", err)
	}
	return len(ids), nil
}

// ArchiveOffer snapshots the offer into offer_history and deletes it in one transaction.
func (db *DB) ArchiveOffer(ctx context.Context, id uuid.UUID, reason ArchiveReason) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := archiveOffer(ctx, tx, id, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

func archiveOffer(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason ArchiveReason) error {
	offer, err := getOffer(ctx, tx, true, `o.id = $1`, id)
	if err != nil {
		return err
	}
	if offer == nil {
		return fmt.Errorf("%w: %s", ErrOfferNotFound, id)
	}
	if offer.Skills, err = loadSkills(ctx, tx, id); err != nil {
		return err
	}

	snapshot, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to marshal offer snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO offer_history (offer_id, source, external_id, reason, snapshot)
		 VALUES ($1, $2, $3, $4, $5)`,
		offer.ID, string(offer.Source), offer.ExternalID, string(reason), snapshot,
	); err != nil {
		return fmt.Errorf("failed to write offer history: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM offers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete archived offer: %w", err)
	}
	return nil
}

// ListHistory returns the archival records for a natural key, newest first.
func (db *DB) ListHistory(ctx context.Context, source types.Source, externalID string) ([]HistoryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, offer_id, source, external_id, reason, snapshot, archived_at
		 FROM offer_history WHERE source = $1 AND external_id = $2
		 ORDER BY archived_at DESC`,
		string(source), externalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var (
			r           HistoryRecord
			src, reason string
		)
		if err := rows.Scan(&r.ID, &r.OfferID, &src, &r.ExternalID, &reason, &r.Snapshot, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		r.Source = types.Source(src)
		r.Reason = ArchiveReason(reason)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}
