package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/offer-ingest/internal/types"
)

// OfferKeyConstraint is the unique constraint on (source, external_id).
const OfferKeyConstraint = "offers_source_external_id_key"

const uniqueViolation = "23505"

// ErrOfferNotFound is returned when an operation targets a missing offer.
var ErrOfferNotFound = errors.New("offer not found")

// DuplicateKeyError reports a concurrent insert of the same (source, external_id).
type DuplicateKeyError struct {
	Source     types.Source
	ExternalID string
	Cause      error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate offer %s/%s: %v", e.Source, e.ExternalID, e.Cause)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Cause
}

// asDuplicateKey converts a unique violation on OfferKeyConstraint into *DuplicateKeyError.
// Violations of any other constraint are returned unchanged.
func asDuplicateKey(err error, source types.Source, externalID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == OfferKeyConstraint {
		return &DuplicateKeyError{Source: source, ExternalID: externalID, Cause: err}
	}
	return err
}
