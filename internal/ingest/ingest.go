// Package ingest is the boundary the rest of the system uses to write offers into the
// canonical store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/types"
)

// ErrInvalidKey is returned when an offer key is missing a source or external id.
var ErrInvalidKey = errors.New("invalid offer key")

// Store is the subset of *db.DB the service needs.
type Store interface {
	UpsertOffer(ctx context.Context, n types.NormalizedOffer) (*db.Offer, error)
	DeactivateByExternalID(ctx context.Context, source types.Source, externalID string) (bool, error)
	DeactivateByURL(ctx context.Context, source types.Source, url string) (bool, error)
	GetOfferByKey(ctx context.Context, source types.Source, externalID string) (*db.Offer, error)
	ArchiveOffer(ctx context.Context, id uuid.UUID, reason db.ArchiveReason) error
}

// Resolver maps an offer URL to its natural key and stored URL form.
type Resolver interface {
	ExternalID(source types.Source, rawURL string) string
	CanonicalURL(source types.Source, rawURL string) string
}

// Service implements ingest, deactivate and archive on top of a Store.
type Service struct {
	store    Store
	resolver Resolver
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(store Store, resolver Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, resolver: resolver, logger: logger}
}

// Ingest upserts n under (source, externalID). The key arguments take precedence over
// whatever key the record itself carries.
func (s *Service) Ingest(ctx context.Context, source types.Source, externalID string, n types.NormalizedOffer) (*db.Offer, error) {
	if !source.Valid() || strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("%w: %q/%q", ErrInvalidKey, source, externalID)
	}
	n.Source = source
	n.ExternalID = externalID
	return s.store.UpsertOffer(ctx, n)
}

// Deactivate marks the offer identified by a URL or an external id inactive. URLs are
// resolved to an external id first and fall back to a match on the stored URL.
// It reports whether any offer matched.
func (s *Service) Deactivate(ctx context.Context, source types.Source, urlOrExternalID string) (bool, error) {
	key := strings.TrimSpace(urlOrExternalID)
	if !source.Valid() || key == "" {
		return false, fmt.Errorf("%w: %q/%q", ErrInvalidKey, source, urlOrExternalID)
	}

	if !isURL(key) {
		return s.store.DeactivateByExternalID(ctx, source, key)
	}

	if id := s.resolver.ExternalID(source, key); id != "" {
		found, err := s.store.DeactivateByExternalID(ctx, source, id)
		if err != nil || found {
			return found, err
		}
	}

	candidates := []string{s.resolver.CanonicalURL(source, key)}
	if candidates[0] != key {
		candidates = append(candidates, key)
	}
	for _, u := range candidates {
		found, err := s.store.DeactivateByURL(ctx, source, u)
		if err != nil || found {
			return found, err
		}
	}

	s.logger.Debug("no offer to deactivate",
		zap.String("source", string(source)),
		zap.String("url", key),
	)
	return false, nil
}

// Archive removes the offer from the canonical store into its history.
func (s *Service) Archive(ctx context.Context, source types.Source, externalID string, reason db.ArchiveReason) error {
	offer, err := s.store.GetOfferByKey(ctx, source, externalID)
	if err != nil {
		return err
	}
	if offer == nil {
		return fmt.Errorf("%w: %s/%s", db.ErrOfferNotFound, source, externalID)
	}
	if err := s.store.ArchiveOffer(ctx, offer.ID, reason); err != nil {
		return err
	}
	s.logger.Info("offer archived",
		zap.String("source", string(source)),
		zap.String("external_id", externalID),
		zap.String("reason", string(reason)),
	)
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
