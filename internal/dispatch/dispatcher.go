// Package dispatch runs the per-message state machine: fetch the offer document, parse it,
// normalize it and write it through the ingest boundary, classifying every failure.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/parsing"
	"github.com/jonathan/offer-ingest/internal/types"
)

// SnippetLength bounds the response excerpt logged for dropped messages.
const SnippetLength = 200

// Outcome is the terminal state of one message.
type Outcome string

const (
	Committed           Outcome = "committed"
	Retried             Outcome = "retried"
	DeadLettered        Outcome = "dead_lettered"
	DroppedNonRetryable Outcome = "dropped"
)

// Result reports how a message was handled.
type Result struct {
	Outcome Outcome
	// Class is set when the message hit a failure, including benign ones.
	Class  Class
	Reason string
	Err    error
}

// Ingester is the write side of the canonical store.
type Ingester interface {
	Ingest(ctx context.Context, source types.Source, externalID string, n types.NormalizedOffer) (*db.Offer, error)
	Deactivate(ctx context.Context, source types.Source, urlOrExternalID string) (bool, error)
}

// Dispatcher handles queue messages one at a time.
type Dispatcher struct {
	registry   *Registry
	ingester   Ingester
	normalizer *normalize.Normalizer
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Dispatcher. timeout bounds fetch, parse and upsert of one message;
// zero means no bound beyond the caller's context.
func New(registry *Registry, ingester Ingester, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:   registry,
		ingester:   ingester,
		normalizer: normalize.NewNormalizer(logger),
		timeout:    timeout,
		logger:     logger,
	}
}

// HandleURL fetches, parses and stores the offer behind msg.URL.
func (d *Dispatcher) HandleURL(ctx context.Context, msg types.URLMessage) Result {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	log := d.logger.With(zap.String("source", string(msg.Source)), zap.String("url", msg.URL))

	route, err := d.registry.Route(msg.Source)
	if err != nil {
		return d.fail(ctx, log, msg.Source, msg.URL, err)
	}

	doc, err := route.Fetch.Fetch(ctx, msg.URL)
	if err != nil {
		return d.fail(ctx, log, msg.Source, msg.URL, err)
	}

	parsed, err := route.Parse(doc.Body, doc.URL)
	if err != nil {
		return d.fail(ctx, log, msg.Source, msg.URL, err)
	}

	externalID := d.registry.ExternalID(msg.Source, msg.URL)
	if externalID == "" {
		externalID = parsed.ExternalID
	}
	if externalID == "" {
		return d.fail(ctx, log, msg.Source, msg.URL, fmt.Errorf("no external id for %s", msg.URL))
	}
	if parsed.URL == "" {
		parsed.URL = d.registry.CanonicalURL(msg.Source, msg.URL)
	}

	return d.store(ctx, log.With(zap.String("external_id", externalID)), msg.Source, msg.URL, externalID, *parsed)
}

// HandleOffer stores a fully formed offer without fetching anything.
func (d *Dispatcher) HandleOffer(ctx context.Context, msg types.OfferMessage) Result {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	offer := msg.Offer
	log := d.logger.With(
		zap.String("source", string(offer.Source)),
		zap.String("external_id", offer.ExternalID),
		zap.String("url", offer.URL),
	)
	if !offer.Source.Valid() {
		return d.fail(ctx, log, offer.Source, offer.URL, fmt.Errorf("%w: %q", ErrUnsupportedSource, offer.Source))
	}
	offer.FillSinglePointSalary()
	return d.store(ctx, log, offer.Source, offer.URL, offer.ExternalID, offer)
}

func (d *Dispatcher) store(ctx context.Context, log *zap.Logger, source types.Source, rawURL, externalID string, parsed types.ParsedOffer) Result {
	parsed.Source = source
	n := d.normalizer.Normalize(parsed)
	if _, err := d.ingester.Ingest(ctx, source, externalID, n); err != nil {
		return d.fail(ctx, log, source, rawURL, err)
	}
	log.Debug("offer stored", zap.Bool("active", n.Active == nil || *n.Active))
	return Result{Outcome: Committed, Reason: "stored"}
}

// fail maps err to a terminal state and performs the side effects that state requires.
func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, source types.Source, rawURL string, err error) Result {
	class := Classify(err)
	log = log.With(zap.String("class", string(class)))

	switch class {
	case Duplicate:
		log.Debug("duplicate offer absorbed", zap.Error(err))
		return Result{Outcome: Committed, Class: class, Reason: "duplicate"}

	case Gone:
		found, derr := d.ingester.Deactivate(ctx, source, rawURL)
		if derr != nil {
			if Classify(derr) == Transient {
				log.Info("deactivation failed, retrying", zap.Error(derr))
				return Result{Outcome: Retried, Class: Transient, Reason: "deactivation failed", Err: derr}
			}
			log.Warn("deactivation failed, dropping", zap.Error(derr))
			return Result{Outcome: DroppedNonRetryable, Class: NonRetryable, Reason: "deactivation failed", Err: derr}
		}
		log.Info("offer gone", zap.Bool("deactivated", found), zap.String("cause", err.Error()))
		return Result{Outcome: Committed, Class: class, Reason: "gone"}

	case Transient:
		log.Info("transient failure, retrying", zap.Error(err))
		return Result{Outcome: Retried, Class: class, Reason: "transient", Err: err}
	}

	log.Warn("dropping message",
		zap.Error(err),
		zap.String("snippet", parsing.Snippet(snippetOf(err), SnippetLength)),
	)
	return Result{Outcome: DroppedNonRetryable, Class: NonRetryable, Reason: "non-retryable", Err: err}
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}
