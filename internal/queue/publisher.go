package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/types"
)

// DefaultPublishTimeout bounds a publish when the caller's context has no deadline.
const DefaultPublishTimeout = 10 * time.Second

// Publisher writes ingestion work onto the INGEST stream.
type Publisher struct {
	js      nats.JetStreamContext
	timeout time.Duration
	logger  *zap.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{js: js, timeout: DefaultPublishTimeout, logger: logger}
}

// URLMessageID is the JetStream message id of a URL message. Re-enqueueing the same URL
// inside DuplicateWindow is a no-op.
func URLMessageID(url string, source types.Source) string {
	return string(source) + "|" + url
}

// EnqueueURL publishes a URL message for the detail fetch path.
func (p *Publisher) EnqueueURL(ctx context.Context, url string, source types.Source) error {
	msg := types.URLMessage{URL: url, Source: source}
	if err := msg.Validate(); err != nil {
		return &MessageError{Subject: SubjectURL, Message: "invalid url message", Cause: err}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode url message: %w", err)
	}

	m := nats.NewMsg(SubjectURL)
	m.Data = data
	m.Header.Set(nats.MsgIdHdr, URLMessageID(url, source))
	return p.publish(ctx, m)
}

// PublishOffer publishes a fully formed offer and returns its correlation id.
func (p *Publisher) PublishOffer(ctx context.Context, offer types.ParsedOffer) (string, error) {
	msg := types.OfferMessage{Offer: offer}
	if err := msg.Validate(); err != nil {
		return "", &MessageError{Subject: SubjectOffer, Message: "invalid offer message", Cause: err}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode offer message: %w", err)
	}

	correlationID := uuid.NewString()
	m := nats.NewMsg(SubjectOffer)
	m.Data = data
	m.Header.Set(nats.MsgIdHdr, correlationID)
	m.Header.Set(types.HeaderCorrelationID, correlationID)
	m.Header.Set(types.HeaderSource, string(offer.Source))
	m.Header.Set(types.HeaderExternalID, offer.ExternalID)
	if err := p.publish(ctx, m); err != nil {
		return "", err
	}
	return correlationID, nil
}

func (p *Publisher) publish(ctx context.Context, m *nats.Msg) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ack, err := p.js.PublishMsg(m, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.Subject, err)
	}
	if ack.Duplicate {
		p.logger.Debug("duplicate publish suppressed",
			zap.String("subject", m.Subject),
			zap.String("msg_id", m.Header.Get(nats.MsgIdHdr)))
	}
	return nil
}
