// Package queue carries ingestion work over NATS JetStream: stream topology, publishing,
// pull-consumer workers and the retry and dead-letter policy.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Stream and subject names.
const (
	StreamName     = "INGEST"
	ConsumerName   = "ingest-workers"
	SubjectURL     = "ingest.offer.url"
	SubjectOffer   = "ingest.offer.full"
	SubjectAll     = "ingest.offer.>"
	DeadStreamName = "INGEST_DLQ"
	DeadPrefix     = "ingest.dead."
)

// DuplicateWindow is how long JetStream remembers message ids for duplicate suppression.
const DuplicateWindow = 2 * time.Hour

// DeadLetterMaxAge bounds how long dead letters are kept.
const DeadLetterMaxAge = 14 * 24 * time.Hour

// Connect dials NATS with unbounded reconnects and returns a JetStream context.
func Connect(url string, timeout time.Duration, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url,
		nats.Name("offer-ingest"),
		nats.Timeout(timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// Topology holds the tunables of the ingest stream and its consumer.
type Topology struct {
	// AckWait must exceed the per-message timeout or messages are redelivered mid-flight.
	AckWait       time.Duration
	MaxAckPending int
}

func (t Topology) streams() []*nats.StreamConfig {
	return []*nats.StreamConfig{
		{
			Name:       StreamName,
			Subjects:   []string{SubjectURL, SubjectOffer},
			Retention:  nats.WorkQueuePolicy,
			Storage:    nats.FileStorage,
			Duplicates: DuplicateWindow,
		},
		{
			Name:      DeadStreamName,
			Subjects:  []string{DeadPrefix + ">"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    DeadLetterMaxAge,
		},
	}
}

func (t Topology) consumer() *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       t.AckWait,
		MaxDeliver:    -1,
		MaxAckPending: t.MaxAckPending,
		FilterSubject: SubjectAll,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
}

// EnsureTopology creates or updates the streams and the durable pull consumer.
func EnsureTopology(ctx context.Context, js nats.JetStreamContext, t Topology, logger *zap.Logger) error {
	for _, cfg := range t.streams() {
		_, err := js.StreamInfo(cfg.Name, nats.Context(ctx))
		switch {
		case errors.Is(err, nats.ErrStreamNotFound):
			if _, err := js.AddStream(cfg, nats.Context(ctx)); err != nil {
				return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
			logger.Info("created stream", zap.String("stream", cfg.Name))
		case err != nil:
			return fmt.Errorf("failed to inspect stream %s: %w", cfg.Name, err)
		default:
			if _, err := js.UpdateStream(cfg, nats.Context(ctx)); err != nil {
				return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
			}
		}
	}

	cfg := t.consumer()
	_, err := js.ConsumerInfo(StreamName, cfg.Durable, nats.Context(ctx))
	switch {
	case errors.Is(err, nats.ErrConsumerNotFound):
		if _, err := js.AddConsumer(StreamName, cfg, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		logger.Info("created consumer", zap.String("consumer", cfg.Durable))
	case err != nil:
		return fmt.Errorf("failed to inspect consumer: %w", err)
	default:
		if _, err := js.UpdateConsumer(StreamName, cfg, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to update consumer: %w", err)
		}
	}
	return nil
}

// kindOf names the message kind carried on subject, used for dead-letter subjects.
func kindOf(subject string) string {
	switch subject {
	case SubjectURL:
		return "url"
	case SubjectOffer:
		return "offer"
	default:
		return strings.ReplaceAll(strings.TrimPrefix(subject, "ingest."), ".", "_")
	}
}

// DeadLetterSubject is where a message from subject lands after exhausting its deliveries.
func DeadLetterSubject(subject string) string {
	return DeadPrefix + kindOf(subject)
}
