package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/offer-ingest/internal/dispatch"
	"github.com/jonathan/offer-ingest/internal/parsing"
	"github.com/jonathan/offer-ingest/internal/types"
)

// Dead-letter headers.
const (
	HeaderDeadReason     = "Dead-Reason"
	HeaderDeadDeliveries = "Dead-Deliveries"
	HeaderDeadSubject    = "Dead-Original-Subject"
)

// DefaultFetchWait bounds one pull request.
const DefaultFetchWait = 5 * time.Second

// Handler processes decoded messages.
type Handler interface {
	HandleURL(ctx context.Context, msg types.URLMessage) dispatch.Result
	HandleOffer(ctx context.Context, msg types.OfferMessage) dispatch.Result
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Workers   int
	Policy    RetryPolicy
	FetchWait time.Duration
}

// Consumer runs pull workers on the durable ingest consumer.
type Consumer struct {
	js      nats.JetStreamContext
	handler Handler
	opts    ConsumerOptions
	logger  *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(js nats.JetStreamContext, handler Handler, opts ConsumerOptions, logger *zap.Logger) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = DefaultFetchWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{js: js, handler: handler, opts: opts, logger: logger}
}

// Run blocks until ctx is cancelled. Each worker holds its own pull subscription and
// processes one message at a time; in-flight messages are finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	subs := make([]*nats.Subscription, 0, c.opts.Workers)
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()
	for i := 0; i < c.opts.Workers; i++ {
		sub, err := c.js.PullSubscribe(SubjectAll, ConsumerName, nats.Bind(StreamName, ConsumerName))
		if err != nil {
			return fmt.Errorf("failed to subscribe worker %d: %w", i, err)
		}
		subs = append(subs, sub)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		g.Go(func() error {
			return c.work(gctx, sub, i)
		})
	}
	c.logger.Info("consumer started", zap.Int("workers", c.opts.Workers))
	err := g.Wait()
	c.logger.Info("consumer stopped")
	return err
}

func (c *Consumer) work(ctx context.Context, sub *nats.Subscription, worker int) error {
	log := c.logger.With(zap.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchWait)
		msgs, err := sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Error("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			// Shutdown must not abort a message halfway; the dispatcher timeout still applies.
			c.process(context.WithoutCancel(ctx), log, m)
		}
	}
}

func (c *Consumer) process(ctx context.Context, log *zap.Logger, m *nats.Msg) {
	delivered := uint64(1)
	if md, err := m.Metadata(); err == nil {
		delivered = md.NumDelivered
	}

	res := c.route(ctx, m.Subject, m.Data)
	action := decideAction(res, delivered, c.opts.Policy)

	log = log.With(
		zap.String("subject", m.Subject),
		zap.Uint64("delivered", delivered),
		zap.String("outcome", string(res.Outcome)),
		zap.String("action", string(action.Kind)))
	if id := m.Header.Get(types.HeaderCorrelationID); id != "" {
		log = log.With(zap.String("correlation_id", id))
	}

	var err error
	switch action.Kind {
	case ActionAck:
		err = m.Ack()
	case ActionNak:
		err = m.Nak()
	case ActionNakDelay:
		err = m.NakWithDelay(action.Delay)
	case ActionTerm:
		err = m.Term()
	case ActionDeadLetter:
		if dlErr := c.deadLetter(ctx, m, res, delivered); dlErr != nil {
			log.Error("dead-letter publish failed, requeueing", zap.Error(dlErr))
			err = m.Nak()
			break
		}
		log.Warn("message dead-lettered", zap.String("reason", res.Reason), zap.Error(res.Err))
		err = m.Term()
	}
	if err != nil {
		log.Error("acknowledgement failed", zap.Error(err))
		return
	}
	log.Debug("message settled")
}

// route decodes the payload by subject and hands it to the handler.
func (c *Consumer) route(ctx context.Context, subject string, data []byte) dispatch.Result {
	switch subject {
	case SubjectURL:
		msg, err := DecodeURL(data)
		if err != nil {
			return c.rejected(subject, data, err)
		}
		return c.handler.HandleURL(ctx, msg)
	case SubjectOffer:
		msg, err := DecodeOffer(data)
		if err != nil {
			return c.rejected(subject, data, err)
		}
		return c.handler.HandleOffer(ctx, msg)
	default:
		return c.rejected(subject, data, &MessageError{Subject: subject, Message: "unknown subject"})
	}
}

func (c *Consumer) rejected(subject string, data []byte, err error) dispatch.Result {
	c.logger.Warn("dropping malformed message",
		zap.String("subject", subject),
		zap.String("snippet", parsing.Snippet(string(data), dispatch.SnippetLength)),
		zap.Error(err))
	return dispatch.Result{
		Outcome: dispatch.DroppedNonRetryable,
		Class:   dispatch.NonRetryable,
		Reason:  "malformed message",
		Err:     err,
	}
}

func (c *Consumer) deadLetter(ctx context.Context, m *nats.Msg, res dispatch.Result, delivered uint64) error {
	dl := nats.NewMsg(DeadLetterSubject(m.Subject))
	dl.Data = m.Data
	for k, v := range m.Header {
		if k == nats.MsgIdHdr {
			continue
		}
		dl.Header[k] = v
	}
	reason := res.Reason
	if res.Err != nil {
		reason = fmt.Sprintf("%s: %v", res.Reason, res.Err)
	}
	dl.Header.Set(HeaderDeadReason, reason)
	dl.Header.Set(HeaderDeadDeliveries, strconv.FormatUint(delivered, 10))
	dl.Header.Set(HeaderDeadSubject, m.Subject)

	pubCtx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
	defer cancel()
	if _, err := c.js.PublishMsg(dl, nats.Context(pubCtx)); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}
