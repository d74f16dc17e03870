package queue

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/jonathan/offer-ingest/internal/dispatch"
	"github.com/jonathan/offer-ingest/internal/types"
)

// fakeJetStream records published messages. Methods other than PublishMsg panic.
type fakeJetStream struct {
	nats.JetStreamContext

	mu        sync.Mutex
	published []*nats.Msg
	duplicate bool
	err       error
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, m)
	return &nats.PubAck{Stream: StreamName, Sequence: uint64(len(f.published)), Duplicate: f.duplicate}, nil
}

type fakeHandler struct {
	urls   []types.URLMessage
	offers []types.OfferMessage
	result dispatch.Result
}

func (f *fakeHandler) HandleURL(_ context.Context, msg types.URLMessage) dispatch.Result {
	f.urls = append(f.urls, msg)
	return f.result
}

func (f *fakeHandler) HandleOffer(_ context.Context, msg types.OfferMessage) dispatch.Result {
	f.offers = append(f.offers, msg)
	return f.result
}
