package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/offer-ingest/internal/types"
)

func TestPublisher_EnqueueURL(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, nil)

	url := "https://theprotocol.it/szczegoly/praca/go-developer-krakow,oferta,1a2b3c4d"
	require.NoError(t, p.EnqueueURL(context.Background(), url, types.SourceTheProtocol))

	require.Len(t, js.published, 1)
	m := js.published[0]
	assert.Equal(t, SubjectURL, m.Subject)
	assert.Equal(t, "THEPROTOCOL|"+url, m.Header.Get(nats.MsgIdHdr))

	var msg types.URLMessage
	require.NoError(t, json.Unmarshal(m.Data, &msg))
	assert.Equal(t, types.URLMessage{URL: url, Source: types.SourceTheProtocol}, msg)

	decoded, err := DecodeURL(m.Data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestPublisher_EnqueueURL_Invalid(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, nil)

	err := p.EnqueueURL(context.Background(), "https://example.com/x", types.Source("INDEED"))
	var msgErr *MessageError
	require.True(t, errors.As(err, &msgErr))
	assert.Empty(t, js.published)

	err = p.EnqueueURL(context.Background(), "", types.SourceJustJoin)
	assert.True(t, errors.As(err, &msgErr))
	assert.Empty(t, js.published)
}

func TestPublisher_EnqueueURL_PublishError(t *testing.T) {
	js := &fakeJetStream{err: nats.ErrNoResponders}
	p := NewPublisher(js, nil)

	err := p.EnqueueURL(context.Background(), "https://justjoin.it/job-offer/acme-go", types.SourceJustJoin)
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestPublisher_DuplicateLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	js := &fakeJetStream{duplicate: true}
	p := NewPublisher(js, zap.New(core))

	require.NoError(t, p.EnqueueURL(context.Background(), "https://justjoin.it/job-offer/acme-go", types.SourceJustJoin))
	assert.Equal(t, 1, logs.FilterMessage("duplicate publish suppressed").Len())
}

func TestPublisher_PublishOffer(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, nil)

	offer := types.ParsedOffer{
		Source:     types.SourceNoFluff,
		ExternalID: "backend-acme-warszawa",
		Title:      "Backend Engineer",
		SalaryMin:  types.Float(20000),
	}
	id, err := p.PublishOffer(context.Background(), offer)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, js.published, 1)
	m := js.published[0]
	assert.Equal(t, SubjectOffer, m.Subject)
	assert.Equal(t, id, m.Header.Get(types.HeaderCorrelationID))
	assert.Equal(t, id, m.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "NOFLUFF", m.Header.Get(types.HeaderSource))
	assert.Equal(t, "backend-acme-warszawa", m.Header.Get(types.HeaderExternalID))

	decoded, err := DecodeOffer(m.Data)
	require.NoError(t, err)
	assert.Equal(t, offer.Title, decoded.Offer.Title)
	assert.Equal(t, 20000.0, *decoded.Offer.SalaryMin)
}

func TestPublisher_PublishOffer_Invalid(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, nil)

	_, err := p.PublishOffer(context.Background(), types.ParsedOffer{Source: types.SourceNoFluff, Title: "No id"})
	var msgErr *MessageError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, SubjectOffer, msgErr.Subject)
	assert.Empty(t, js.published)
}
