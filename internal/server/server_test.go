package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/discovery"
	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/server/ratelimit"
	"github.com/jonathan/offer-ingest/internal/types"
)

type fakeStore struct {
	pingErr error
	offers  []db.Offer
	filters db.OfferFilters
	history []db.HistoryRecord
	listErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListOffers(_ context.Context, filters db.OfferFilters) ([]db.Offer, error) {
	f.filters = filters
	return f.offers, f.listErr
}

func (f *fakeStore) GetOfferByKey(_ context.Context, source types.Source, externalID string) (*db.Offer, error) {
	for i := range f.offers {
		if f.offers[i].Source == source && f.offers[i].ExternalID == externalID {
			return &f.offers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListHistory(_ context.Context, source types.Source, externalID string) ([]db.HistoryRecord, error) {
	var out []db.HistoryRecord
	for _, h := range f.history {
		if h.Source == source && h.ExternalID == externalID {
			out = append(out, h)
		}
	}
	return out, nil
}

type enqueued struct {
	url    string
	source types.Source
}

type fakeEnqueuer struct {
	calls []enqueued
	err   error
}

func (f *fakeEnqueuer) EnqueueURL(_ context.Context, url string, source types.Source) error {
	f.calls = append(f.calls, enqueued{url, source})
	return f.err
}

type fakeArchiver struct {
	archived []string
}

func (f *fakeArchiver) Archive(_ context.Context, source types.Source, externalID string, reason db.ArchiveReason) error {
	if externalID == "missing" {
		return fmt.Errorf("%w: %s/%s", db.ErrOfferNotFound, source, externalID)
	}
	f.archived = append(f.archived, string(source)+"/"+externalID+"/"+string(reason))
	return nil
}

type testServer struct {
	handler  http.Handler
	store    *fakeStore
	enqueuer *fakeEnqueuer
	archiver *fakeArchiver
}

func newTestServer(opts Options) *testServer {
	ts := &testServer{
		store: &fakeStore{
			offers: []db.Offer{
				{ID: uuid.New(), Source: types.SourceJustJoin, ExternalID: "acme-go-dev", Title: "Go Developer", Active: true},
			},
			history: []db.HistoryRecord{
				{ID: uuid.New(), Source: types.SourceJustJoin, ExternalID: "old-offer", Reason: db.ReasonRetention, Snapshot: json.RawMessage(`{}`)},
			},
		},
		enqueuer: &fakeEnqueuer{},
		archiver: &fakeArchiver{},
	}
	ts.handler = New(ts.store, ts.enqueuer, ts.archiver, opts, zap.NewNop()).Handler()
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	ts.store.pingErr = errors.New("connection refused")
	w = ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decodeBody(t, w)["status"])
}

func TestListOffers(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFilter db.OfferFilters
	}{
		{"defaults", "", http.StatusOK, db.OfferFilters{Limit: 50}},
		{"all filters", "?source=justjoin&active=true&tag=golang&limit=10", http.StatusOK,
			db.OfferFilters{Source: types.SourceJustJoin, Tag: "golang", Limit: 10}},
		{"limit capped", "?limit=100000", http.StatusOK, db.OfferFilters{Limit: maxListLimit}},
		{"bad limit falls back", "?limit=-3", http.StatusOK, db.OfferFilters{Limit: 50}},
		{"unknown source", "?source=linkedin", http.StatusBadRequest, db.OfferFilters{}},
		{"bad active", "?active=maybe", http.StatusBadRequest, db.OfferFilters{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(Options{})
			w := ts.do(http.MethodGet, "/offers"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decodeBody(t, w)["error"])
				return
			}
			assert.Equal(t, tt.wantFilter.Source, ts.store.filters.Source)
			assert.Equal(t, tt.wantFilter.Tag, ts.store.filters.Tag)
			assert.Equal(t, tt.wantFilter.Limit, ts.store.filters.Limit)
			assert.EqualValues(t, 1, decodeBody(t, w)["count"])
		})
	}

	t.Run("active filter", func(t *testing.T) {
		ts := newTestServer(Options{})
		ts.do(http.MethodGet, "/offers?active=false", "")
		require.NotNil(t, ts.store.filters.Active)
		assert.False(t, *ts.store.filters.Active)
	})

	t.Run("store error", func(t *testing.T) {
		ts := newTestServer(Options{})
		ts.store.listErr = errors.New("boom")
		w := ts.do(http.MethodGet, "/offers", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		ts := newTestServer(Options{})
		ts.store.offers = nil
		w := ts.do(http.MethodGet, "/offers", "")
		assert.Contains(t, w.Body.String(), `"offers":[]`)
	})
}

func TestGetOffer(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(http.MethodGet, "/offers/JUSTJOIN/acme-go-dev", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Go Developer", body["title"])
	assert.Equal(t, "JUSTJOIN", body["source"])

	w = ts.do(http.MethodGet, "/offers/JUSTJOIN/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/offers/MONSTER/acme-go-dev", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOfferHistory(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(http.MethodGet, "/offers/justjoin/old-offer/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	history, ok := decodeBody(t, w)["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	assert.Equal(t, "RETENTION", history[0].(map[string]any)["reason"])

	w = ts.do(http.MethodGet, "/offers/justjoin/acme-go-dev/history", "")
	assert.Contains(t, w.Body.String(), `"history":[]`)
}

func TestArchiveOffer(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(http.MethodPost, "/offers/JUSTJOIN/acme-go-dev/archive", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"JUSTJOIN/acme-go-dev/MANUAL"}, ts.archiver.archived)

	w = ts.do(http.MethodPost, "/offers/JUSTJOIN/missing/archive", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/offers/JUSTJOIN/acme-go-dev/archive", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEnqueue(t *testing.T) {
	rules := discovery.CanonicalRules{
		Host:         "justjoin.it",
		HostAliases:  []string{"www.justjoin.it"},
		DropQuery:    true,
		OfferPattern: regexp.MustCompile(`^https://justjoin\.it/job-offer/[^/?#]+$`),
	}
	ts := newTestServer(Options{Canonical: map[types.Source]Canonicalizer{types.SourceJustJoin: rules}})

	t.Run("canonicalised", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/enqueue", `{"source":"justjoin","url":"https://www.justjoin.it/job-offer/acme-go?utm=x"}`)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, "https://justjoin.it/job-offer/acme-go", decodeBody(t, w)["url"])
		assert.Equal(t, enqueued{"https://justjoin.it/job-offer/acme-go", types.SourceJustJoin}, ts.enqueuer.calls[len(ts.enqueuer.calls)-1])
	})

	t.Run("no rules keeps url", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/enqueue", `{"source":"NOFLUFF","url":"https://nofluffjobs.com/pl/job/x?a=1"}`)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "https://nofluffjobs.com/pl/job/x?a=1", decodeBody(t, w)["url"])
	})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown source", `{"source":"indeed","url":"https://indeed.com/x"}`},
		{"missing url", `{"source":"PRACUJ"}`},
		{"undetectable source", `{"url":"https://example.com/jobs/1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/enqueue", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("source detected from host", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/enqueue", `{"url":"https://justjoin.it/job-offer/acme-go"}`)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, types.SourceJustJoin, ts.enqueuer.calls[len(ts.enqueuer.calls)-1].source)
	})

	t.Run("rejected message", func(t *testing.T) {
		ts := newTestServer(Options{})
		ts.enqueuer.err = &queue.MessageError{Subject: queue.SubjectURL, Message: "invalid url message"}
		w := ts.do(http.MethodPost, "/enqueue", `{"source":"PRACUJ","url":"ftp://x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("queue down", func(t *testing.T) {
		ts := newTestServer(Options{})
		ts.enqueuer.err = errors.New("nats: no responders available for request")
		w := ts.do(http.MethodPost, "/enqueue", `{"source":"PRACUJ","url":"https://www.pracuj.pl/praca/x,oferta,1"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled: true,
		Default: ratelimit.Rule{Limit: 1000, Window: time.Minute},
		Rules:   map[string]ratelimit.Rule{ratelimit.RouteEnqueue: {Limit: 2, Window: time.Hour}},
	})
	defer limiter.Stop()
	ts := newTestServer(Options{Limiter: limiter})

	body := `{"source":"PRACUJ","url":"https://www.pracuj.pl/praca/x,oferta,1"}`
	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodPost, "/enqueue", body)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodPost, "/enqueue", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeBody(t, w)["error"])
	assert.Len(t, ts.enqueuer.calls, 2)

	// Reads are not limited per route.
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/offers", "").Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "url", Message: "required"}, http.StatusBadRequest},
		{"message", fmt.Errorf("publish: %w", &queue.MessageError{Subject: "s", Message: "m"}), http.StatusBadRequest},
		{"unknown source", fmt.Errorf("%w: %q", types.ErrUnknownSource, "x"), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: JUSTJOIN/x", db.ErrOfferNotFound), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(&fakeStore{}, &fakeEnqueuer{}, &fakeArchiver{}, Options{Addr: "127.0.0.1:0"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestJSONResponse(t *testing.T) {
	s := New(&fakeStore{}, &fakeEnqueuer{}, &fakeArchiver{}, Options{}, zap.NewNop())
	w := httptest.NewRecorder()
	s.jsonResponse(w, http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"n":1}`, strings.TrimSpace(w.Body.String()))
	assert.True(t, bytes.HasSuffix(w.Body.Bytes(), []byte("\n")))
}
