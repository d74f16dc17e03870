package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/parsing"
	"github.com/jonathan/offer-ingest/internal/types"
)

const offerURL = "https://theprotocol.it/szczegoly/praca/go-developer,oferta,abc-123"

const offerPage = `<!doctype html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Go Developer",
  "hiringOrganization": {"name": "Acme"},
  "employmentType": "CONTRACTOR",
  "skills": "golang, k8s",
  "baseSalary": {"currency": "PLN", "value": {"minValue": 18000, "maxValue": 24000, "unitText": "MONTH"}}
}
</script>
</head><body><h1>Go Developer</h1></body></html>`

type stubFetcher struct {
	doc   string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, pageURL string) (*fetch.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Document{URL: pageURL, Body: []byte(f.doc), ContentType: "text/html"}, nil
}

type fakeIngester struct {
	ingested    []types.NormalizedOffer
	keys        []string
	deactivated []string
	ingestErr   error
	deactErr    error
}

func (f *fakeIngester) Ingest(_ context.Context, source types.Source, externalID string, n types.NormalizedOffer) (*db.Offer, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	f.keys = append(f.keys, string(source)+"/"+externalID)
	f.ingested = append(f.ingested, n)
	return &db.Offer{ID: uuid.New(), Source: source, ExternalID: externalID}, nil
}

func (f *fakeIngester) Deactivate(_ context.Context, _ types.Source, urlOrExternalID string) (bool, error) {
	if f.deactErr != nil {
		return false, f.deactErr
	}
	f.deactivated = append(f.deactivated, urlOrExternalID)
	return true, nil
}

func newTestDispatcher(fetcher fetch.Fetcher, ingester Ingester, logger *zap.Logger) *Dispatcher {
	registry := NewRegistry()
	registry.Register(types.SourceTheProtocol, Route{
		Fetch:      fetcher,
		Parse:      parsing.ParseTheProtocol,
		ExternalID: parsing.OfertaID,
	})
	return New(registry, ingester, time.Second, logger)
}

func TestHandleURL_StoresParsedOffer(t *testing.T) {
	ingester := &fakeIngester{}
	d := newTestDispatcher(&stubFetcher{doc: offerPage}, ingester, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})

	assert.Equal(t, Committed, res.Outcome)
	assert.Empty(t, res.Class)
	require.Len(t, ingester.ingested, 1)
	assert.Equal(t, []string{"THEPROTOCOL/abc-123"}, ingester.keys)

	n := ingester.ingested[0]
	assert.Equal(t, "Go Developer", n.Title)
	assert.Equal(t, "Acme", n.CompanyName)
	assert.Equal(t, types.ContractB2B, n.MainContract)
	require.NotNil(t, n.SalaryMinMonthly)
	assert.Equal(t, 18000, *n.SalaryMinMonthly)
	assert.Equal(t, []string{"Go", "Kubernetes"}, n.Tags)
}

const remoteOfferPage = `<!doctype html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Backend Engineer",
  "hiringOrganization": {"name": "Acme"},
  "jobLocationType": "TELECOMMUTE",
  "baseSalary": {"currency": "PLN", "value": {"minValue": 10000, "maxValue": 15000, "unitText": "MONTH"}}
}
</script>
</head><body><h1>Backend Engineer</h1></body></html>`

func TestHandleURL_RemoteMonthlySalary(t *testing.T) {
	ingester := &fakeIngester{}
	d := newTestDispatcher(&stubFetcher{doc: remoteOfferPage}, ingester, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})

	assert.Equal(t, Committed, res.Outcome)
	require.Len(t, ingester.ingested, 1)

	n := ingester.ingested[0]
	assert.Equal(t, "Backend Engineer", n.Title)
	require.NotNil(t, n.Remote)
	assert.True(t, *n.Remote)
	require.NotNil(t, n.SalaryMin)
	assert.Equal(t, 10000.0, *n.SalaryMin)
	require.NotNil(t, n.SalaryMax)
	assert.Equal(t, 15000.0, *n.SalaryMax)
	assert.Equal(t, "PLN", n.SalaryCurrency)
	assert.Equal(t, types.PeriodMonth, n.SalaryPeriod)
	require.NotNil(t, n.SalaryMinMonthly)
	assert.Equal(t, 10000, *n.SalaryMinMonthly)
	require.NotNil(t, n.SalaryMaxMonthly)
	assert.Equal(t, 15000, *n.SalaryMaxMonthly)
	require.NotNil(t, n.Active)
	assert.True(t, *n.Active)
}

func TestHandleURL_Failures(t *testing.T) {
	tests := []struct {
		name            string
		fetchErr        error
		doc             string
		ingestErr       error
		wantOutcome     Outcome
		wantClass       Class
		wantDeactivated bool
	}{
		{"not found deactivates", &fetch.StatusError{URL: offerURL, Code: 404}, "", nil, Committed, Gone, true},
		{"gone deactivates", &fetch.StatusError{URL: offerURL, Code: 410}, "", nil, Committed, Gone, true},
		{"server error retries", &fetch.StatusError{URL: offerURL, Code: 503}, "", nil, Retried, Transient, false},
		{"rate limited retries", &fetch.StatusError{URL: offerURL, Code: 429}, "", nil, Retried, Transient, false},
		{"forbidden drops", &fetch.StatusError{URL: offerURL, Code: 403, Snippet: "denied"}, "", nil, DroppedNonRetryable, NonRetryable, false},
		{"bot wall retries", &fetch.BotWallError{URL: offerURL, Title: "Just a moment..."}, "", nil, Retried, Transient, false},
		{"timeout retries", &fetch.Error{URL: offerURL, Message: "HTTP request failed", Cause: context.DeadlineExceeded, Retryable: true}, "", nil, Retried, Transient, false},
		{"missing anchor drops", nil, "<html><body><p>nothing here</p></body></html>", nil, DroppedNonRetryable, NonRetryable, false},
		{"expired banner deactivates", nil, "<html><body><h1>Go</h1><div>Ta oferta wygasła</div></body></html>", nil, Committed, Gone, true},
		{"duplicate key commits", nil, offerPage, &db.DuplicateKeyError{Source: types.SourceTheProtocol, ExternalID: "abc-123"}, Committed, Duplicate, false},
		{"other persistence error drops", nil, offerPage, errors.New("value too long"), DroppedNonRetryable, NonRetryable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := &fakeIngester{ingestErr: tt.ingestErr}
			d := newTestDispatcher(&stubFetcher{doc: tt.doc, err: tt.fetchErr}, ingester, nil)

			res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantClass, res.Class)
			if tt.wantDeactivated {
				assert.Equal(t, []string{offerURL}, ingester.deactivated)
			} else {
				assert.Empty(t, ingester.deactivated)
			}
		})
	}
}

type timedOutRenderer struct {
	html string
}

func (r timedOutRenderer) Render(_ context.Context, req fetch.RenderRequest) (*fetch.Page, error) {
	return &fetch.Page{URL: req.URL, HTML: r.html}, &fetch.WaitTimeoutError{What: "script#__NEXT_DATA__", Timeout: time.Second}
}

func TestHandleURL_UnhydratedExpiredPageDeactivates(t *testing.T) {
	const pracujURL = "https://www.pracuj.pl/praca/tester,oferta,1004"
	registry := NewRegistry()
	registry.Register(types.SourcePracuj, Route{
		Fetch: &fetch.RenderFetcher{
			Renderer:    timedOutRenderer{html: "<html><body><h1>Tester</h1><p>Ogłoszenie jest nieaktualne</p></body></html>"},
			Marker:      "script#__NEXT_DATA__",
			WaitTimeout: time.Second,
		},
		Parse:      parsing.ParsePracuj,
		ExternalID: parsing.OfertaID,
	})
	ingester := &fakeIngester{}
	d := New(registry, ingester, time.Second, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: pracujURL, Source: types.SourcePracuj})

	assert.Equal(t, Committed, res.Outcome)
	assert.Equal(t, Gone, res.Class)
	assert.Equal(t, []string{pracujURL}, ingester.deactivated)
	assert.Empty(t, ingester.ingested)
}

func TestHandleURL_DeactivationFailure(t *testing.T) {
	ingester := &fakeIngester{deactErr: fmt.Errorf("deactivate: %w", context.DeadlineExceeded)}
	d := newTestDispatcher(&stubFetcher{err: &fetch.StatusError{Code: 404}}, ingester, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})
	assert.Equal(t, Retried, res.Outcome)

	ingester.deactErr = errors.New("syntax error")
	res = d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})
	assert.Equal(t, DroppedNonRetryable, res.Outcome)
}

func TestHandleURL_UnsupportedSource(t *testing.T) {
	fetcher := &stubFetcher{doc: offerPage}
	d := newTestDispatcher(fetcher, &fakeIngester{}, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourcePracuj})
	assert.Equal(t, DroppedNonRetryable, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnsupportedSource)
	assert.Zero(t, fetcher.calls)
}

func TestHandleURL_DropLogsSnippet(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := newTestDispatcher(&stubFetcher{doc: "<html><body><p>maintenance page</p></body></html>"}, &fakeIngester{}, zap.New(core))

	d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})

	dropped := logs.FilterMessage("dropping message").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, zapcore.WarnLevel, dropped[0].Level)
	fields := dropped[0].ContextMap()
	assert.Equal(t, offerURL, fields["url"])
	assert.Equal(t, "THEPROTOCOL", fields["source"])
	assert.Contains(t, fields["snippet"], "maintenance page")
}

func TestHandleOffer(t *testing.T) {
	ingester := &fakeIngester{}
	d := newTestDispatcher(&stubFetcher{}, ingester, nil)

	msg := types.OfferMessage{Offer: types.ParsedOffer{
		Source:         types.SourceNoFluff,
		ExternalID:     "acme-go",
		Title:          "Go Developer",
		SalaryMin:      types.Float(100),
		SalaryCurrency: "PLN",
		SalaryPeriod:   types.PeriodHour,
	}}
	res := d.HandleOffer(context.Background(), msg)

	assert.Equal(t, Committed, res.Outcome)
	assert.Equal(t, []string{"NOFLUFF/acme-go"}, ingester.keys)
	n := ingester.ingested[0]
	require.NotNil(t, n.SalaryMax)
	assert.Equal(t, 100.0, *n.SalaryMax)
	require.NotNil(t, n.SalaryMaxMonthly)
	assert.Equal(t, 16800, *n.SalaryMaxMonthly)

	res = d.HandleOffer(context.Background(), types.OfferMessage{Offer: types.ParsedOffer{Source: "INDEED", ExternalID: "x", Title: "y"}})
	assert.Equal(t, DroppedNonRetryable, res.Outcome)
}

func TestHandleURL_Timeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(types.SourceTheProtocol, Route{
		Fetch:      blockingFetcher{},
		Parse:      parsing.ParseTheProtocol,
		ExternalID: parsing.OfertaID,
	})
	d := New(registry, &fakeIngester{}, 20*time.Millisecond, nil)

	res := d.HandleURL(context.Background(), types.URLMessage{URL: offerURL, Source: types.SourceTheProtocol})
	assert.Equal(t, Retried, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ string) (*fetch.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
