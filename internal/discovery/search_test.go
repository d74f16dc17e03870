package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/offer-ingest/internal/fetch"
)

type fakePages struct {
	pages   []*SearchPage
	failAt  int
	fetched []int
}

func (f *fakePages) FetchPage(_ context.Context, page int) (*SearchPage, error) {
	f.fetched = append(f.fetched, page)
	if f.failAt > 0 && page == f.failAt {
		return nil, errors.New("upstream 502")
	}
	if page >= len(f.pages) {
		return &SearchPage{}, nil
	}
	return f.pages[page], nil
}

func jobURLs(ids ...int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("https://justjoin.it/job-offer/offer-%d", id))
	}
	return out
}

func identity(raw string) (string, bool) { return raw, true }

func TestSearchDiscoverer_StopsOnEmptyPage(t *testing.T) {
	pages := &fakePages{pages: []*SearchPage{
		{URLs: jobURLs(1, 2)},
		{URLs: jobURLs(2, 3)},
	}}
	d := &SearchDiscoverer{Pages: pages, Canonicalize: identity}

	urls, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobURLs(1, 2, 3), urls)
	assert.Equal(t, []int{0, 1, 2}, pages.fetched)
}

func TestSearchDiscoverer_StopsAtTotalPages(t *testing.T) {
	pages := &fakePages{pages: []*SearchPage{
		{URLs: jobURLs(1), TotalPages: 2},
		{URLs: jobURLs(2), TotalPages: 2},
		{URLs: jobURLs(3), TotalPages: 2},
	}}
	d := &SearchDiscoverer{Pages: pages, Canonicalize: identity}

	urls, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobURLs(1, 2), urls)
	assert.Equal(t, []int{0, 1}, pages.fetched)
}

func TestSearchDiscoverer_MaxPages(t *testing.T) {
	pages := &fakePages{pages: []*SearchPage{{URLs: jobURLs(1)}, {URLs: jobURLs(2)}, {URLs: jobURLs(3)}}}
	d := &SearchDiscoverer{Pages: pages, MaxPages: 2, Canonicalize: identity}

	urls, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobURLs(1, 2), urls)
}

func TestSearchDiscoverer_PartialOnFailure(t *testing.T) {
	pages := &fakePages{pages: []*SearchPage{{URLs: jobURLs(1)}, {URLs: jobURLs(2)}}, failAt: 1}
	d := &SearchDiscoverer{Pages: pages, Canonicalize: identity}

	urls, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search page 1")
	assert.Equal(t, jobURLs(1), urls)
}

func TestSearchDiscoverer_RateLimited(t *testing.T) {
	limiters := fetch.NewLimiters()
	limiters.Register("JUSTJOIN:discovery", 0.001, 1)
	pages := &fakePages{pages: []*SearchPage{{URLs: jobURLs(1)}, {URLs: jobURLs(2)}}}

	ctx, cancel := context.WithCancel(context.Background())
	d := &SearchDiscoverer{Pages: pages, Limiters: limiters, Limiter: "JUSTJOIN:discovery", Canonicalize: func(raw string) (string, bool) {
		cancel()
		return raw, true
	}}

	urls, err := d.Discover(ctx)
	assert.Error(t, err, "second page waits on the bucket until the context ends")
	assert.Equal(t, jobURLs(1), urls)
	assert.Equal(t, []int{0}, pages.fetched)
}

func TestJustJoinPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("perPage"))
		assert.Equal(t, "2", r.Header.Get("Version"))
		_, _ = w.Write([]byte(`{"data":[{"slug":"acme-go"},{"slug":""},{"slug":"beta-qa"}],"meta":{"totalPages":7}}`))
	}))
	defer server.Close()

	p := &JustJoinPages{
		Client:    fetch.NewClient(0),
		SearchURL: server.URL + "/v2/user-panel/offers",
		OfferBase: "https://justjoin.it/job-offer/",
		PageSize:  50,
		Headers:   map[string]string{"Version": "2"},
	}
	page, err := p.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 7, page.TotalPages)
	assert.Equal(t, []string{"https://justjoin.it/job-offer/acme-go", "https://justjoin.it/job-offer/beta-qa"}, page.URLs)
}

func TestNoFluffPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "PLN", r.URL.Query().Get("salaryCurrency"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"criteriaSearch":{},"page":1,"pageSize":20}`, string(body))
		_, _ = w.Write([]byte(`{"postings":[{"id":"ID-1","url":"backend-acme-xk2"},{"id":"ID-2"}],"totalPages":3}`))
	}))
	defer server.Close()

	p := &NoFluffPages{
		Client:    fetch.NewClient(0),
		SearchURL: server.URL + "/api/search/posting?salaryCurrency=PLN",
		OfferBase: "https://nofluffjobs.com/pl/job",
		PageSize:  20,
	}
	page, err := p.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []string{"https://nofluffjobs.com/pl/job/backend-acme-xk2", "https://nofluffjobs.com/pl/job/ID-2"}, page.URLs)
}

func TestJustJoinPages_BadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	p := &JustJoinPages{Client: fetch.NewClient(0), SearchURL: server.URL, OfferBase: "https://justjoin.it/job-offer/"}
	_, err := p.FetchPage(context.Background(), 0)
	var discErr *Error
	require.ErrorAs(t, err, &discErr)
	assert.Contains(t, err.Error(), "failed to decode search response")
}
