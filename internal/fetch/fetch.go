// Package fetch retrieves raw offer documents over HTTP or through a shared headless browser,
// under per-source rate limits. Status codes and I/O failures are surfaced as typed errors.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent mimics a desktop Chrome; several boards serve reduced markup to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// MaxBodyBytes bounds how much of a response body is read.
const MaxBodyBytes = 8 << 20

// SnippetLength bounds the body excerpt kept on a StatusError.
const SnippetLength = 300

// Result holds the raw response of a fetch.
type Result struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// Error represents a failure to perform a request at all (bad URL, transport or read failure).
type Error struct {
	URL     string
	Message string
	Cause   error
	// Retryable is true for transport and read failures, false for malformed requests.
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL     string
	Code    int
	Snippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.Code)
}

// Options configures a single request.
type Options struct {
	Headers     map[string]string
	Referer     string
	ContentType string
}

// Client performs HTTP requests with browser-like headers.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a Client; timeout <= 0 uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
	}
}

// Get retrieves urlStr.
func (c *Client) Get(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	return c.Do(ctx, http.MethodGet, urlStr, nil, opts)
}

// Do performs a request. On a non-2xx status it returns both the Result and a *StatusError.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to read response body", Cause: err, Retryable: true}
	}

	result := &Result{
		URL:         urlStr,
		Body:        bodyBytes,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{URL: urlStr, Code: resp.StatusCode, Snippet: snippet(bodyBytes)}
	}
	return result, nil
}

func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > SnippetLength {
		s = s[:SnippetLength]
	}
	return s
}
