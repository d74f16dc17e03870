package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser defaults.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultIdleTimeout       = 10 * time.Second
	pollInterval             = 250 * time.Millisecond
	dumpTimeout              = 10 * time.Second
)

// MarkerMinLength is the minimum trimmed length of a populated hydration marker.
const MarkerMinLength = 50

// ErrBrowserNotStarted is returned by Visit before Start or after Close.
var ErrBrowserNotStarted = errors.New("browser not started")

// WaitTimeoutError reports that a wait condition was not met in time.
type WaitTimeoutError struct {
	What    string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
}

func (e *WaitTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// BrowserOptions configures the shared browser process.
type BrowserOptions struct {
	Headless          bool
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
}

// Browser is a single long-lived headless browser. Each Visit runs in its own
// incognito browser context which is closed when the visit returns.
type Browser struct {
	opts   BrowserOptions
	logger *zap.Logger
	dumper *DebugDumper

	mu            sync.RWMutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	closeOnce     sync.Once
}

// NewBrowser creates an unstarted Browser. dumper may be nil.
func NewBrowser(opts BrowserOptions, dumper *DebugDumper, logger *zap.Logger) *Browser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{opts: opts, dumper: dumper, logger: logger}
}

// Start launches the browser process. The process outlives ctx and is released by Close.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.opts.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Running with no actions launches the process.
	startCtx, cancelStart := context.WithTimeout(browserCtx, b.opts.NavigationTimeout)
	defer cancelStart()
	if err := chromedp.Run(startCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelBrowser = cancelBrowser
	b.logger.Info("browser started", zap.Bool("headless", b.opts.Headless))
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (b *Browser) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.browserCtx == nil {
			return
		}
		b.cancelBrowser()
		b.cancelAlloc()
		b.browserCtx = nil
		b.logger.Info("browser stopped")
	})
}

// Visit opens a fresh browser context, runs fn in it and closes it on every exit path.
// The tab is also closed as soon as ctx is done.
func (b *Browser) Visit(ctx context.Context, fn func(tabCtx context.Context) error) error {
	b.mu.RLock()
	parent := b.browserCtx
	b.mu.RUnlock()
	if parent == nil {
		return ErrBrowserNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tabCtx, closeTab := chromedp.NewContext(parent, chromedp.WithNewBrowserContext())
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	err := fn(tabCtx)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// Page is the rendered state of a visited URL.
type Page struct {
	URL    string
	Title  string
	HTML   string
	Status int
}

// WaitFunc blocks inside a tab until a page condition holds.
type WaitFunc func(tabCtx context.Context) error

// RenderRequest describes one page render.
type RenderRequest struct {
	URL string
	// Wait runs after navigation and network idle. Nil skips waiting.
	Wait WaitFunc
	// Label prefixes debug dump file names, usually the source.
	Label string
}

// Render navigates to req.URL and returns the rendered page.
//
// A bot wall yields *BotWallError, a document status >= 400 yields *StatusError,
// and an unmet wait condition yields the page together with *WaitTimeoutError.
// Any failure leaves a debug dump behind when a dumper is configured.
func (b *Browser) Render(ctx context.Context, req RenderRequest) (*Page, error) {
	var result *Page
	err := b.Visit(ctx, func(tabCtx context.Context) error {
		p, err := b.render(tabCtx, req)
		result = p
		if err != nil && ctx.Err() == nil {
			b.dumper.Capture(tabCtx, req.Label)
		}
		return err
	})
	return result, err
}

func (b *Browser) render(tabCtx context.Context, req RenderRequest) (*Page, error) {
	var (
		statusMu sync.Mutex
		status   int
	)
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && e.Response != nil {
				statusMu.Lock()
				status = int(e.Response.Status)
				statusMu.Unlock()
			}
		case *page.EventLifecycleEvent:
			if e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		}
	})

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.opts.NavigationTimeout)
	err := chromedp.Run(navCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(req.URL),
	)
	cancelNav()
	if err != nil {
		return nil, &Error{URL: req.URL, Message: "navigation failed", Cause: err, Retryable: true}
	}

	// Network idle is best effort; long-polling pages never reach it.
	select {
	case <-idle:
	case <-time.After(b.opts.IdleTimeout):
	case <-tabCtx.Done():
		return nil, tabCtx.Err()
	}

	p := &Page{URL: req.URL}
	if err := chromedp.Run(tabCtx, chromedp.Title(&p.Title), chromedp.Location(&p.URL)); err != nil {
		return nil, &Error{URL: req.URL, Message: "failed to read page state", Cause: err, Retryable: true}
	}
	statusMu.Lock()
	p.Status = status
	statusMu.Unlock()

	if DetectBotWall(p.Title, p.URL) {
		return p, &BotWallError{URL: req.URL, Title: p.Title}
	}
	if p.Status >= 400 {
		return p, &StatusError{URL: req.URL, Code: p.Status}
	}

	var waitErr error
	if req.Wait != nil {
		waitErr = req.Wait(tabCtx)
		var timeout *WaitTimeoutError
		if waitErr != nil && !errors.As(waitErr, &timeout) {
			return p, waitErr
		}
	}

	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery)); err != nil {
		return p, &Error{URL: req.URL, Message: "failed to read page HTML", Cause: err, Retryable: true}
	}
	return p, waitErr
}

// WaitAnyVisible waits until at least one element matching any of selectors is visible.
func WaitAnyVisible(selectors []string, timeout time.Duration) WaitFunc {
	expr := anyVisibleExpr(selectors)
	return func(tabCtx context.Context) error {
		return poll(tabCtx, expr, timeout, fmt.Sprintf("any of %v", selectors))
	}
}

// WaitMarker waits until the element matched by selector exists and holds a JSON object
// of at least MarkerMinLength characters.
func WaitMarker(selector string, timeout time.Duration) WaitFunc {
	expr := markerExpr(selector, MarkerMinLength)
	return func(tabCtx context.Context) error {
		return poll(tabCtx, expr, timeout, "populated "+selector)
	}
}

func poll(ctx context.Context, expr string, timeout time.Duration, what string) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &WaitTimeoutError{What: what, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func jsString(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func anyVisibleExpr(selectors []string) string {
	return fmt.Sprintf(`(() => {
  for (const sel of %s) {
    for (const el of document.querySelectorAll(sel)) {
      const r = el.getBoundingClientRect();
      if (r.width > 0 && r.height > 0) return true;
    }
  }
  return false;
})()`, jsString(selectors))
}

func markerExpr(selector string, minLen int) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const text = (el.textContent || "").trim();
  return text.length >= %d && text.startsWith("{");
})()`, jsString(selector), minLen)
}
