package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Limiter kinds. Discovery and detail traffic for one source draw from separate buckets.
const (
	KindDiscovery = "discovery"
	KindDetail    = "detail"
)

// LimiterName returns the registry key for a source's bucket of the given kind.
func LimiterName(source types.Source, kind string) string {
	return string(source) + ":" + kind
}

// Limiters is a registry of named token buckets shared by every caller for a source.
type Limiters struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLimiters creates an empty registry.
func NewLimiters() *Limiters {
	return &Limiters{limiters: make(map[string]*rate.Limiter)}
}

// Register installs a bucket allowing rps requests per second with the given burst.
// rps <= 0 removes any limit for name.
func (l *Limiters) Register(name string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rps <= 0 {
		delete(l.limiters, name)
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.limiters[name] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Get returns the bucket for name, or nil when unlimited.
func (l *Limiters) Get(name string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[name]
}

// Wait blocks until name's bucket admits one request or ctx ends. Unknown names never block.
func (l *Limiters) Wait(ctx context.Context, name string) error {
	if l == nil {
		return nil
	}
	limiter := l.Get(name)
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
