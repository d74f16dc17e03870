// Package ratelimit limits admin API requests per client and route with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes the bucket state after a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter keeps one token bucket per client and route.
type Limiter struct {
	config  *Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a limiter. A nil config enables the default rule of 1000 requests per minute.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			Default:         Rule{Limit: 1000, Window: time.Minute},
			CleanupInterval: 5 * time.Minute,
			IdleAfter:       time.Hour,
		}
	}
	l := &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanup(config.CleanupInterval)
	}
	return l
}

// Allow consumes a token of clientID's bucket for route.
func (l *Limiter) Allow(clientID, route string) Info {
	if !l.config.Enabled || l.config.Allowlist[clientID] {
		return Info{Allowed: true}
	}
	rule := l.config.ruleFor(route)
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Info{Allowed: true}
	}

	now := l.now()
	b := l.bucket(clientID+"|"+route, rule, now)
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	perSecond := float64(b.limiter.Limit())
	info := Info{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: max(int(tokens), 0),
		ResetTime: now.Add(secondsToDuration((float64(rule.Burst) - tokens) / perSecond)),
	}
	if !allowed {
		info.RetryAfter = secondsToDuration((1 - tokens) / perSecond)
	}
	return info
}

func (l *Limiter) bucket(key string, rule Rule, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		every := rate.Limit(float64(rule.Limit) / rule.Window.Seconds())
		b = &bucket{limiter: rate.NewLimiter(every, rule.Burst)}
		l.buckets[key] = b
	}
	b.lastAccess = now
	return b
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

// evictIdle drops buckets not used within IdleAfter.
func (l *Limiter) evictIdle() int {
	idle := l.config.IdleAfter
	if idle <= 0 {
		idle = time.Hour
	}
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
