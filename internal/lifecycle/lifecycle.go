// Package lifecycle runs the periodic sweeps that keep the offer table honest:
// deactivating offers no longer seen by discovery and archiving long-inactive ones.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/lock"
	"github.com/jonathan/offer-ingest/internal/logging"
	"github.com/jonathan/offer-ingest/internal/types"
)

// Lock keys.
const (
	StaleLockKey     = "lifecycle:stale"
	RetentionLockKey = "lifecycle:retention"
)

// ErrSkipped is returned when another holder owns the sweep lock.
var ErrSkipped = errors.New("sweep already running elsewhere")

// Store is the persistence the sweeps need.
type Store interface {
	DeactivateStale(ctx context.Context, source types.Source, cutoff time.Time, batch int) (int, error)
	ArchiveInactive(ctx context.Context, cutoff time.Time, batch int) (int, error)
}

// Options configures a Manager.
type Options struct {
	// StaleWindows is the staleness window per source; sources with no positive window are not swept.
	StaleWindows      map[types.Source]time.Duration
	Retention         time.Duration
	BatchSize         int
	StaleSchedule     string
	RetentionSchedule string
	Locker            lock.Locker
	LockTTL           time.Duration
}

// Manager runs the stale and retention sweeps, on demand or on cron schedules.
type Manager struct {
	store  Store
	opts   Options
	now    func() time.Time
	cron   *cron.Cron
	logger *zap.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := logging.CronLogger(logger)
	return &Manager{
		store:  store,
		opts:   opts,
		now:    time.Now,
		cron:   cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		logger: logger,
	}
}

// Start schedules both sweeps. It does not run them immediately.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(m.opts.StaleSchedule, func() { m.runScheduled(ctx, "stale", m.sweepStale) }); err != nil {
		return fmt.Errorf("invalid stale sweep schedule %q: %w", m.opts.StaleSchedule, err)
	}
	if _, err := m.cron.AddFunc(m.opts.RetentionSchedule, func() { m.runScheduled(ctx, "retention", m.sweepRetention) }); err != nil {
		return fmt.Errorf("invalid retention sweep schedule %q: %w", m.opts.RetentionSchedule, err)
	}
	m.cron.Start()
	m.logger.Info("lifecycle manager started",
		zap.String("stale_schedule", m.opts.StaleSchedule),
		zap.String("retention_schedule", m.opts.RetentionSchedule))
	return nil
}

// Stop stops scheduling and waits for a running sweep to return.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("lifecycle manager stopped")
}

func (m *Manager) runScheduled(ctx context.Context, name string, sweep func(context.Context) (int, error)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sweep panicked", zap.String("sweep", name), zap.Any("panic", r))
		}
	}()
	_, _ = sweep(ctx)
}

// SweepStale deactivates, per source, active offers not seen within the source's window.
// A failing source does not stop the others; all failures are joined into the error.
func (m *Manager) SweepStale(ctx context.Context) (map[types.Source]int, error) {
	counts := make(map[types.Source]int)
	err := m.withLock(ctx, StaleLockKey, func() error {
		now := m.now()
		var errs []error
		for _, source := range types.AllSources() {
			window := m.opts.StaleWindows[source]
			if window <= 0 {
				continue
			}
			n, err := m.store.DeactivateStale(ctx, source, now.Add(-window), m.opts.BatchSize)
			counts[source] = n
			if err != nil {
				m.logger.Error("stale sweep failed",
					zap.String("source", string(source)), zap.Int("deactivated", n), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", source, err))
				continue
			}
			if n > 0 {
				m.logger.Info("deactivated stale offers",
					zap.String("source", string(source)), zap.Int("deactivated", n), zap.Duration("window", window))
			}
		}
		return errors.Join(errs...)
	})
	return counts, err
}

func (m *Manager) sweepStale(ctx context.Context) (int, error) {
	started := time.Now()
	counts, err := m.SweepStale(ctx)
	total := 0
	for _, n := range counts {
		total += n
	}
	if err == nil {
		m.logger.Info("stale sweep finished", zap.Int("deactivated", total), zap.Duration("elapsed", time.Since(started)))
	}
	return total, err
}

// SweepRetention archives offers that have been inactive for longer than the retention period.
func (m *Manager) SweepRetention(ctx context.Context) (int, error) {
	var archived int
	err := m.withLock(ctx, RetentionLockKey, func() error {
		var err error
		archived, err = m.store.ArchiveInactive(ctx, m.now().Add(-m.opts.Retention), m.opts.BatchSize)
		if err != nil {
			m.logger.Error("retention sweep failed", zap.Int("archived", archived), zap.Error(err))
			return err
		}
		return nil
	})
	return archived, err
}

func (m *Manager) sweepRetention(ctx context.Context) (int, error) {
	started := time.Now()
	n, err := m.SweepRetention(ctx)
	if err == nil {
		m.logger.Info("retention sweep finished", zap.Int("archived", n), zap.Duration("elapsed", time.Since(started)))
	}
	return n, err
}

func (m *Manager) withLock(ctx context.Context, key string, fn func() error) error {
	if m.opts.Locker == nil {
		return fn()
	}
	release, ok, err := m.opts.Locker.TryLock(ctx, key, m.opts.LockTTL)
	if err != nil {
		m.logger.Error("failed to acquire sweep lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	if !ok {
		m.logger.Info("sweep already running elsewhere, skipping", zap.String("key", key))
		return ErrSkipped
	}
	defer release()
	return fn()
}
