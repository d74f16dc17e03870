package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/lock"
	"github.com/jonathan/offer-ingest/internal/logging"
	"github.com/jonathan/offer-ingest/internal/types"
)

// Enqueuer accepts candidate offer URLs for detail processing.
type Enqueuer interface {
	EnqueueURL(ctx context.Context, url string, source types.Source) error
}

// Job binds a source to its schedule and discovery strategy.
type Job struct {
	Source     types.Source
	Schedule   string
	Discoverer Discoverer
}

// Stats summarises one discovery run.
type Stats struct {
	Found    int
	Enqueued int
	Failed   int
	Skipped  bool
	Err      error
}

// Scheduler runs each Job on its own cron entry and once immediately at start.
type Scheduler struct {
	cron     *cron.Cron
	jobs     []Job
	enqueuer Enqueuer
	locker   lock.Locker
	lockTTL  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. locker may be nil to run without run locks.
func NewScheduler(jobs []Job, enqueuer Enqueuer, locker lock.Locker, lockTTL time.Duration, logger *zap.Logger) *Scheduler {
	cronLogger := logging.CronLogger(logger)
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		jobs:     jobs,
		enqueuer: enqueuer,
		locker:   locker,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

// Start registers every job and triggers one immediate run per job.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.Run(ctx, job) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.Schedule, job.Source, err)
		}
	}
	s.cron.Start()
	s.logger.Info("discovery scheduler started", zap.Int("jobs", len(s.jobs)))

	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Run(ctx, job)
		}()
	}
	return nil
}

// Stop stops scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("discovery scheduler stopped")
}

// Run performs one discovery pass for job and enqueues every URL found.
// It never panics and never returns an error; the outcome is logged and returned as Stats.
func (s *Scheduler) Run(ctx context.Context, job Job) (stats Stats) {
	logger := s.logger.With(zap.String("source", string(job.Source)))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			stats.Err = fmt.Errorf("discovery panicked: %v", r)
			logger.Error("discovery panicked", zap.Any("panic", r))
		}
	}()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "discovery:"+string(job.Source), s.lockTTL)
		if err != nil {
			stats.Err = err
			logger.Error("failed to acquire discovery lock", zap.Error(err))
			return stats
		}
		if !ok {
			stats.Skipped = true
			logger.Info("discovery already running elsewhere, skipping")
			return stats
		}
		defer release()
	}

	urls, err := job.Discoverer.Discover(ctx)
	stats.Err = err

	seen := newURLSet()
	for _, u := range urls {
		if !seen.add(u) {
			continue
		}
		stats.Found++
		if ctx.Err() != nil {
			stats.Failed++
			continue
		}
		if err := s.enqueuer.EnqueueURL(ctx, u, job.Source); err != nil {
			stats.Failed++
			logger.Warn("failed to enqueue offer URL", zap.String("url", u), zap.Error(err))
			continue
		}
		stats.Enqueued++
	}

	fields := []zap.Field{
		zap.Int("found", stats.Found),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", time.Since(started)),
	}
	if err != nil {
		logger.Error("discovery run failed", append(fields, zap.Error(err))...)
		return stats
	}
	logger.Info("discovery run finished", fields...)
	return stats
}
