package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/lock"
	"github.com/jonathan/offer-ingest/internal/logging"
	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/types"
)

// ackMargin is added to the message timeout to get the consumer's AckWait.
const ackMargin = 30 * time.Second

// loadConfig reads the configuration. Commands that never touch the database or the
// queue pass full=false and skip validation of those settings.
func loadConfig(full bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if full {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func parseSource(name string) (types.Source, error) {
	if name == "" {
		return "", fmt.Errorf("--source is required")
	}
	return types.ParseSource(name)
}

// fetchStack holds the HTTP client, rate limiters and optional browser shared by
// discovery and detail fetching.
type fetchStack struct {
	client   *fetch.Client
	limiters *fetch.Limiters
	dumper   *fetch.DebugDumper
	browser  *fetch.Browser
}

func newFetchStack(cfg *config.Config, logger *zap.Logger) *fetchStack {
	limiters := fetch.NewLimiters()
	for _, source := range types.AllSources() {
		sc := cfg.Source(source)
		limiters.Register(fetch.LimiterName(source, fetch.KindDiscovery), sc.DiscoveryRate.RPS, sc.DiscoveryRate.Burst)
		limiters.Register(fetch.LimiterName(source, fetch.KindDetail), sc.DetailRate.RPS, sc.DetailRate.Burst)
	}
	return &fetchStack{
		client:   fetch.NewClient(cfg.FetchTimeout),
		limiters: limiters,
		dumper:   fetch.NewDebugDumper(cfg.DebugDir, logger),
	}
}

func (s *fetchStack) startBrowser(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if s.browser != nil {
		return nil
	}
	b := fetch.NewBrowser(fetch.BrowserOptions{
		Headless:          cfg.BrowserHeadless,
		ExecPath:          cfg.BrowserPath,
		NavigationTimeout: cfg.BrowserTimeout,
	}, s.dumper, logger)
	if err := b.Start(ctx); err != nil {
		return err
	}
	s.browser = b
	return nil
}

// renderer returns the browser as a Renderer, or a nil interface when none was started.
func (s *fetchStack) renderer() fetch.Renderer {
	if s.browser == nil {
		return nil
	}
	return s.browser
}

func (s *fetchStack) close() {
	if s.browser != nil {
		s.browser.Close()
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func openQueue(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, js, err := queue.Connect(cfg.NATSURL, cfg.NATSConnTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	topology := queue.Topology{
		AckWait:       cfg.MessageTimeout + ackMargin,
		MaxAckPending: cfg.Workers * 2,
	}
	if err := queue.EnsureTopology(ctx, js, topology, logger); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

// newLocker returns a Redis locker when REDIS_URL is set and an in-process one otherwise.
func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, run locks are local to this process")
		return lock.NewLocalLocker(), func() {}, nil
	}
	client, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, "offer-ingest:"), func() { _ = client.Close() }, nil
}
