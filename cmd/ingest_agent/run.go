package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/discovery"
	"github.com/jonathan/offer-ingest/internal/dispatch"
	"github.com/jonathan/offer-ingest/internal/ingest"
	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/server"
	"github.com/jonathan/offer-ingest/internal/server/ratelimit"
	"github.com/jonathan/offer-ingest/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion agent",
	Long: "Run queue consumer workers, the discovery scheduler and the lifecycle sweeps until " +
		"interrupted. SIGINT or SIGTERM stops scheduling and lets in-flight messages finish. " +
		"When ADMIN_ADDR is set the admin HTTP API is served alongside.",
	RunE: runRun,
}

var runNoDiscovery bool

func init() {
	runCmd.Flags().BoolVar(&runNoDiscovery, "no-discovery", false, "Only consume the queue; do not schedule discovery")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx, logger); err != nil {
		return err
	}

	nc, js, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	stack := newFetchStack(cfg, logger)
	defer stack.close()
	enabled := cfg.EnabledSources()
	if needsBrowser(enabled) {
		if err := stack.startBrowser(ctx, cfg, logger); err != nil {
			return err
		}
	}

	registry, err := dispatch.BuildRegistry(cfg, dispatch.Deps{
		Client:   stack.client,
		Limiters: stack.limiters,
		Renderer: stack.renderer(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	service := ingest.NewService(database, registry, logger)
	dispatcher := dispatch.New(registry, service, cfg.MessageTimeout, logger)
	publisher := queue.NewPublisher(js, logger)

	consumer := queue.NewConsumer(js, dispatcher, queue.ConsumerOptions{
		Workers: cfg.Workers,
		Policy:  queue.RetryPolicy{Delays: cfg.RetryDelays, MaxDeliver: cfg.MaxDeliver},
	}, logger)

	manager := newManager(cfg, database, locker, logger)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	if !runNoDiscovery {
		jobs, err := discoveryJobs(cfg, enabled, stack, logger)
		if err != nil {
			return err
		}
		scheduler := discovery.NewScheduler(jobs, publisher, locker, cfg.LockTTL, logger)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	logger.Info("ingestion agent running",
		zap.Strings("routed_sources", sourceNames(registry.Sources())),
		zap.Int("workers", cfg.Workers))

	var admin *server.Server
	if cfg.AdminAddr != "" {
		if admin, err = newAdminServer(cfg, database, publisher, service, registry.Sources(), logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		return nil
	})
	if admin != nil {
		g.Go(func() error { return admin.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// newAdminServer builds the admin API with URL rules for the routed sources.
func newAdminServer(cfg *config.Config, store server.Store, enqueuer server.Enqueuer, archiver server.Archiver,
	sources []types.Source, logger *zap.Logger) (*server.Server, error) {
	canonical := make(map[types.Source]server.Canonicalizer, len(sources))
	for _, source := range sources {
		rules, err := discovery.RulesFor(source, cfg.Source(source))
		if err != nil {
			return nil, err
		}
		canonical[source] = rules
	}
	return server.New(store, enqueuer, archiver, server.Options{
		Addr:      cfg.AdminAddr,
		Canonical: canonical,
		Limiter:   ratelimit.NewLimiter(ratelimit.LoadConfig()),
	}, logger), nil
}

// needsBrowser reports whether any of sources renders pages in the browser,
// for discovery or for detail fetching.
func needsBrowser(sources []types.Source) bool {
	for _, source := range sources {
		if discovery.UsesBrowser(source) || dispatch.UsesBrowser(source) {
			return true
		}
	}
	return false
}

func discoveryJobs(cfg *config.Config, sources []types.Source, stack *fetchStack, logger *zap.Logger) ([]discovery.Job, error) {
	deps := discovery.Deps{
		Client:   stack.client,
		Limiters: stack.limiters,
		Renderer: stack.renderer(),
		Dumper:   stack.dumper,
		Logger:   logger,
	}
	jobs := make([]discovery.Job, 0, len(sources))
	for _, source := range sources {
		sc := cfg.Source(source)
		d, err := discovery.New(source, sc, deps)
		if errors.Is(err, discovery.ErrBrowserRequired) {
			logger.Warn("no browser available, discovery disabled", zap.String("source", string(source)))
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, discovery.Job{Source: source, Schedule: sc.Schedule, Discoverer: d})
	}
	return jobs, nil
}

func sourceNames(sources []types.Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
