package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/lifecycle"
	"github.com/jonathan/offer-ingest/internal/lock"
	"github.com/jonathan/offer-ingest/internal/observability"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a lifecycle sweep once",
}

var sweepStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Deactivate offers not seen within their source's staleness window",
	RunE:  runSweepStale,
}

var sweepRetentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Archive offers inactive for longer than the retention period",
	RunE:  runSweepRetention,
}

func init() {
	sweepCmd.AddCommand(sweepStaleCmd, sweepRetentionCmd)
	rootCmd.AddCommand(sweepCmd)
}

// withManager opens the store and a locker shared with running agents and calls fn.
func withManager(cmd *cobra.Command, fn func(m *lifecycle.Manager) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	return fn(newManager(cfg, database, locker, logger))
}

func newManager(cfg *config.Config, database *db.DB, locker lock.Locker, logger *zap.Logger) *lifecycle.Manager {
	return lifecycle.NewManager(database, lifecycle.Options{
		StaleWindows:      cfg.StaleWindows(),
		Retention:         cfg.Retention,
		BatchSize:         cfg.SweepBatchSize,
		StaleSchedule:     cfg.StaleSweepSchedule,
		RetentionSchedule: cfg.ArchiveSweepSchedule,
		Locker:            locker,
		LockTTL:           cfg.LockTTL,
	}, logger)
}

func runSweepStale(cmd *cobra.Command, _ []string) error {
	return withManager(cmd, func(m *lifecycle.Manager) error {
		counts, err := m.SweepStale(cmd.Context())
		observability.NewPrinter(os.Stdout).PrintStaleSweep(counts)
		return err
	})
}

func runSweepRetention(cmd *cobra.Command, _ []string) error {
	return withManager(cmd, func(m *lifecycle.Manager) error {
		archived, err := m.SweepRetention(cmd.Context())
		observability.NewPrinter(os.Stdout).PrintRetentionSweep(archived)
		return err
	})
}
