package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/offer-ingest/internal/discovery"
	"github.com/jonathan/offer-ingest/internal/observability"
	"github.com/jonathan/offer-ingest/internal/queue"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run discovery once for a source",
	Long:  "Run one discovery pass for a source and print the offer URLs found, or enqueue them with --enqueue.",
	RunE:  runDiscover,
}

var (
	discoverSource  string
	discoverEnqueue bool
)

func init() {
	discoverCmd.Flags().StringVarP(&discoverSource, "source", "s", "", "Source to discover (required)")
	discoverCmd.Flags().BoolVar(&discoverEnqueue, "enqueue", false, "Enqueue discovered URLs instead of printing them")
	_ = discoverCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	source, err := parseSource(discoverSource)
	if err != nil {
		return err
	}
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
	stack := newFetchStack(cfg, logger)
	defer stack.close()
	if discovery.UsesBrowser(source) {
		if err := stack.startBrowser(ctx, cfg, logger); err != nil {
			return err
		}
	}

	d, err := discovery.New(source, cfg.Source(source), discovery.Deps{
		Client:   stack.client,
		Limiters: stack.limiters,
		Renderer: stack.renderer(),
		Dumper:   stack.dumper,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if !discoverEnqueue {
		urls, err := d.Discover(ctx)
		if err != nil && len(urls) == 0 {
			return err
		}
		observability.NewPrinter(os.Stdout).PrintDiscovered(source, urls)
		return err
	}

	nc, js, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	scheduler := discovery.NewScheduler(nil, queue.NewPublisher(js, logger), nil, 0, logger)
	stats := scheduler.Run(ctx, discovery.Job{Source: source, Discoverer: d})
	fmt.Fprintf(os.Stdout, "Found %d, enqueued %d, failed %d\n", stats.Found, stats.Enqueued, stats.Failed)
	return stats.Err
}
