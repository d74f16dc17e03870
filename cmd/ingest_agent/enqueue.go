package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/discovery"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/types"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue one offer URL for processing",
	RunE:  runEnqueue,
}

var (
	enqueueSource string
	enqueueURL    string
)

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueSource, "source", "s", "", "Source of the offer (detected from the URL host when omitted)")
	enqueueCmd.Flags().StringVarP(&enqueueURL, "url", "u", "", "Offer URL (required)")
	_ = enqueueCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	source, err := resolveSource(enqueueSource, enqueueURL)
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

	rules, err := discovery.RulesFor(source, cfg.Source(source))
	if err != nil {
		return err
	}
	target := enqueueURL
	if canonical, ok := rules.Canonicalize(enqueueURL); ok {
		target = canonical
	} else {
		logger.Warn("URL does not look like an offer page, enqueueing as given", zap.String("url", enqueueURL))
	}

	nc, js, err := openQueue(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := queue.NewPublisher(js, logger).EnqueueURL(cmd.Context(), target, source); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Enqueued %s %s\n", source, target)
	return nil
}

// resolveSource parses name, or detects the source from the URL host when name is empty.
func resolveSource(name, rawURL string) (types.Source, error) {
	if name != "" {
		return parseSource(name)
	}
	if source, ok := fetch.DetectSource(rawURL); ok {
		return source, nil
	}
	return "", fmt.Errorf("cannot detect the source of %q, pass --source", rawURL)
}
