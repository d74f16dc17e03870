package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/config"
	"github.com/jonathan/offer-ingest/internal/dispatch"
	"github.com/jonathan/offer-ingest/internal/normalize"
	"github.com/jonathan/offer-ingest/internal/observability"
	"github.com/jonathan/offer-ingest/internal/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Fetch, parse and normalize one offer without storing it",
	Long: "Dry run of the detail path for one offer. With --url the page is fetched the way the " +
		"consumer would; with --file a saved document is parsed instead. Nothing is written.",
	RunE: runParse,
}

var (
	parseSourceName string
	parseURL        string
	parseFile       string
	parseJSON       bool
)

func init() {
	parseCmd.Flags().StringVarP(&parseSourceName, "source", "s", "", "Source of the offer (required)")
	parseCmd.Flags().StringVarP(&parseURL, "url", "u", "", "Offer URL to fetch, or the page URL of --file")
	parseCmd.Flags().StringVarP(&parseFile, "file", "f", "", "Saved offer document (HTML or API JSON)")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print the normalized offer as JSON")
	_ = parseCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, _ []string) error {
	if parseURL == "" && parseFile == "" {
		return fmt.Errorf("either --url or --file must be provided")
	}
	source, err := parseSource(parseSourceName)
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

	var parsed *types.ParsedOffer
	if parseFile != "" {
		parsed, err = parseSaved(source, parseFile, parseURL)
	} else {
		parsed, err = fetchAndParse(cmd, cfg, source, parseURL, logger)
	}
	if err != nil {
		return fmt.Errorf("%s (%s): %w", source, dispatch.Classify(err), err)
	}

	normalized := normalize.NewNormalizer(logger).Normalize(*parsed)
	if parseJSON {
		return printJSON(normalized)
	}
	observability.NewPrinter(os.Stdout).PrintOffer(&normalized)
	return nil
}

func parseSaved(source types.Source, path, pageURL string) (*types.ParsedOffer, error) {
	parse, ok := dispatch.ParserFor(source)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrUnsupportedSource, source)
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return parse(doc, pageURL)
}

func fetchAndParse(cmd *cobra.Command, cfg *config.Config, source types.Source, pageURL string, logger *zap.Logger) (*types.ParsedOffer, error) {
	ctx := cmd.Context()
	stack := newFetchStack(cfg, logger)
	defer stack.close()
	if dispatch.UsesBrowser(source) {
		if err := stack.startBrowser(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	registry, err := dispatch.BuildRegistry(cfg, dispatch.Deps{
		Client:   stack.client,
		Limiters: stack.limiters,
		Renderer: stack.renderer(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	route, err := registry.Route(source)
	if err != nil {
		return nil, err
	}

	target := registry.CanonicalURL(source, pageURL)
	document, err := route.Fetch.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	parsed, err := route.Parse(document.Body, document.URL)
	if err != nil {
		return nil, err
	}
	if id := registry.ExternalID(source, target); id != "" {
		parsed.ExternalID = id
	}
	return parsed, nil
}
