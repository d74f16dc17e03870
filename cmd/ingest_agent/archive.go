package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/dispatch"
	"github.com/jonathan/offer-ingest/internal/ingest"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive one offer into history and remove it from the live table",
	RunE:  runArchive,
}

var (
	archiveSource     string
	archiveExternalID string
)

func init() {
	archiveCmd.Flags().StringVarP(&archiveSource, "source", "s", "", "Source of the offer (required)")
	archiveCmd.Flags().StringVar(&archiveExternalID, "external-id", "", "External id of the offer (required)")
	_ = archiveCmd.MarkFlagRequired("source")
	_ = archiveCmd.MarkFlagRequired("external-id")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, _ []string) error {
	source, err := parseSource(archiveSource)
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

	database, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// Archival is keyed by external id, so the registry needs no fetch resources.
	registry, err := dispatch.BuildRegistry(cfg, dispatch.Deps{Logger: logger})
	if err != nil {
		return err
	}
	service := ingest.NewService(database, registry, logger)
	if err := service.Archive(cmd.Context(), source, archiveExternalID, db.ReasonManual); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Archived %s/%s\n", source, archiveExternalID)
	return nil
}
