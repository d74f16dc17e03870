package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/types"
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List stored offers as JSON",
	RunE:  runOffers,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived snapshots of one offer as JSON",
	RunE:  runHistory,
}

var (
	offersSource     string
	offersActiveOnly bool
	offersTag        string
	offersLimit      int

	historySource     string
	historyExternalID string
)

func init() {
	offersCmd.Flags().StringVarP(&offersSource, "source", "s", "", "Only offers from this source")
	offersCmd.Flags().BoolVar(&offersActiveOnly, "active", false, "Only active offers")
	offersCmd.Flags().StringVar(&offersTag, "tag", "", "Only offers carrying this tag")
	offersCmd.Flags().IntVar(&offersLimit, "limit", 50, "Maximum number of offers")

	historyCmd.Flags().StringVarP(&historySource, "source", "s", "", "Source of the offer (required)")
	historyCmd.Flags().StringVar(&historyExternalID, "external-id", "", "External id of the offer (required)")
	_ = historyCmd.MarkFlagRequired("source")
	_ = historyCmd.MarkFlagRequired("external-id")

	rootCmd.AddCommand(offersCmd, historyCmd)
}

func runOffers(cmd *cobra.Command, _ []string) error {
	filters := db.OfferFilters{Tag: offersTag, Limit: offersLimit}
	if offersSource != "" {
		source, err := types.ParseSource(offersSource)
		if err != nil {
			return err
		}
		filters.Source = source
	}
	if offersActiveOnly {
		active := true
		filters.Active = &active
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	database, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	offers, err := database.ListOffers(cmd.Context(), filters)
	if err != nil {
		return err
	}
	return printJSON(offers)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	source, err := parseSource(historySource)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	database, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := database.ListHistory(cmd.Context(), source, historyExternalID)
	if err != nil {
		return err
	}
	return printJSON(records)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
