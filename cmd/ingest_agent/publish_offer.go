package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/types"
)

var publishOfferCmd = &cobra.Command{
	Use:   "publish-offer",
	Short: "Publish a fully formed offer from a JSON file",
	Long:  "Publish a ParsedOffer JSON document as a full-offer message, bypassing the detail fetch.",
	RunE:  runPublishOffer,
}

var publishOfferFile string

func init() {
	publishOfferCmd.Flags().StringVarP(&publishOfferFile, "file", "f", "", "Path to the offer JSON file (required)")
	_ = publishOfferCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(publishOfferCmd)
}

// readOfferFile loads a ParsedOffer and checks it against the offer message schema.
func readOfferFile(path string) (types.ParsedOffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ParsedOffer{}, fmt.Errorf("failed to read offer file: %w", err)
	}
	var offer types.ParsedOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		return types.ParsedOffer{}, fmt.Errorf("failed to decode offer file: %w", err)
	}
	payload, err := json.Marshal(types.OfferMessage{Offer: offer})
	if err != nil {
		return types.ParsedOffer{}, fmt.Errorf("failed to encode offer message: %w", err)
	}
	if _, err := queue.DecodeOffer(payload); err != nil {
		return types.ParsedOffer{}, err
	}
	return offer, nil
}

func runPublishOffer(cmd *cobra.Command, _ []string) error {
	offer, err := readOfferFile(publishOfferFile)
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

	nc, js, err := openQueue(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	id, err := queue.NewPublisher(js, logger).PublishOffer(cmd.Context(), offer)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Published %s/%s (correlation id %s)\n", offer.Source, offer.ExternalID, id)
	return nil
}
