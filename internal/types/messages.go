package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// URLMessage asks the consumer to fetch, parse and store one offer page.
type URLMessage struct {
	URL    string `json:"url" validate:"required,url"`
	Source Source `json:"source" validate:"required"`
}

// Validate validates the URLMessage using the validator.
func (m *URLMessage) Validate() error {
	validate := validator.New()
	if err := validate.Struct(m); err != nil {
		return err
	}
	if !m.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSource, m.Source)
	}
	return nil
}

// OfferMessage carries a fully formed offer from sources that do not need a detail fetch.
type OfferMessage struct {
	Offer ParsedOffer `json:"offer"`
}

// Validate validates the OfferMessage using the validator.
func (m *OfferMessage) Validate() error {
	validate := validator.New()
	if err := validate.Struct(m); err != nil {
		return err
	}
	if !m.Offer.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSource, m.Offer.Source)
	}
	return nil
}

// Message headers carried alongside OfferMessage payloads.
const (
	HeaderCorrelationID = "Correlation-Id"
	HeaderSource        = "Offer-Source"
	HeaderExternalID    = "Offer-External-Id"
)
