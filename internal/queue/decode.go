package queue

import (
	"encoding/json"

	"github.com/jonathan/offer-ingest/internal/schemas"
	"github.com/jonathan/offer-ingest/internal/types"
	schemafiles "github.com/jonathan/offer-ingest/schemas"
)

// DecodeURL validates data against the URL message schema and decodes it.
func DecodeURL(data []byte) (types.URLMessage, error) {
	var msg types.URLMessage
	if err := decode(SubjectURL, schemafiles.URLMessage, data, &msg); err != nil {
		return msg, err
	}
	if err := msg.Validate(); err != nil {
		return msg, &MessageError{Subject: SubjectURL, Message: "invalid url message", Cause: err}
	}
	return msg, nil
}

// DecodeOffer validates data against the offer message schema and decodes it.
func DecodeOffer(data []byte) (types.OfferMessage, error) {
	var msg types.OfferMessage
	if err := decode(SubjectOffer, schemafiles.OfferMessage, data, &msg); err != nil {
		return msg, err
	}
	if err := msg.Validate(); err != nil {
		return msg, &MessageError{Subject: SubjectOffer, Message: "invalid offer message", Cause: err}
	}
	return msg, nil
}

func decode(subject, schemaName string, data []byte, v any) error {
	schema, err := schemas.Load(schemaName)
	if err != nil {
		return &MessageError{Subject: subject, Message: "schema unavailable", Cause: err}
	}
	if err := schema.Validate(data); err != nil {
		return &MessageError{Subject: subject, Message: "schema validation failed", Cause: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &MessageError{Subject: subject, Message: "malformed payload", Cause: err}
	}
	return nil
}
