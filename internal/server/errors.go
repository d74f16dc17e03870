// Package server provides the admin HTTP API over the offer store and the ingestion queue.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/queue"
	"github.com/jonathan/offer-ingest/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		message    *queue.MessageError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &message), errors.Is(err, types.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrOfferNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
