package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/parsing"
)

// ErrUnsupportedSource is returned for messages naming a source with no registered route.
var ErrUnsupportedSource = errors.New("unsupported source")

// Class is the failure taxonomy driving the per-message state machine.
type Class string

const (
	// Transient failures are retried by redelivery.
	Transient Class = "transient"
	// Gone means the offer no longer exists at the source; it is deactivated, not retried.
	Gone Class = "gone"
	// NonRetryable failures are dropped.
	NonRetryable Class = "non_retryable"
	// Duplicate is a lost insert race on the offer key and is treated as success.
	Duplicate Class = "duplicate"
)

// Classify maps an error from fetch, parse or persistence onto a Class.
func Classify(err error) Class {
	var (
		statusErr *fetch.StatusError
		botWall   *fetch.BotWallError
		fetchErr  *fetch.Error
		dupErr    *db.DuplicateKeyError
		netErr    net.Error
	)

	switch {
	case errors.As(err, &dupErr):
		return Duplicate
	case errors.Is(err, parsing.ErrExpired):
		return Gone
	case errors.As(err, &statusErr):
		return classifyStatus(statusErr.Code)
	case errors.As(err, &botWall):
		return Transient
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Transient
	case errors.As(err, &fetchErr):
		if fetchErr.Retryable {
			return Transient
		}
		return NonRetryable
	case errors.As(err, &netErr) && netErr.Timeout():
		// Store and broker timeouts reach here unwrapped by fetch. They say
		// nothing about the record itself, so the message is redelivered.
		return Transient
	}
	return NonRetryable
}

func classifyStatus(code int) Class {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return Gone
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return Transient
	case code >= 500:
		return Transient
	}
	return NonRetryable
}

// snippetOf returns the response or document excerpt carried by err, if any.
func snippetOf(err error) string {
	var (
		statusErr *fetch.StatusError
		parseErr  *parsing.ParseError
	)
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Snippet
	case errors.As(err, &parseErr):
		return parseErr.Snippet
	}
	return ""
}
