// Package discovery enumerates candidate offer URLs per source and hands them to the work queue.
package discovery

import (
	"errors"
	"fmt"
)

// ErrNoOffersFound is returned when a listing page yields no offer links at all.
var ErrNoOffersFound = errors.New("no offers found")

// Error represents a failure of one discovery step.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discovery error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("discovery error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
