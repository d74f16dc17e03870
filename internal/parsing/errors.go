package parsing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/offer-ingest/internal/types"
)

// ErrExpired is returned (wrapped) when the document is an expired or removed offer page.
var ErrExpired = fmt.Errorf("offer expired")

// ParseError represents a document that lacks a mandatory structural anchor or has an unexpected shape.
type ParseError struct {
	Source  types.Source
	Message string
	// Snippet is the start of the offending document, kept for diagnosing format changes.
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error (%s): %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error (%s): %s", e.Source, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// SnippetLength bounds the document excerpt stored on a ParseError.
const SnippetLength = 300

func newParseError(source types.Source, doc []byte, message string, cause error) *ParseError {
	return &ParseError{
		Source:  source,
		Message: message,
		Snippet: Snippet(string(doc), SnippetLength),
		Cause:   cause,
	}
}

func expired(reason string) error {
	return fmt.Errorf("%w: %s", ErrExpired, reason)
}

// Snippet returns the first n runes of s with whitespace collapsed.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
