// Package types provides type definitions for offer data flowing through the ingestion pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
)

// Source identifies the job board an offer was ingested from.
type Source string

const (
	SourceJustJoin    Source = "JUSTJOIN"
	SourceNoFluff     Source = "NOFLUFF"
	SourcePracuj      Source = "PRACUJ"
	SourceTheProtocol Source = "THEPROTOCOL"
)

// AllSources returns every supported source in a stable order.
func AllSources() []Source {
	return []Source{SourceJustJoin, SourceNoFluff, SourcePracuj, SourceTheProtocol}
}

// ErrUnknownSource is returned by ParseSource for names outside the closed set.
var ErrUnknownSource = fmt.Errorf("unknown source")

// ParseSource converts a case-insensitive name into a Source.
func ParseSource(s string) (Source, error) {
	candidate := Source(strings.ToUpper(strings.TrimSpace(s)))
	for _, src := range AllSources() {
		if src == candidate {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Valid reports whether s is one of the supported sources.
func (s Source) Valid() bool {
	for _, src := range AllSources() {
		if src == s {
			return true
		}
	}
	return false
}

// HomeCurrency is the currency assumed when a salary carries no currency token.
func (s Source) HomeCurrency() string {
	return "PLN"
}
