// Package parsing turns fetched offer documents (HTML pages or JSON API payloads) into ParsedOffer records.
// Each source has its own parser; they share JSON-LD extraction and DOM heuristics.
package parsing

import (
	"encoding/json"
	"time"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Parser turns one fetched document into a ParsedOffer. It returns a *ParseError when the
// document lacks its mandatory anchor and an error wrapping ErrExpired for removed offers.
type Parser func(doc []byte, pageURL string) (*types.ParsedOffer, error)

var now = time.Now

// decodeEnvelope decodes a JSON API payload, unwrapping a {"data": ...} or {"offer": ...} envelope.
func decodeEnvelope(source types.Source, doc []byte) (map[string]any, error) {
	var tree any
	if err := json.Unmarshal(doc, &tree); err != nil {
		return nil, newParseError(source, doc, "malformed JSON payload", err)
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, newParseError(source, doc, "payload is not a JSON object", nil)
	}
	for _, key := range []string{"data", "offer", "posting"} {
		if inner, ok := obj[key].(map[string]any); ok && inner["title"] != nil {
			return inner, nil
		}
	}
	return obj, nil
}
