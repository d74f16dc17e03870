// Package schemas embeds the JSON Schemas for messages carried on the ingest queue.
package schemas

import "embed"

// Schema file names.
const (
	URLMessage   = "url_message.schema.json"
	OfferMessage = "offer_message.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Load returns the raw content of the named schema.
func Load(name string) ([]byte, error) {
	return files.ReadFile(name)
}

// Names lists every embedded schema.
func Names() []string {
	return []string{URLMessage, OfferMessage}
}
