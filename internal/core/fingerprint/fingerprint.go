// Package fingerprint computes the content hash used for ingestion dedupe.
//
// The hash is taken over a canonical form of the event payload: JSON with
// object keys in sorted order and no insignificant whitespace. Two payloads
// that differ only in field order or formatting produce the same fingerprint.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// envelope scopes the hash to the source type so that identical payloads from
// different sources stay distinct.
type envelope struct {
	SourceType string                 `json:"source_type"`
	Payload    map[string]interface{} `json:"payload"`
}

// Hash returns the hex-encoded BLAKE3 digest of the canonical payload form.
//
// encoding/json marshals map keys in sorted order at every nesting level,
// which gives the field-order independence the dedupe key requires.
func Hash(sourceType string, payload map[string]interface{}) (string, error) {
	canonical, err := json.Marshal(envelope{SourceType: sourceType, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
