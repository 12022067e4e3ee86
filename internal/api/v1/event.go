package v1

import (
	"fmt"
	"time"
)

// Event is the atomic unit of the system.
// It separates the "Envelope" (System Attributes) from the "Letter" (Payload).
type Event struct {
	// --- System Attributes (The Envelope) ---

	// EventID is the unique immutable identifier provided by the client.
	EventID string `json:"event_id"`

	// RecipientID identifies the person whose digest this event feeds.
	// Examples: "user:alice@example.com", "account:123"
	// This is the primary dimension for windowing and delivery.
	// This field is REQUIRED and has no default value.
	RecipientID string `json:"recipient_id"`

	// SourceType is the domain-specific event name (e.g., "ci.build", "pr.review").
	SourceType string `json:"source_type"`

	// Metadata is a generic key-value store for context (e.g., source, trace_id).
	Metadata map[string]string `json:"metadata,omitempty"`

	// OccurredAt is when the event happened in the real world (client-side clock).
	// This distinguishes it from IngestedAt (server-side clock) and decides
	// which window the event belongs to.
	OccurredAt time.Time `json:"occurred_at"`

	// IngestedAt is when briefcast received the event (audit trail).
	// Set by the ingestion service, not the client.
	IngestedAt time.Time `json:"ingested_at"`

	// ContentHash is a deterministic fingerprint of the normalized payload.
	// Computed by the ingestion gate; insertion is conditional on
	// (recipient_id, content_hash) so replayed events collapse to one row.
	ContentHash string `json:"-"`

	// WindowKey identifies the fixed time bucket this event belongs to.
	// Derived from OccurredAt truncated to the configured window size.
	WindowKey string `json:"-"`

	// IngestSeq is a monotonic sequence number assigned by the database
	// (BIGSERIAL). Not exposed in the public API.
	IngestSeq int64 `json:"-"`

	// --- User Payload (The Letter) ---

	// Payload is the domain-specific content. Free-text fields inside it
	// flow through the redaction and clustering pipeline.
	Payload map[string]interface{} `json:"payload"`
}

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	if e.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}

	if e.SourceType == "" {
		return fmt.Errorf("source_type is required")
	}

	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}

	return nil
}
