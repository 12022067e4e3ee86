package summarize

import (
	"context"
	"time"
)

// Summary statuses. pending is the only non-terminal status; a summary
// transitions to ready or failed exactly once.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Summary granularities.
const (
	GranularityMicro = "micro"
	GranularityDaily = "daily"
)

// Summary is the generated digest for one (recipient, window, granularity).
// SummaryID is a ULID so summaries sort by creation time.
type Summary struct {
	SummaryID        string    `json:"summary_id"`
	RecipientID      string    `json:"recipient_id"`
	WindowKey        string    `json:"window_key"`
	WindowStart      time.Time `json:"window_start"`
	Granularity      string    `json:"granularity"`
	Headline         string    `json:"headline"`
	Bullets          []string  `json:"bullets"`
	IncludedEventIDs []string  `json:"included_event_ids"`
	Status           string    `json:"status"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store persists summaries. Uniqueness on (recipient_id, window_key,
// granularity) is the idempotency key that prevents regeneration.
type Store interface {
	// InsertPending creates a pending summary. Returns storage.ErrDuplicate
	// if a summary already exists for the idempotency key.
	InsertPending(ctx context.Context, s *Summary) error

	// GetByID returns the summary with the given ID, or storage.ErrNotFound.
	GetByID(ctx context.Context, summaryID string) (*Summary, error)

	// GetByWindow returns the summary for one idempotency key, or
	// storage.ErrNotFound.
	GetByWindow(ctx context.Context, recipientID, windowKey, granularity string) (*Summary, error)

	// MarkReady performs the conditional transition pending → ready and
	// records the generated content. Returns storage.ErrConflict if the
	// summary is no longer pending.
	MarkReady(ctx context.Context, summaryID, headline string, bullets []string) error

	// MarkFailed performs the conditional transition pending → failed and
	// records the failure reason. Returns storage.ErrConflict if the summary
	// is no longer pending.
	MarkFailed(ctx context.Context, summaryID, reason string) error

	// ListByRecipient returns the recipient's summaries, newest first.
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*Summary, error)

	// ListReadyBetween returns ready summaries of one granularity whose
	// window start falls in [start, end), ordered by window start ASC.
	// Feeds the daily rollup composition.
	ListReadyBetween(ctx context.Context, recipientID, granularity string, start, end time.Time) ([]*Summary, error)

	// RecipientsWithReadyBetween lists the distinct recipients that have at
	// least one ready summary of the granularity in [start, end).
	RecipientsWithReadyBetween(ctx context.Context, granularity string, start, end time.Time) ([]string, error)
}

// CompletionSink receives ready summaries for delivery fan-out. The engine
// does not know how many or which channels listen; the sink is expected to
// record the handoff durably so delivery survives a crash (at-least-once).
type CompletionSink interface {
	SummaryReady(ctx context.Context, s *Summary) error
}
