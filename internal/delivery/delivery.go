package delivery

import (
	"context"
	"time"
)

// Delivery states. pending → sent → acked is the success path; skipped and
// failed are terminal. States only ever advance, never regress.
const (
	StatePending = "pending"
	StateSent    = "sent"
	StateAcked   = "acked"
	StateSkipped = "skipped"
	StateFailed  = "failed"
)

// Record tracks the delivery of one summary over one channel.
// There is exactly one record per (summary_id, channel).
type Record struct {
	DeliveryID  string    `json:"delivery_id"`
	SummaryID   string    `json:"summary_id"`
	RecipientID string    `json:"recipient_id"`
	Channel     string    `json:"channel"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists delivery records. All transitions are conditional writes
// that enforce the monotonic state machine; a lost transition surfaces as
// storage.ErrConflict and is treated as success-by-another-writer.
type Store interface {
	// CreatePending inserts a pending record conditionally on
	// (summary_id, channel). Returns storage.ErrDuplicate when the record
	// already exists, which makes fan-out idempotent.
	CreatePending(ctx context.Context, rec *Record) error

	// ListPending returns pending records oldest first. The delivery worker
	// polls this to resume fan-out after a crash.
	ListPending(ctx context.Context, limit int) ([]*Record, error)

	// ListBySummary returns all records for one summary.
	ListBySummary(ctx context.Context, summaryID string) ([]*Record, error)

	// MarkSent transitions pending → sent and records the attempt count.
	MarkSent(ctx context.Context, deliveryID string, attempts int) error

	// MarkAcked transitions sent → acked.
	MarkAcked(ctx context.Context, deliveryID string) error

	// MarkSkipped transitions pending → skipped (quiet-hours suppression).
	MarkSkipped(ctx context.Context, deliveryID string) error

	// MarkFailed transitions pending or sent → failed after the retry budget
	// is exhausted, recording the last transport error.
	MarkFailed(ctx context.Context, deliveryID string, attempts int, lastError string) error
}
