package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
)

// ErrDuplicate is returned when a conditional insert finds an existing row
// with the same idempotency key.
var ErrDuplicate = errors.New("record already exists")

// ErrConflict is returned when a conditional state transition finds the row
// in a different state than expected. Callers treat this as
// success-by-another-writer, not as a failure.
var ErrConflict = errors.New("conditional write lost")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Window claim states. A window has at most one non-open claim at any time;
// the conditional transition open → claimed is the only mutual exclusion
// mechanism in the system.
const (
	WindowOpen      = "open"
	WindowClaimed   = "claimed"
	WindowProcessed = "processed"
	WindowFailed    = "failed"
)

// WindowClaim is the processing-rights record for one (recipient, window).
type WindowClaim struct {
	RecipientID string
	WindowKey   string
	WindowStart time.Time
	WindowEnd   time.Time
	State       string
	Attempts    int
	ClaimedAt   time.Time
}

// EventStore defines the durable event log plus the window claim table that
// coordinates aggregation workers.
type EventStore interface {
	// PutEvent inserts an event conditionally on (recipient_id, content_hash).
	// Returns ErrDuplicate if an event with the same fingerprint exists.
	PutEvent(ctx context.Context, event *v1.Event) error

	// ScanWindow returns the point-in-time snapshot of all events stored for
	// one (recipient, window), ordered by ingest_seq ASC.
	ScanWindow(ctx context.Context, recipientID, windowKey string) ([]*v1.Event, error)

	// EnsureWindowOpen creates the claim row in state open if absent.
	// Never overwrites an existing claim in any state.
	EnsureWindowOpen(ctx context.Context, recipientID, windowKey string, windowStart, windowEnd time.Time) error

	// GetWindowClaim returns the claim for one (recipient, window), or
	// ErrNotFound if no claim row exists. Ingestion uses this to keep late
	// arrivals out of windows whose snapshot is already taken.
	GetWindowClaim(ctx context.Context, recipientID, windowKey string) (*WindowClaim, error)

	// DueWindows lists open claims whose window end is at or before the
	// given instant, oldest first.
	DueWindows(ctx context.Context, before time.Time, limit int) ([]WindowClaim, error)

	// ClaimWindow performs the conditional transition open → claimed.
	// Returns ErrConflict if the claim is not open (another worker won).
	ClaimWindow(ctx context.Context, recipientID, windowKey string) error

	// MarkWindowProcessed performs the transition claimed → processed.
	MarkWindowProcessed(ctx context.Context, recipientID, windowKey string) error

	// ReleaseWindow returns a claimed window to open for a later retry,
	// incrementing its attempt counter. Once attempts reach maxAttempts the
	// claim transitions to failed instead; the window is then permanently
	// abandoned. Reports whether the window was released for retry.
	ReleaseWindow(ctx context.Context, recipientID, windowKey string, maxAttempts int) (bool, error)
}
