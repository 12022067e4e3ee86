package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// SummaryAdapter implements summarize.Store using PostgreSQL.
// It shares the connection owned by the events Adapter.
type SummaryAdapter struct {
	db *sql.DB
}

// NewSummaryAdapter creates a SummaryAdapter sharing the given connection.
func NewSummaryAdapter(db *sql.DB) *SummaryAdapter {
	return &SummaryAdapter{db: db}
}

// InsertPending creates a pending summary row. The unique index on
// (recipient_id, window_key, granularity) makes the insert the idempotency
// gate: a second writer gets storage.ErrDuplicate and must load the winner.
func (a *SummaryAdapter) InsertPending(ctx context.Context, s *summarize.Summary) error {
	bulletsJSON, err := marshalStrings(s.Bullets)
	if err != nil {
		return err
	}
	idsJSON, err := marshalStrings(s.IncludedEventIDs)
	if err != nil {
		return err
	}

	var id string
	err = a.db.QueryRowContext(ctx, queryInsertSummary,
		s.SummaryID,
		s.RecipientID,
		s.WindowKey,
		s.WindowStart,
		s.Granularity,
		s.Headline,
		bulletsJSON,
		idsJSON,
		summarize.StatusPending,
		s.FailureReason,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// GetByID returns the summary with the given ID.
func (a *SummaryAdapter) GetByID(ctx context.Context, summaryID string) (*summarize.Summary, error) {
	row := a.db.QueryRowContext(ctx, queryGetSummaryByID, summaryID)
	return scanSummaryRow(row)
}

// GetByWindow returns the summary for one (recipient, window, granularity).
func (a *SummaryAdapter) GetByWindow(ctx context.Context, recipientID, windowKey, granularity string) (*summarize.Summary, error) {
	row := a.db.QueryRowContext(ctx, queryGetSummaryByWindow, recipientID, windowKey, granularity)
	return scanSummaryRow(row)
}

// MarkReady performs the pending → ready transition with the generated
// content. storage.ErrConflict means another writer already finished.
func (a *SummaryAdapter) MarkReady(ctx context.Context, summaryID, headline string, bullets []string) error {
	bulletsJSON, err := marshalStrings(bullets)
	if err != nil {
		return err
	}

	res, err := a.db.ExecContext(ctx, queryMarkSummaryReady, summaryID, headline, bulletsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark summary ready: %w", err)
	}
	return requireTransition(res)
}

// MarkFailed performs the pending → failed transition with the reason.
func (a *SummaryAdapter) MarkFailed(ctx context.Context, summaryID, reason string) error {
	res, err := a.db.ExecContext(ctx, queryMarkSummaryFailed, summaryID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark summary failed: %w", err)
	}
	return requireTransition(res)
}

// ListByRecipient returns the recipient's summaries, newest first.
func (a *SummaryAdapter) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*summarize.Summary, error) {
	rows, err := a.db.QueryContext(ctx, queryListSummariesByRecipient, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// ListReadyBetween returns ready summaries of one granularity in
// [start, end), ordered by window start ASC.
func (a *SummaryAdapter) ListReadyBetween(ctx context.Context, recipientID, granularity string, start, end time.Time) ([]*summarize.Summary, error) {
	rows, err := a.db.QueryContext(ctx, queryListReadySummariesBetween, recipientID, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// RecipientsWithReadyBetween lists recipients with ready summaries of the
// granularity in [start, end).
func (a *SummaryAdapter) RecipientsWithReadyBetween(ctx context.Context, granularity string, start, end time.Time) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, queryRecipientsWithReadyBetween, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return recipients, nil
}

func collectSummaries(rows *sql.Rows) ([]*summarize.Summary, error) {
	var summaries []*summarize.Summary
	for rows.Next() {
		s, err := scanSummaryRow(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}
	return summaries, nil
}

func scanSummaryRow(row scanner) (*summarize.Summary, error) {
	var s summarize.Summary
	var bulletsJSON, idsJSON []byte

	err := row.Scan(
		&s.SummaryID,
		&s.RecipientID,
		&s.WindowKey,
		&s.WindowStart,
		&s.Granularity,
		&s.Headline,
		&bulletsJSON,
		&idsJSON,
		&s.Status,
		&s.FailureReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary row: %w", err)
	}

	if err := json.Unmarshal(bulletsJSON, &s.Bullets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bullets: %w", err)
	}
	if err := json.Unmarshal(idsJSON, &s.IncludedEventIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal included event ids: %w", err)
	}

	return &s, nil
}

// requireTransition maps a zero-row conditional UPDATE to storage.ErrConflict.
func requireTransition(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read transition result: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}
