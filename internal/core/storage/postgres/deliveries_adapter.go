package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/delivery"
)

// DeliveryAdapter implements delivery.Store using PostgreSQL.
// It shares the connection owned by the events Adapter.
type DeliveryAdapter struct {
	db *sql.DB
}

// NewDeliveryAdapter creates a DeliveryAdapter sharing the given connection.
func NewDeliveryAdapter(db *sql.DB) *DeliveryAdapter {
	return &DeliveryAdapter{db: db}
}

// CreatePending inserts a pending record conditionally on
// (summary_id, channel). storage.ErrDuplicate means fan-out already ran.
func (a *DeliveryAdapter) CreatePending(ctx context.Context, rec *delivery.Record) error {
	res, err := a.db.ExecContext(ctx, queryCreateDelivery,
		rec.DeliveryID,
		rec.SummaryID,
		rec.RecipientID,
		rec.Channel,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read create result: %w", err)
	}
	if affected == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

// ListPending returns pending records oldest first.
func (a *DeliveryAdapter) ListPending(ctx context.Context, limit int) ([]*delivery.Record, error) {
	rows, err := a.db.QueryContext(ctx, queryListPendingDeliveries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListBySummary returns all records for one summary.
func (a *DeliveryAdapter) ListBySummary(ctx context.Context, summaryID string) ([]*delivery.Record, error) {
	rows, err := a.db.QueryContext(ctx, queryListDeliveriesBySummary, summaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// MarkSent transitions pending → sent.
func (a *DeliveryAdapter) MarkSent(ctx context.Context, deliveryID string, attempts int) error {
	res, err := a.db.ExecContext(ctx, queryMarkDeliverySent, deliveryID, attempts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	return requireTransition(res)
}

// MarkAcked transitions sent → acked.
func (a *DeliveryAdapter) MarkAcked(ctx context.Context, deliveryID string) error {
	res, err := a.db.ExecContext(ctx, queryMarkDeliveryAcked, deliveryID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivery acked: %w", err)
	}
	return requireTransition(res)
}

// MarkSkipped transitions pending → skipped.
func (a *DeliveryAdapter) MarkSkipped(ctx context.Context, deliveryID string) error {
	res, err := a.db.ExecContext(ctx, queryMarkDeliverySkipped, deliveryID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivery skipped: %w", err)
	}
	return requireTransition(res)
}

// MarkFailed transitions pending or sent → failed with the last error.
func (a *DeliveryAdapter) MarkFailed(ctx context.Context, deliveryID string, attempts int, lastError string) error {
	res, err := a.db.ExecContext(ctx, queryMarkDeliveryFailed, deliveryID, attempts, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return requireTransition(res)
}

func collectDeliveries(rows *sql.Rows) ([]*delivery.Record, error) {
	var records []*delivery.Record
	for rows.Next() {
		var rec delivery.Record
		err := rows.Scan(
			&rec.DeliveryID,
			&rec.SummaryID,
			&rec.RecipientID,
			&rec.Channel,
			&rec.State,
			&rec.Attempts,
			&rec.LastError,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}
	return records, nil
}
