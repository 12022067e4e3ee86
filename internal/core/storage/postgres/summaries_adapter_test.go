package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/summarize"
	"github.com/stretchr/testify/require"
)

func newMockSummaryAdapter(t *testing.T) (*SummaryAdapter, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return NewSummaryAdapter(db), mock, func() { db.Close() }
}

func summaryRowColumns() []string {
	return []string{
		"summary_id", "recipient_id", "window_key", "window_start", "granularity",
		"headline", "bullets", "included_event_ids", "status", "failure_reason",
		"created_at", "updated_at",
	}
}

func TestSummaryAdapter_InsertPending(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	s := &summarize.Summary{
		SummaryID:        "01JK0000000000000000000000",
		RecipientID:      "user:alice",
		WindowKey:        "2026-02-08T12:00:00Z",
		WindowStart:      now,
		Granularity:      summarize.GranularityMicro,
		IncludedEventIDs: []string{"evt-1", "evt-2"},
		Status:           summarize.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	t.Run("insert wins", func(t *testing.T) {
		adapter, mock, closeDB := newMockSummaryAdapter(t)
		defer closeDB()

		mock.ExpectQuery(regexp.QuoteMeta(queryInsertSummary)).
			WithArgs(
				s.SummaryID, s.RecipientID, s.WindowKey, s.WindowStart, s.Granularity,
				s.Headline, sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", s.FailureReason,
				s.CreatedAt, s.UpdatedAt,
			).
			WillReturnRows(sqlmock.NewRows([]string{"summary_id"}).AddRow(s.SummaryID))

		require.NoError(t, adapter.InsertPending(context.Background(), s))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing idempotency key maps to ErrDuplicate", func(t *testing.T) {
		adapter, mock, closeDB := newMockSummaryAdapter(t)
		defer closeDB()

		mock.ExpectQuery(regexp.QuoteMeta(queryInsertSummary)).
			WillReturnRows(sqlmock.NewRows([]string{"summary_id"}))

		require.ErrorIs(t, adapter.InsertPending(context.Background(), s), storage.ErrDuplicate)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSummaryAdapter_GetByWindow(t *testing.T) {
	adapter, mock, closeDB := newMockSummaryAdapter(t)
	defer closeDB()

	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetSummaryByWindow)).
		WithArgs("user:alice", "2026-02-08T12:00:00Z", "micro").
		WillReturnRows(sqlmock.NewRows(summaryRowColumns()).AddRow(
			"01JK0000000000000000000000", "user:alice", "2026-02-08T12:00:00Z", now, "micro",
			"Two builds failed", []byte(`["build 1 failed","build 2 failed"]`), []byte(`["evt-1","evt-2"]`),
			"ready", "", now, now,
		))

	s, err := adapter.GetByWindow(context.Background(), "user:alice", "2026-02-08T12:00:00Z", "micro")
	require.NoError(t, err)
	require.Equal(t, summarize.StatusReady, s.Status)
	require.Equal(t, "Two builds failed", s.Headline)
	require.Equal(t, []string{"build 1 failed", "build 2 failed"}, s.Bullets)
	require.Equal(t, []string{"evt-1", "evt-2"}, s.IncludedEventIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryAdapter_GetByWindow_NotFound(t *testing.T) {
	adapter, mock, closeDB := newMockSummaryAdapter(t)
	defer closeDB()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetSummaryByWindow)).
		WithArgs("user:alice", "2026-02-08T12:00:00Z", "micro").
		WillReturnRows(sqlmock.NewRows(summaryRowColumns()))

	_, err := adapter.GetByWindow(context.Background(), "user:alice", "2026-02-08T12:00:00Z", "micro")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryAdapter_MarkReady(t *testing.T) {
	t.Run("pending transitions to ready", func(t *testing.T) {
		adapter, mock, closeDB := newMockSummaryAdapter(t)
		defer closeDB()

		mock.ExpectExec(regexp.QuoteMeta(queryMarkSummaryReady)).
			WithArgs("sum-1", "Headline", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, adapter.MarkReady(context.Background(), "sum-1", "Headline", []string{"a", "b"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal summary maps to ErrConflict", func(t *testing.T) {
		adapter, mock, closeDB := newMockSummaryAdapter(t)
		defer closeDB()

		mock.ExpectExec(regexp.QuoteMeta(queryMarkSummaryReady)).
			WithArgs("sum-1", "Headline", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := adapter.MarkReady(context.Background(), "sum-1", "Headline", []string{"a", "b"})
		require.ErrorIs(t, err, storage.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
