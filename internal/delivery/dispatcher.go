package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// Dispatcher fans ready summaries out to the recipient's channels and drives
// each delivery record through its state machine. Fan-out is durable: records
// are written before any send attempt, and a polling worker resumes pending
// records after a crash, giving at-least-once delivery per channel.
// SummaryReader is the slice of the summary store the dispatcher needs.
type SummaryReader interface {
	GetByID(ctx context.Context, summaryID string) (*summarize.Summary, error)
}

type Dispatcher struct {
	store       Store
	summaries   SummaryReader
	prefs       preferences.Provider
	transports  map[string]Transport
	maxAttempts int
	backoffBase time.Duration

	pollInterval time.Duration
	batchSize    int
	workerCount  int

	wake chan struct{}
	now  func() time.Time
	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher over the given transports.
func NewDispatcher(store Store, summaries SummaryReader, prefs preferences.Provider, transports []Transport, maxAttempts int, backoffBase, pollInterval time.Duration, batchSize, workerCount int) *Dispatcher {
	byName := make(map[string]Transport, len(transports))
	for _, t := range transports {
		byName[t.Name()] = t
	}
	return &Dispatcher{
		store:        store,
		summaries:    summaries,
		prefs:        prefs,
		transports:   byName,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		workerCount:  workerCount,
		wake:         make(chan struct{}, 1),
		now:          time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

var _ summarize.CompletionSink = (*Dispatcher)(nil)

// SummaryReady records one pending delivery per configured channel that has a
// transport, then wakes the worker. Creating the records is the durable part
// of the handoff; the actual sends happen on the worker loop.
func (d *Dispatcher) SummaryReady(ctx context.Context, s *summarize.Summary) error {
	prefs, err := d.prefs.Get(ctx, s.RecipientID)
	if err != nil {
		return fmt.Errorf("loading preferences for %s: %w", s.RecipientID, err)
	}

	created := 0
	for _, channel := range prefs.Channels {
		if _, ok := d.transports[channel]; !ok {
			slog.Warn("[Dispatcher] recipient configured unknown channel",
				"recipient_id", s.RecipientID,
				"channel", channel,
			)
			continue
		}

		now := d.now().UTC()
		rec := &Record{
			DeliveryID:  uuid.New().String(),
			SummaryID:   s.SummaryID,
			RecipientID: s.RecipientID,
			Channel:     channel,
			State:       StatePending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := d.store.CreatePending(ctx, rec)
		if errors.Is(err, storage.ErrDuplicate) {
			continue // fan-out already happened for this channel
		}
		if err != nil {
			return fmt.Errorf("creating delivery record (%s/%s): %w", s.SummaryID, channel, err)
		}
		created++
	}

	if created > 0 {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run polls for pending records until ctx is cancelled. Each batch is
// processed with bounded concurrency; one channel's failures never block a
// sibling channel's delivery.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("[Dispatcher] delivery worker started",
		"poll_interval", d.pollInterval.String(),
		"max_attempts", d.maxAttempts,
	)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		d.drainPending(ctx)

		select {
		case <-ctx.Done():
			slog.Info("[Dispatcher] delivery worker stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) drainPending(ctx context.Context) {
	records, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		slog.Error("[Dispatcher] listing pending deliveries failed", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerCount)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			d.deliver(gctx, rec)
			return nil
		})
	}
	g.Wait()
}

// deliver drives one record to a terminal-or-acked state. Transition
// conflicts mean another worker holds the record; they are never errors.
func (d *Dispatcher) deliver(ctx context.Context, rec *Record) {
	transport, ok := d.transports[rec.Channel]
	if !ok {
		d.markFailed(ctx, rec, rec.Attempts, fmt.Sprintf("no transport for channel %q", rec.Channel))
		return
	}

	summary, err := d.summaries.GetByID(ctx, rec.SummaryID)
	if err != nil {
		slog.Error("[Dispatcher] loading summary failed, leaving record pending",
			"delivery_id", rec.DeliveryID,
			"summary_id", rec.SummaryID,
			"error", err,
		)
		return
	}

	prefs, err := d.prefs.Get(ctx, rec.RecipientID)
	if err != nil {
		slog.Error("[Dispatcher] loading preferences failed, leaving record pending",
			"delivery_id", rec.DeliveryID,
			"error", err,
		)
		return
	}

	if transport.SuppressedDuringQuietHours() {
		active, err := prefs.QuietHours.Active(d.now())
		if err != nil {
			slog.Warn("[Dispatcher] unusable quiet hours config, treating as inactive",
				"recipient_id", rec.RecipientID,
				"error", err,
			)
		}
		if active {
			if err := d.store.MarkSkipped(ctx, rec.DeliveryID); err != nil && !errors.Is(err, storage.ErrConflict) {
				slog.Error("[Dispatcher] marking delivery skipped failed", "delivery_id", rec.DeliveryID, "error", err)
				return
			}
			slog.Info("[Dispatcher] delivery suppressed by quiet hours",
				"delivery_id", rec.DeliveryID,
				"recipient_id", rec.RecipientID,
				"channel", rec.Channel,
			)
			return
		}
	}

	var lastErr error
	attempts := rec.Attempts
	for attempts < d.maxAttempts {
		attempts++
		lastErr = transport.Send(ctx, prefs, summary)
		if lastErr == nil {
			if err := d.store.MarkSent(ctx, rec.DeliveryID, attempts); err != nil && !errors.Is(err, storage.ErrConflict) {
				slog.Error("[Dispatcher] marking delivery sent failed", "delivery_id", rec.DeliveryID, "error", err)
				return
			}
			if !transport.ConfirmsDelivery() {
				if err := d.store.MarkAcked(ctx, rec.DeliveryID); err != nil && !errors.Is(err, storage.ErrConflict) {
					slog.Error("[Dispatcher] marking delivery acked failed", "delivery_id", rec.DeliveryID, "error", err)
				}
			}
			slog.Info("[Dispatcher] delivery sent",
				"delivery_id", rec.DeliveryID,
				"channel", rec.Channel,
				"attempts", attempts,
			)
			return
		}

		if attempts >= d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, d.backoffBase<<(attempts-1)); err != nil {
			return // shutdown; record stays pending and is retried next run
		}
	}

	reason := "retry budget exhausted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	d.markFailed(ctx, rec, attempts, reason)
}

func (d *Dispatcher) markFailed(ctx context.Context, rec *Record, attempts int, reason string) {
	if err := d.store.MarkFailed(ctx, rec.DeliveryID, attempts, reason); err != nil && !errors.Is(err, storage.ErrConflict) {
		slog.Error("[Dispatcher] marking delivery failed errored", "delivery_id", rec.DeliveryID, "error", err)
		return
	}
	slog.Warn("[Dispatcher] delivery failed permanently",
		"delivery_id", rec.DeliveryID,
		"channel", rec.Channel,
		"attempts", attempts,
		"reason", reason,
	)
}

// Acknowledge confirms a sent delivery, completing the sent → acked
// transition for channels that confirm out of band.
func (d *Dispatcher) Acknowledge(ctx context.Context, deliveryID string) error {
	return d.store.MarkAcked(ctx, deliveryID)
}
