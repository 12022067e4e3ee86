// Package aggregation drives window processing: sweeping due windows,
// claiming them, running the preparation pipeline and handing the result to
// the summarization engine.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/pipeline"
	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// Aggregator processes due windows. Exactly-once processing per window rests
// on the claim CAS: of N concurrent sweeps, one wins the open → claimed
// transition and the rest skip.
type Aggregator struct {
	store       storage.EventStore
	executor    *pipeline.Executor
	engine      *summarize.Engine
	prefs       preferences.Provider
	maxAttempts int
	batchSize   int
	workerCount int
	now         func() time.Time
}

func NewAggregator(store storage.EventStore, executor *pipeline.Executor, engine *summarize.Engine, prefs preferences.Provider, maxAttempts, batchSize, workerCount int) *Aggregator {
	return &Aggregator{
		store:       store,
		executor:    executor,
		engine:      engine,
		prefs:       prefs,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		workerCount: workerCount,
		now:         time.Now,
	}
}

// Sweep claims and processes one batch of due windows. Returns the number of
// windows picked up so the scheduler can drain a backlog.
func (a *Aggregator) Sweep(ctx context.Context) (int, error) {
	claims, err := a.store.DueWindows(ctx, a.now().UTC(), a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing due windows: %w", err)
	}
	if len(claims) == 0 {
		return 0, nil
	}

	slog.Info("[Aggregator] Processing due windows",
		"count", len(claims),
		"workers", a.workerCount,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workerCount)
	for _, claim := range claims {
		claim := claim
		g.Go(func() error {
			a.processWindow(gctx, claim)
			return nil
		})
	}
	g.Wait()

	return len(claims), nil
}

// processWindow drives one window from open to processed. Any failure after
// the claim releases the window for a bounded retry; a window that exhausts
// its attempts is parked in failed and never blocks the sweep again.
func (a *Aggregator) processWindow(ctx context.Context, claim storage.WindowClaim) {
	err := a.store.ClaimWindow(ctx, claim.RecipientID, claim.WindowKey)
	if errors.Is(err, storage.ErrConflict) {
		return // another sweeper owns it
	}
	if err != nil {
		slog.Error("[Aggregator] Claiming window failed",
			"recipient_id", claim.RecipientID,
			"window_key", claim.WindowKey,
			"error", err,
		)
		return
	}

	if err := a.summarizeClaimed(ctx, claim); err != nil {
		slog.Warn("[Aggregator] Window processing failed, releasing claim",
			"recipient_id", claim.RecipientID,
			"window_key", claim.WindowKey,
			"attempts", claim.Attempts+1,
			"error", err,
		)
		if _, relErr := a.store.ReleaseWindow(ctx, claim.RecipientID, claim.WindowKey, a.maxAttempts); relErr != nil {
			slog.Error("[Aggregator] Releasing window claim failed",
				"recipient_id", claim.RecipientID,
				"window_key", claim.WindowKey,
				"error", relErr,
			)
		}
		return
	}

	if err := a.store.MarkWindowProcessed(ctx, claim.RecipientID, claim.WindowKey); err != nil && !errors.Is(err, storage.ErrConflict) {
		slog.Error("[Aggregator] Marking window processed failed",
			"recipient_id", claim.RecipientID,
			"window_key", claim.WindowKey,
			"error", err,
		)
	}
}

func (a *Aggregator) summarizeClaimed(ctx context.Context, claim storage.WindowClaim) error {
	events, err := a.store.ScanWindow(ctx, claim.RecipientID, claim.WindowKey)
	if err != nil {
		return fmt.Errorf("scanning window events: %w", err)
	}

	// A claim can outlive its events: a replay with a drifted timestamp
	// touches a window that never stored anything. An empty window has
	// nothing worth a generated digest, so close it without one.
	if len(events) == 0 {
		slog.Info("[Aggregator] Window empty, closing without summary",
			"recipient_id", claim.RecipientID,
			"window_key", claim.WindowKey,
		)
		return nil
	}

	prepared, err := a.executor.Run(claim.RecipientID, claim.WindowKey, claim.WindowStart, events)
	if err != nil {
		return fmt.Errorf("preparing window: %w", err)
	}

	prefs, err := a.prefs.Get(ctx, claim.RecipientID)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	summary, err := a.engine.SummarizeWindow(ctx, prepared, summarize.GranularityMicro, prefs.Verbosity)
	if err != nil {
		return err
	}

	// A failed summary is a terminal generation outcome, not a window
	// processing failure; the window is done either way.
	slog.Info("[Aggregator] Window summarized",
		"recipient_id", claim.RecipientID,
		"window_key", claim.WindowKey,
		"summary_id", summary.SummaryID,
		"status", summary.Status,
		"events", len(events),
	)
	return nil
}
