package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/pipeline"
)

// Engine turns prepared windows into summaries. Generation is idempotent on
// (recipient, window, granularity): a window that already has a terminal
// summary is never re-sent to the model.
//
// Error contract: a returned error means the attempt was inconclusive (store
// unavailable, model backend unreachable, sink failed) and the caller may
// retry the whole window; the summary stays pending across such retries. A
// nil error with a failed summary means the outcome is terminal.
type Engine struct {
	store Store
	llm   Summarizer
	sink  CompletionSink
	now   func() time.Time
}

// NewEngine builds an engine. sink may be nil when delivery is disabled.
func NewEngine(store Store, llm Summarizer, sink CompletionSink) *Engine {
	return &Engine{
		store: store,
		llm:   llm,
		sink:  sink,
		now:   time.Now,
	}
}

// SummarizeWindow generates (or returns) the summary for one prepared window.
func (e *Engine) SummarizeWindow(ctx context.Context, prepared *pipeline.PreparedWindow, granularity, verbosity string) (*Summary, error) {
	existing, err := e.store.GetByWindow(ctx, prepared.RecipientID, prepared.WindowKey, granularity)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up existing summary: %w", err)
	}
	if existing != nil && existing.Status != StatusPending {
		// Re-run the delivery handoff for ready summaries: the sink's
		// fan-out is idempotent, and a prior attempt may have crashed
		// between the terminal transition and the handoff.
		if existing.Status == StatusReady && e.sink != nil {
			if err := e.sink.SummaryReady(ctx, existing); err != nil {
				return nil, fmt.Errorf("handing summary to delivery: %w", err)
			}
		}
		return existing, nil
	}

	summary := existing
	if summary == nil {
		now := e.now().UTC()
		summary = &Summary{
			SummaryID:        ulid.Make().String(),
			RecipientID:      prepared.RecipientID,
			WindowKey:        prepared.WindowKey,
			WindowStart:      prepared.WindowStart,
			Granularity:      granularity,
			IncludedEventIDs: prepared.IncludedEventIDs,
			Status:           StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.store.InsertPending(ctx, summary); err != nil {
			if !errors.Is(err, storage.ErrDuplicate) {
				return nil, fmt.Errorf("inserting pending summary: %w", err)
			}
			// Another writer created it between lookup and insert.
			summary, err = e.store.GetByWindow(ctx, prepared.RecipientID, prepared.WindowKey, granularity)
			if err != nil {
				return nil, fmt.Errorf("re-reading summary after duplicate insert: %w", err)
			}
			if summary.Status != StatusPending {
				return summary, nil
			}
		}
	}

	draft, terminalReason, genErr := e.generate(ctx, prepared, verbosity)
	if genErr != nil {
		// Transport trouble is inconclusive: the summary stays pending and
		// the caller's claim release governs the retry.
		return nil, genErr
	}
	if terminalReason != "" {
		return e.finishFailed(ctx, summary, terminalReason)
	}
	return e.finishReady(ctx, summary, draft)
}

// generate runs the model with exactly one repair attempt for schema-invalid
// output. A non-empty terminal reason means the model answered but could not
// satisfy the schema; a returned error means the backend could not be reached
// at all and the attempt is retryable.
func (e *Engine) generate(ctx context.Context, prepared *pipeline.PreparedWindow, verbosity string) (*Draft, string, error) {
	raw, err := e.llm.Generate(ctx, GenerationPrompt(prepared, verbosity))
	if err != nil {
		return nil, "", fmt.Errorf("generation backend: %w", err)
	}

	draft, parseErr := ParseDraft(raw)
	if parseErr == nil {
		return draft, "", nil
	}

	slog.Warn("[Engine] model output violated schema, attempting repair",
		"recipient_id", prepared.RecipientID,
		"window_key", prepared.WindowKey,
		"violation", parseErr,
	)

	repaired, err := e.llm.Generate(ctx, RepairPrompt(raw, parseErr))
	if err != nil {
		return nil, "", fmt.Errorf("generation backend during repair: %w", err)
	}
	draft, parseErr = ParseDraft(repaired)
	if parseErr != nil {
		return nil, fmt.Sprintf("model output violated schema after repair: %v", parseErr), nil
	}
	return draft, "", nil
}

func (e *Engine) finishReady(ctx context.Context, summary *Summary, draft *Draft) (*Summary, error) {
	err := e.store.MarkReady(ctx, summary.SummaryID, draft.Headline, draft.Bullets)
	if errors.Is(err, storage.ErrConflict) {
		// Lost the terminal transition to a concurrent writer; their
		// outcome stands.
		return e.store.GetByID(ctx, summary.SummaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("marking summary ready: %w", err)
	}

	summary.Status = StatusReady
	summary.Headline = draft.Headline
	summary.Bullets = draft.Bullets
	summary.UpdatedAt = e.now().UTC()

	slog.Info("[Engine] summary ready",
		"summary_id", summary.SummaryID,
		"recipient_id", summary.RecipientID,
		"window_key", summary.WindowKey,
		"granularity", summary.Granularity,
		"bullets", len(summary.Bullets),
	)

	if e.sink != nil {
		if err := e.sink.SummaryReady(ctx, summary); err != nil {
			return nil, fmt.Errorf("handing summary to delivery: %w", err)
		}
	}
	return summary, nil
}

func (e *Engine) finishFailed(ctx context.Context, summary *Summary, reason string) (*Summary, error) {
	err := e.store.MarkFailed(ctx, summary.SummaryID, reason)
	if errors.Is(err, storage.ErrConflict) {
		return e.store.GetByID(ctx, summary.SummaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("marking summary failed: %w", err)
	}

	summary.Status = StatusFailed
	summary.FailureReason = reason
	summary.UpdatedAt = e.now().UTC()

	slog.Warn("[Engine] summary failed",
		"summary_id", summary.SummaryID,
		"recipient_id", summary.RecipientID,
		"window_key", summary.WindowKey,
		"reason", reason,
	)
	return summary, nil
}
