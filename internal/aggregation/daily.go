package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefcast-io/briefcast/internal/core/window"
	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// dailyLookbackDays bounds how far back each rollup pass scans. Rollups are
// idempotent, so revisiting already-rolled-up days is cheap; the lookback
// exists so an outage spanning one or two whole days still gets its rollups
// once the service is back.
const dailyLookbackDays = 3

// DailyScheduler composes daily rollups from recent UTC days' ready micro
// summaries. It does not use window claims: summary uniqueness on
// (recipient, day, daily) already makes each rollup happen once, and the
// engine returns the stored outcome on every later pass.
type DailyScheduler struct {
	interval  time.Duration
	summaries summarize.Store
	engine    *summarize.Engine
	prefs     preferences.Provider
	now       func() time.Time
}

func NewDailyScheduler(interval time.Duration, summaries summarize.Store, engine *summarize.Engine, prefs preferences.Provider) *DailyScheduler {
	return &DailyScheduler{
		interval:  interval,
		summaries: summaries,
		engine:    engine,
		prefs:     prefs,
		now:       time.Now,
	}
}

// Start runs rollup passes until the context is cancelled. Each pass covers
// the last few completed UTC days, so a rollup missed at midnight — or during
// a longer outage — is picked up by any later pass within the lookback.
func (s *DailyScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[DailyRollup] Starting daily rollup scheduler", "interval", s.interval.String())

	if err := s.RunOnce(ctx); err != nil {
		slog.Error("[DailyRollup] Initial rollup pass failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.Error("[DailyRollup] Rollup pass failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[DailyRollup] Stopping (context cancelled)")
			return nil
		}
	}
}

// RunOnce rolls up each of the last dailyLookbackDays completed UTC days,
// most recent first, for every recipient that has ready micro summaries in
// them.
func (s *DailyScheduler) RunOnce(ctx context.Context) error {
	now := s.now().UTC()
	for offset := 1; offset <= dailyLookbackDays; offset++ {
		dayStart, dayEnd := window.DayBoundsFor(now.AddDate(0, 0, -offset))
		dayKey := window.DayKeyFor(dayStart)

		recipients, err := s.summaries.RecipientsWithReadyBetween(ctx, summarize.GranularityMicro, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("listing recipients for daily rollup: %w", err)
		}

		for _, recipientID := range recipients {
			if err := s.rollupRecipient(ctx, recipientID, dayKey, dayStart, dayEnd); err != nil {
				slog.Error("[DailyRollup] Rollup failed for recipient",
					"recipient_id", recipientID,
					"day", dayKey,
					"error", err,
				)
			}
		}
	}
	return nil
}

func (s *DailyScheduler) rollupRecipient(ctx context.Context, recipientID, dayKey string, dayStart, dayEnd time.Time) error {
	micros, err := s.summaries.ListReadyBetween(ctx, recipientID, summarize.GranularityMicro, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("listing micro summaries: %w", err)
	}
	if len(micros) == 0 {
		return nil
	}

	prefs, err := s.prefs.Get(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	prepared := summarize.ComposeDailyWindow(recipientID, dayKey, dayStart, micros)
	summary, err := s.engine.SummarizeWindow(ctx, prepared, summarize.GranularityDaily, prefs.Verbosity)
	if err != nil {
		return err
	}

	slog.Debug("[DailyRollup] Rollup complete",
		"recipient_id", recipientID,
		"day", dayKey,
		"summary_id", summary.SummaryID,
		"status", summary.Status,
		"micro_summaries", len(micros),
	)
	return nil
}
