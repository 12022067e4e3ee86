package aggregation

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs window sweeps on a periodic interval. It is stateless: each
// tick independently asks the store for due windows, so missed ticks only
// delay processing, never lose it.
type Scheduler struct {
	interval   time.Duration
	aggregator *Aggregator
	batchSize  int
}

// NewScheduler creates the periodic sweep driver.
func NewScheduler(interval time.Duration, aggregator *Aggregator, batchSize int) *Scheduler {
	return &Scheduler{
		interval:   interval,
		aggregator: aggregator,
		batchSize:  batchSize,
	}
}

// Start begins periodic sweeping. Runs until context is cancelled, then
// performs one final drain so claimed work finishes before shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting window sweep scheduler",
		"interval", s.interval.String(),
		"batch_size", s.batchSize,
	)

	// Initial drain catches windows that came due while the process was down.
	s.drainBacklog(ctx)

	for {
		select {
		case <-ticker.C:
			s.drainBacklog(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			slog.Info("[Scheduler] Running final drain before shutdown...")
			s.drainBacklog(shutdownCtx)
			slog.Info("[Scheduler] Final drain complete")

			return nil
		}
	}
}

// drainBacklog sweeps repeatedly until a sweep comes back smaller than the
// batch size, meaning the backlog is exhausted.
func (s *Scheduler) drainBacklog(ctx context.Context) {
	const maxConsecutiveSweeps = 100

	for sweeps := 0; sweeps < maxConsecutiveSweeps; sweeps++ {
		select {
		case <-ctx.Done():
			slog.Info("[Scheduler] Drain interrupted by context cancellation", "sweeps", sweeps)
			return
		default:
		}

		processed, err := s.aggregator.Sweep(ctx)
		if err != nil {
			slog.Error("[Scheduler] Window sweep failed", "error", err, "sweep_number", sweeps+1)
			return
		}
		if processed < s.batchSize {
			return
		}

		slog.Info("[Scheduler] Backlog detected, continuing to drain", "sweeps_so_far", sweeps+1)
	}

	slog.Warn("[Scheduler] Max consecutive sweeps reached, pausing drain",
		"max_sweeps", maxConsecutiveSweeps,
		"note", "Will resume on next tick",
	)
}
