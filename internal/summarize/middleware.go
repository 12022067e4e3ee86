package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryingSummarizer retries transient transport failures with exponential
// backoff. It retries only errors from the underlying call; schema-invalid
// output is valid transport-wise and is handled by the engine's repair step.
type RetryingSummarizer struct {
	next        Summarizer
	maxAttempts int
	backoffBase time.Duration
}

func NewRetryingSummarizer(next Summarizer, maxAttempts int, backoffBase time.Duration) *RetryingSummarizer {
	return &RetryingSummarizer{next: next, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

func (r *RetryingSummarizer) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == r.maxAttempts {
			break
		}
		backoff := r.backoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", fmt.Errorf("summarizer failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// LoggingSummarizer records call latency and outcome around any Summarizer.
type LoggingSummarizer struct {
	next Summarizer
}

func NewLoggingSummarizer(next Summarizer) *LoggingSummarizer {
	return &LoggingSummarizer{next: next}
}

func (l *LoggingSummarizer) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := l.next.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("[Summarizer] generation call failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", err
	}
	slog.Debug("[Summarizer] generation call completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(prompt),
		"output_chars", len(out),
	)
	return out, nil
}
