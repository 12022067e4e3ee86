package window

import (
	"fmt"
	"time"
)

// Spec represents a parsed and validated window size.
type Spec struct {
	Size time.Duration
}

// ParseSize parses a duration string into a Spec.
// Supports Go duration syntax (e.g., "5m", "1h") plus "Xd" for days.
func ParseSize(s string) (Spec, error) {
	if s == "" {
		return Spec{}, fmt.Errorf("window_size must not be empty")
	}

	// Handle "d" suffix (days) — not supported by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return Spec{}, fmt.Errorf("invalid window_size %q: %w", s, err)
		}
		if days <= 0 {
			return Spec{}, fmt.Errorf("window_size must be positive, got %q", s)
		}
		return Spec{Size: time.Duration(days) * 24 * time.Hour}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid window_size %q: %w", s, err)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("window_size must be positive, got %q", s)
	}
	return Spec{Size: d}, nil
}

// StartFor truncates a timestamp to the window boundary containing it.
// Example: StartFor(10:37:42, 5*time.Minute) → 10:35:00
func StartFor(t time.Time, size time.Duration) time.Time {
	return t.UTC().Truncate(size)
}

// KeyFor returns the window key for a timestamp: the RFC3339 form of the
// window start in UTC. Together with the recipient ID it identifies one
// window of events. The key format is part of the storage contract.
func KeyFor(t time.Time, size time.Duration) string {
	return StartFor(t, size).Format(time.RFC3339)
}

// DayKeyFor returns the key of the daily rollup window containing t.
func DayKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayBoundsFor returns the [start, end) range of the UTC day containing t.
func DayBoundsFor(t time.Time) (time.Time, time.Time) {
	start := t.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}
