// Package preferences provides read-only access to per-recipient delivery
// preferences: configured channels, verbosity, quiet hours and channel
// addressing. Preferences are external input; nothing in the core mutates them.
package preferences

import (
	"context"
	"fmt"
	"time"
)

// Verbosity levels. Currently advisory: passed through to the generation
// prompt, not enforced structurally.
const (
	VerbosityCompact  = "compact"
	VerbosityStandard = "standard"
	VerbosityDetailed = "detailed"
)

// QuietHours is a recipient-local time range during which quiet-hours-bound
// channels are suppressed. A zero value means no quiet hours.
type QuietHours struct {
	Start    string `yaml:"start"`     // "22:00"
	End      string `yaml:"end"`       // "07:00"; may wrap past midnight
	TimeZone string `yaml:"time_zone"` // IANA name; empty means UTC
}

// UserPreferences holds one recipient's delivery configuration.
type UserPreferences struct {
	RecipientID    string     `yaml:"recipient_id"`
	Channels       []string   `yaml:"channels"`
	Verbosity      string     `yaml:"verbosity"`
	QuietHours     QuietHours `yaml:"quiet_hours"`
	TelegramChatID string     `yaml:"telegram_chat_id"`
	Email          string     `yaml:"email"`
}

// Provider returns preferences for a recipient.
type Provider interface {
	Get(ctx context.Context, recipientID string) (UserPreferences, error)
}

// Active reports whether t falls inside the quiet-hours range, evaluated in
// the recipient's time zone. Ranges that wrap past midnight are supported.
func (q QuietHours) Active(t time.Time) (bool, error) {
	if q.Start == "" || q.End == "" {
		return false, nil
	}

	start, err := parseClock(q.Start)
	if err != nil {
		return false, fmt.Errorf("quiet_hours.start: %w", err)
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false, fmt.Errorf("quiet_hours.end: %w", err)
	}

	loc := time.UTC
	if q.TimeZone != "" {
		loc, err = time.LoadLocation(q.TimeZone)
		if err != nil {
			return false, fmt.Errorf("quiet_hours.time_zone %q: %w", q.TimeZone, err)
		}
	}

	local := t.In(loc)
	now := local.Hour()*60 + local.Minute()

	if start == end {
		return false, nil
	}
	if start < end {
		return now >= start && now < end, nil
	}
	// Overnight range, e.g. 22:00 → 07:00.
	return now >= start || now < end, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return hh*60 + mm, nil
}
