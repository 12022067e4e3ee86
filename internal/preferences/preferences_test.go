package preferences

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuietHours_Active(t *testing.T) {
	tests := []struct {
		name   string
		quiet  QuietHours
		at     time.Time
		active bool
	}{
		{
			name:   "no quiet hours configured",
			quiet:  QuietHours{},
			at:     time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC),
			active: false,
		},
		{
			name:   "inside same-day range",
			quiet:  QuietHours{Start: "13:00", End: "15:00"},
			at:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
			active: true,
		},
		{
			name:   "outside same-day range",
			quiet:  QuietHours{Start: "13:00", End: "15:00"},
			at:     time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
			active: false,
		},
		{
			name:   "inside overnight range before midnight",
			quiet:  QuietHours{Start: "22:00", End: "07:00"},
			at:     time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC),
			active: true,
		},
		{
			name:   "inside overnight range after midnight",
			quiet:  QuietHours{Start: "22:00", End: "07:00"},
			at:     time.Date(2026, 3, 11, 6, 59, 0, 0, time.UTC),
			active: true,
		},
		{
			name:   "outside overnight range",
			quiet:  QuietHours{Start: "22:00", End: "07:00"},
			at:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			active: false,
		},
		{
			name:   "end boundary is exclusive",
			quiet:  QuietHours{Start: "22:00", End: "07:00"},
			at:     time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC),
			active: false,
		},
		{
			name:   "zero-length range never active",
			quiet:  QuietHours{Start: "09:00", End: "09:00"},
			at:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
			active: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, err := tt.quiet.Active(tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.active, active)
		})
	}
}

func TestQuietHours_Active_TimeZone(t *testing.T) {
	// 03:00 UTC is 22:00 the previous evening in New York (EST, UTC-5).
	quiet := QuietHours{Start: "21:00", End: "06:00", TimeZone: "America/New_York"}

	active, err := quiet.Active(time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, active)

	// 17:00 UTC is midday in New York.
	active, err = quiet.Active(time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQuietHours_Active_InvalidConfig(t *testing.T) {
	_, err := QuietHours{Start: "25:00", End: "07:00"}.Active(time.Now())
	assert.Error(t, err)

	_, err = QuietHours{Start: "22:00", End: "07:00", TimeZone: "Mars/Olympus"}.Active(time.Now())
	assert.Error(t, err)
}

func TestFileSystemProvider_Get(t *testing.T) {
	dir := t.TempDir()
	writePrefsFile(t, dir, "alice.yaml", `
recipient_id: user-alice
channels: [telegram, email]
verbosity: compact
quiet_hours:
  start: "22:00"
  end: "07:00"
  time_zone: Europe/Berlin
telegram_chat_id: "12345"
email: alice@example.com
`)

	provider, err := NewFileSystemProvider(dir, []string{"email"})
	require.NoError(t, err)

	prefs, err := provider.Get(context.Background(), "user-alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram", "email"}, prefs.Channels)
	assert.Equal(t, VerbosityCompact, prefs.Verbosity)
	assert.Equal(t, "22:00", prefs.QuietHours.Start)
	assert.Equal(t, "12345", prefs.TelegramChatID)
}

func TestFileSystemProvider_Get_Defaults(t *testing.T) {
	provider, err := NewFileSystemProvider(t.TempDir(), []string{"email"})
	require.NoError(t, err)

	prefs, err := provider.Get(context.Background(), "user-unknown")
	require.NoError(t, err)
	assert.Equal(t, "user-unknown", prefs.RecipientID)
	assert.Equal(t, []string{"email"}, prefs.Channels)
	assert.Equal(t, VerbosityStandard, prefs.Verbosity)
	assert.Empty(t, prefs.QuietHours.Start)
}

func TestFileSystemProvider_MissingDirIsValid(t *testing.T) {
	provider, err := NewFileSystemProvider(filepath.Join(t.TempDir(), "nope"), []string{"email"})
	require.NoError(t, err)

	prefs, err := provider.Get(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, prefs.Channels)
}

func TestFileSystemProvider_DuplicateRecipient(t *testing.T) {
	dir := t.TempDir()
	writePrefsFile(t, dir, "a.yaml", "recipient_id: user-1\nchannels: [email]\n")
	writePrefsFile(t, dir, "b.yaml", "recipient_id: user-1\nchannels: [telegram]\n")

	_, err := NewFileSystemProvider(dir, nil)
	assert.ErrorContains(t, err, "duplicate preferences")
}

func TestFileSystemProvider_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writePrefsFile(t, dir, "bad.yaml", "recipient_id: [not: valid\n")

	_, err := NewFileSystemProvider(dir, nil)
	assert.Error(t, err)
}

func writePrefsFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
