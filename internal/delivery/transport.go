package delivery

import (
	"context"

	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// Transport sends a summary over one channel.
type Transport interface {
	// Name is the channel identifier stored on delivery records, e.g.
	// "telegram" or "email".
	Name() string

	// SuppressedDuringQuietHours reports whether deliveries over this channel
	// are skipped while the recipient's quiet hours are active. Realtime
	// channels the recipient opted into stay on.
	SuppressedDuringQuietHours() bool

	// ConfirmsDelivery reports whether the channel acknowledges out of band.
	// When false, a successful Send is immediately acked; when true, the
	// record stays sent until the acknowledgement callback arrives.
	ConfirmsDelivery() bool

	// Send delivers the summary. A returned error counts against the
	// record's retry budget.
	Send(ctx context.Context, prefs preferences.UserPreferences, s *summarize.Summary) error
}
