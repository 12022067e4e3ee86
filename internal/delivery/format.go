package delivery

import (
	"strings"

	"github.com/briefcast-io/briefcast/internal/summarize"
)

// formatMessage renders a summary as the plain-text message body shared by
// all channels: headline on top, one line per bullet.
func formatMessage(s *summarize.Summary) string {
	var b strings.Builder
	b.WriteString(s.Headline)
	for _, bullet := range s.Bullets {
		b.WriteString("\n• ")
		b.WriteString(bullet)
	}
	return b.String()
}
