package summarize

import (
	"fmt"
	"time"

	"github.com/briefcast-io/briefcast/internal/pipeline"
)

// ComposeDailyWindow folds a day's ready micro summaries into a synthetic
// prepared window for the daily rollup. Each micro summary becomes one item:
// its headline as the title, its bullets as facts. The rollup then flows
// through the same engine as any other window.
func ComposeDailyWindow(recipientID, dayKey string, dayStart time.Time, micros []*Summary) *pipeline.PreparedWindow {
	items := make([]pipeline.CompactItem, 0, len(micros))
	included := make([]string, 0)

	for _, micro := range micros {
		items = append(items, pipeline.CompactItem{
			Topic: "window",
			Title: fmt.Sprintf("%s — %s", micro.WindowStart.UTC().Format("15:04"), micro.Headline),
			Facts: micro.Bullets,
		})
		included = append(included, micro.IncludedEventIDs...)
	}

	return &pipeline.PreparedWindow{
		RecipientID:      recipientID,
		WindowKey:        dayKey,
		WindowStart:      dayStart,
		Items:            items,
		IncludedEventIDs: included,
	}
}
