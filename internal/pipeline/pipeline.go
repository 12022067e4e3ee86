// Package pipeline turns a window's raw events into a compact, deterministic
// PreparedWindow ready for summarization. Every step is a pure function of
// its input: same events in, byte-identical PreparedWindow out.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
)

// CompactItem is one line of the prepared digest: a clustered group of
// related events reduced to a title, a handful of facts and one link.
type CompactItem struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Facts    []string `json:"facts"`
	Link     string   `json:"link,omitempty"`
	EventIDs []string `json:"event_ids"`
}

// Meta records what the pipeline did to the window. It travels with the
// PreparedWindow for observability but never reaches the generation prompt.
type Meta struct {
	FoldedEventIDs []string `json:"folded_event_ids,omitempty"`
	RedactionHits  int      `json:"redaction_hits"`
	Uncategorized  int      `json:"uncategorized"`
	TruncatedItems int      `json:"truncated_items"`
	TruncatedFacts int      `json:"truncated_facts"`
}

// PreparedWindow is the pipeline's output: the summarization engine's entire
// view of the window.
type PreparedWindow struct {
	RecipientID      string        `json:"recipient_id"`
	WindowKey        string        `json:"window_key"`
	WindowStart      time.Time     `json:"window_start"`
	Items            []CompactItem `json:"items"`
	IncludedEventIDs []string      `json:"included_event_ids"`
	Meta             Meta          `json:"meta"`
}

// Context carries the window through the steps. Steps never mutate the
// incoming context's events in place; transformations copy.
type Context struct {
	RecipientID string
	WindowKey   string
	WindowStart time.Time
	Events      []*v1.Event
	Topics      map[string]string // event_id → topic, set by the classify step
	Items       []CompactItem
	Meta        Meta
}

// Step is one stage of the preparation pipeline.
type Step interface {
	Name() string
	Apply(pc Context) (Context, error)
}

// Executor runs a fixed step sequence over a window's events.
type Executor struct {
	steps []Step
}

// NewExecutor builds an executor from the given steps, run in order.
func NewExecutor(steps ...Step) *Executor {
	return &Executor{steps: steps}
}

// Run prepares one window. Events are ordered newest-first before the first
// step, with event_id as tiebreaker so concurrent or replayed runs see the
// identical sequence.
func (e *Executor) Run(recipientID, windowKey string, windowStart time.Time, events []*v1.Event) (*PreparedWindow, error) {
	ordered := make([]*v1.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.After(ordered[j].OccurredAt)
		}
		return ordered[i].EventID < ordered[j].EventID
	})

	pc := Context{
		RecipientID: recipientID,
		WindowKey:   windowKey,
		WindowStart: windowStart,
		Events:      ordered,
		Topics:      make(map[string]string),
	}

	var err error
	for _, step := range e.steps {
		pc, err = step.Apply(pc)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %s: %w", step.Name(), err)
		}
	}

	included := make([]string, 0, len(pc.Events))
	for _, ev := range pc.Events {
		included = append(included, ev.EventID)
	}

	return &PreparedWindow{
		RecipientID:      pc.RecipientID,
		WindowKey:        pc.WindowKey,
		WindowStart:      pc.WindowStart,
		Items:            pc.Items,
		IncludedEventIDs: included,
		Meta:             pc.Meta,
	}, nil
}
