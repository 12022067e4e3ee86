package pipeline

import (
	"fmt"
	"sort"
	"strings"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
	"github.com/briefcast-io/briefcast/internal/pipeline/rules"
)

const topicUncategorized = "uncategorized"

// payload keys the steps understand. Producers that follow these conventions
// get richer digests; everything else degrades to source-type labels.
const (
	payloadKeyResourceID = "resource_id"
	payloadKeyTitle      = "title"
	payloadKeyLink       = "link"
	payloadKeyURL        = "url"
)

// DedupeStep folds events that describe the same underlying resource, keeping
// only the most recent one. Events without a resource_id never fold.
type DedupeStep struct{}

func (DedupeStep) Name() string { return "deduplicate" }

func (DedupeStep) Apply(pc Context) (Context, error) {
	seen := make(map[string]bool, len(pc.Events))
	kept := make([]*v1.Event, 0, len(pc.Events))

	// Events arrive newest-first, so the first occurrence of a key is the
	// survivor and everything after it folds.
	for _, ev := range pc.Events {
		resource, _ := ev.Payload[payloadKeyResourceID].(string)
		if resource == "" {
			kept = append(kept, ev)
			continue
		}
		key := ev.SourceType + "|" + resource
		if seen[key] {
			pc.Meta.FoldedEventIDs = append(pc.Meta.FoldedEventIDs, ev.EventID)
			continue
		}
		seen[key] = true
		kept = append(kept, ev)
	}

	pc.Events = kept
	return pc, nil
}

// RedactStep masks secret-shaped substrings in every string payload field.
// Events are copied before modification; the stored originals stay intact.
type RedactStep struct {
	set rules.Set
}

func NewRedactStep(set rules.Set) RedactStep { return RedactStep{set: set} }

func (RedactStep) Name() string { return "redact" }

func (s RedactStep) Apply(pc Context) (Context, error) {
	out := make([]*v1.Event, 0, len(pc.Events))
	for _, ev := range pc.Events {
		clone := *ev
		clone.Payload = make(map[string]interface{}, len(ev.Payload))
		for k, v := range ev.Payload {
			text, ok := v.(string)
			if !ok {
				clone.Payload[k] = v
				continue
			}
			for _, r := range s.set.Redactions {
				masked := r.Pattern.ReplaceAllString(text, r.Replace)
				if masked != text {
					pc.Meta.RedactionHits++
					text = masked
				}
			}
			clone.Payload[k] = text
		}
		out = append(out, &clone)
	}
	pc.Events = out
	return pc, nil
}

// ClassifyStep assigns each event a topic via first-match over the topic
// rules. Unmatched events land in the uncategorized topic rather than being
// dropped.
type ClassifyStep struct {
	set rules.Set
}

func NewClassifyStep(set rules.Set) ClassifyStep { return ClassifyStep{set: set} }

func (ClassifyStep) Name() string { return "classify" }

func (s ClassifyStep) Apply(pc Context) (Context, error) {
	for _, ev := range pc.Events {
		topic := s.classify(ev)
		if topic == topicUncategorized {
			pc.Meta.Uncategorized++
		}
		pc.Topics[ev.EventID] = topic
	}
	return pc, nil
}

func (s ClassifyStep) classify(ev *v1.Event) string {
	var text string
	for _, rule := range s.set.Topics {
		for _, st := range rule.SourceTypes {
			if st == ev.SourceType {
				return rule.Topic
			}
		}
		if len(rule.Keywords) == 0 {
			continue
		}
		if text == "" {
			text = payloadText(ev)
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return rule.Topic
			}
		}
	}
	return topicUncategorized
}

// payloadText concatenates the event's string payload values, lowercased, in
// key order so keyword matching is deterministic.
func payloadText(ev *v1.Event) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if text, ok := ev.Payload[k].(string); ok {
			b.WriteString(strings.ToLower(text))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ClusterStep groups classified events into one CompactItem per topic. Item
// order follows the first (most recent) event of each topic; facts are the
// per-event titles, newest first.
type ClusterStep struct{}

func (ClusterStep) Name() string { return "cluster" }

func (ClusterStep) Apply(pc Context) (Context, error) {
	order := make([]string, 0)
	groups := make(map[string][]*v1.Event)
	for _, ev := range pc.Events {
		topic := pc.Topics[ev.EventID]
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], ev)
	}

	items := make([]CompactItem, 0, len(order))
	for _, topic := range order {
		evs := groups[topic]

		item := CompactItem{
			Topic:    topic,
			Link:     eventLink(evs[0]),
			EventIDs: make([]string, 0, len(evs)),
			Facts:    make([]string, 0, len(evs)),
		}
		for _, ev := range evs {
			item.EventIDs = append(item.EventIDs, ev.EventID)
			item.Facts = append(item.Facts, eventTitle(ev))
		}

		if len(evs) == 1 {
			item.Title = eventTitle(evs[0])
			item.Facts = nil
		} else {
			item.Title = fmt.Sprintf("%s: %d updates", topic, len(evs))
		}
		items = append(items, item)
	}

	pc.Items = items
	return pc, nil
}

func eventTitle(ev *v1.Event) string {
	if title, ok := ev.Payload[payloadKeyTitle].(string); ok && title != "" {
		return title
	}
	return ev.SourceType + " event"
}

func eventLink(ev *v1.Event) string {
	if link, ok := ev.Payload[payloadKeyLink].(string); ok && link != "" {
		return link
	}
	if url, ok := ev.Payload[payloadKeyURL].(string); ok && url != "" {
		return url
	}
	return ""
}

// ClampStep enforces the prepared window's size ceilings. Truncation is
// deterministic: trailing items go first, then trailing facts, and every cut
// is counted in Meta.
type ClampStep struct {
	MaxItems        int
	MaxFactsPerItem int
	MaxTotalChars   int
}

func (ClampStep) Name() string { return "clamp" }

func (s ClampStep) Apply(pc Context) (Context, error) {
	if s.MaxItems > 0 && len(pc.Items) > s.MaxItems {
		pc.Meta.TruncatedItems += len(pc.Items) - s.MaxItems
		pc.Items = pc.Items[:s.MaxItems]
	}

	for i := range pc.Items {
		if s.MaxFactsPerItem > 0 && len(pc.Items[i].Facts) > s.MaxFactsPerItem {
			pc.Meta.TruncatedFacts += len(pc.Items[i].Facts) - s.MaxFactsPerItem
			pc.Items[i].Facts = pc.Items[i].Facts[:s.MaxFactsPerItem]
		}
	}

	if s.MaxTotalChars > 0 {
		for totalChars(pc.Items) > s.MaxTotalChars && len(pc.Items) > 0 {
			last := len(pc.Items) - 1
			if n := len(pc.Items[last].Facts); n > 0 {
				pc.Items[last].Facts = pc.Items[last].Facts[:n-1]
				pc.Meta.TruncatedFacts++
				continue
			}
			pc.Items = pc.Items[:last]
			pc.Meta.TruncatedItems++
		}
	}

	return pc, nil
}

func totalChars(items []CompactItem) int {
	total := 0
	for _, item := range items {
		total += len(item.Title) + len(item.Link)
		for _, fact := range item.Facts {
			total += len(fact)
		}
	}
	return total
}

// DefaultSteps assembles the standard preparation sequence.
func DefaultSteps(set rules.Set, maxItems, maxFactsPerItem, maxTotalChars int) []Step {
	return []Step{
		DedupeStep{},
		NewRedactStep(set),
		NewClassifyStep(set),
		ClusterStep{},
		ClampStep{MaxItems: maxItems, MaxFactsPerItem: maxFactsPerItem, MaxTotalChars: maxTotalChars},
	}
}
