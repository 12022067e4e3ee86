package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/delivery"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// In-memory store implementations with the same conditional-write semantics
// as the postgres adapters. They let the flow tests run the real services
// end to end without a database.

type memEventStore struct {
	mu     sync.Mutex
	seq    int64
	events []*v1.Event
	claims map[string]*storage.WindowClaim
}

func newMemEventStore() *memEventStore {
	return &memEventStore{claims: make(map[string]*storage.WindowClaim)}
}

func claimKey(recipientID, windowKey string) string {
	return recipientID + "|" + windowKey
}

func (s *memEventStore) PutEvent(_ context.Context, event *v1.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.RecipientID == event.RecipientID && e.ContentHash == event.ContentHash {
			return storage.ErrDuplicate
		}
	}
	s.seq++
	stored := *event
	stored.IngestSeq = s.seq
	s.events = append(s.events, &stored)
	return nil
}

func (s *memEventStore) ScanWindow(_ context.Context, recipientID, windowKey string) ([]*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*v1.Event
	for _, e := range s.events {
		if e.RecipientID == recipientID && e.WindowKey == windowKey {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestSeq < out[j].IngestSeq })
	return out, nil
}

func (s *memEventStore) EnsureWindowOpen(_ context.Context, recipientID, windowKey string, windowStart, windowEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey(recipientID, windowKey)
	if _, ok := s.claims[key]; ok {
		return nil
	}
	s.claims[key] = &storage.WindowClaim{
		RecipientID: recipientID,
		WindowKey:   windowKey,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		State:       storage.WindowOpen,
	}
	return nil
}

func (s *memEventStore) GetWindowClaim(_ context.Context, recipientID, windowKey string) (*storage.WindowClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimKey(recipientID, windowKey)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memEventStore) DueWindows(_ context.Context, before time.Time, limit int) ([]storage.WindowClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.WindowClaim
	for _, c := range s.claims {
		if c.State == storage.WindowOpen && !c.WindowEnd.After(before) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowEnd.Before(out[j].WindowEnd) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memEventStore) ClaimWindow(_ context.Context, recipientID, windowKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimKey(recipientID, windowKey)]
	if !ok || c.State != storage.WindowOpen {
		return storage.ErrConflict
	}
	c.State = storage.WindowClaimed
	c.ClaimedAt = time.Now().UTC()
	return nil
}

func (s *memEventStore) MarkWindowProcessed(_ context.Context, recipientID, windowKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimKey(recipientID, windowKey)]
	if !ok || c.State != storage.WindowClaimed {
		return storage.ErrConflict
	}
	c.State = storage.WindowProcessed
	return nil
}

func (s *memEventStore) ReleaseWindow(_ context.Context, recipientID, windowKey string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimKey(recipientID, windowKey)]
	if !ok || c.State != storage.WindowClaimed {
		return false, storage.ErrConflict
	}
	c.Attempts++
	if c.Attempts >= maxAttempts {
		c.State = storage.WindowFailed
		return false, nil
	}
	c.State = storage.WindowOpen
	return true, nil
}

func (s *memEventStore) count(recipientID, windowKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.RecipientID == recipientID && e.WindowKey == windowKey {
			n++
		}
	}
	return n
}

type memSummaryStore struct {
	mu        sync.Mutex
	summaries map[string]*summarize.Summary
}

func newMemSummaryStore() *memSummaryStore {
	return &memSummaryStore{summaries: make(map[string]*summarize.Summary)}
}

func summaryKey(recipientID, windowKey, granularity string) string {
	return recipientID + "|" + windowKey + "|" + granularity
}

func (s *memSummaryStore) InsertPending(_ context.Context, sum *summarize.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.summaries {
		if existing.RecipientID == sum.RecipientID &&
			existing.WindowKey == sum.WindowKey &&
			existing.Granularity == sum.Granularity {
			return storage.ErrDuplicate
		}
	}
	cp := *sum
	s.summaries[sum.SummaryID] = &cp
	return nil
}

func (s *memSummaryStore) GetByID(_ context.Context, summaryID string) (*summarize.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[summaryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sum
	return &cp, nil
}

func (s *memSummaryStore) GetByWindow(_ context.Context, recipientID, windowKey, granularity string) (*summarize.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := summaryKey(recipientID, windowKey, granularity)
	for _, sum := range s.summaries {
		if summaryKey(sum.RecipientID, sum.WindowKey, sum.Granularity) == want {
			cp := *sum
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memSummaryStore) MarkReady(_ context.Context, summaryID, headline string, bullets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[summaryID]
	if !ok || sum.Status != summarize.StatusPending {
		return storage.ErrConflict
	}
	sum.Status = summarize.StatusReady
	sum.Headline = headline
	sum.Bullets = bullets
	sum.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memSummaryStore) MarkFailed(_ context.Context, summaryID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[summaryID]
	if !ok || sum.Status != summarize.StatusPending {
		return storage.ErrConflict
	}
	sum.Status = summarize.StatusFailed
	sum.FailureReason = reason
	sum.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memSummaryStore) ListByRecipient(_ context.Context, recipientID string, limit int) ([]*summarize.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*summarize.Summary
	for _, sum := range s.summaries {
		if sum.RecipientID == recipientID {
			cp := *sum
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SummaryID > out[j].SummaryID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSummaryStore) ListReadyBetween(_ context.Context, recipientID, granularity string, start, end time.Time) ([]*summarize.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*summarize.Summary
	for _, sum := range s.summaries {
		if sum.RecipientID == recipientID && sum.Granularity == granularity &&
			sum.Status == summarize.StatusReady &&
			!sum.WindowStart.Before(start) && sum.WindowStart.Before(end) {
			cp := *sum
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out, nil
}

func (s *memSummaryStore) RecipientsWithReadyBetween(_ context.Context, granularity string, start, end time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, sum := range s.summaries {
		if sum.Granularity == granularity && sum.Status == summarize.StatusReady &&
			!sum.WindowStart.Before(start) && sum.WindowStart.Before(end) && !seen[sum.RecipientID] {
			seen[sum.RecipientID] = true
			out = append(out, sum.RecipientID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memDeliveryStore struct {
	mu      sync.Mutex
	records map[string]*delivery.Record
}

func newMemDeliveryStore() *memDeliveryStore {
	return &memDeliveryStore{records: make(map[string]*delivery.Record)}
}

func (s *memDeliveryStore) CreatePending(_ context.Context, rec *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.SummaryID == rec.SummaryID && existing.Channel == rec.Channel {
			return storage.ErrDuplicate
		}
	}
	cp := *rec
	s.records[rec.DeliveryID] = &cp
	return nil
}

func (s *memDeliveryStore) ListPending(_ context.Context, limit int) ([]*delivery.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*delivery.Record
	for _, rec := range s.records {
		if rec.State == delivery.StatePending {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memDeliveryStore) ListBySummary(_ context.Context, summaryID string) ([]*delivery.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*delivery.Record
	for _, rec := range s.records {
		if rec.SummaryID == summaryID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func (s *memDeliveryStore) transition(deliveryID string, from []string, to string, apply func(*delivery.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[deliveryID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, state := range from {
		if rec.State == state {
			rec.State = to
			rec.UpdatedAt = time.Now().UTC()
			if apply != nil {
				apply(rec)
			}
			return nil
		}
	}
	return storage.ErrConflict
}

func (s *memDeliveryStore) MarkSent(_ context.Context, deliveryID string, attempts int) error {
	return s.transition(deliveryID, []string{delivery.StatePending}, delivery.StateSent,
		func(rec *delivery.Record) { rec.Attempts = attempts })
}

func (s *memDeliveryStore) MarkAcked(_ context.Context, deliveryID string) error {
	return s.transition(deliveryID, []string{delivery.StateSent}, delivery.StateAcked, nil)
}

func (s *memDeliveryStore) MarkSkipped(_ context.Context, deliveryID string) error {
	return s.transition(deliveryID, []string{delivery.StatePending}, delivery.StateSkipped, nil)
}

func (s *memDeliveryStore) MarkFailed(_ context.Context, deliveryID string, attempts int, lastError string) error {
	return s.transition(deliveryID, []string{delivery.StatePending, delivery.StateSent}, delivery.StateFailed,
		func(rec *delivery.Record) {
			rec.Attempts = attempts
			rec.LastError = lastError
		})
}
