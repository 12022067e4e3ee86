// Package ingestion is the write path: it accepts event envelopes over HTTP,
// fingerprints them for idempotency, assigns them to an aggregation window
// and persists them.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
	"github.com/briefcast-io/briefcast/internal/core/fingerprint"
	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/core/window"
)

// Service handles event ingestion.
type Service struct {
	store            storage.EventStore
	windowSize       time.Duration
	maxBodySizeBytes int
}

// NewService creates the ingestion service.
func NewService(store storage.EventStore, windowSize time.Duration, maxBodySizeMB int) *Service {
	return &Service{
		store:            store,
		windowSize:       windowSize,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// enrichEvent stamps the derived fields: content hash and the provisional
// window assignment. The final window is settled by assignWindow at persist
// time, once claim state can be consulted.
func (s *Service) enrichEvent(evt *v1.Event) error {
	hash, err := fingerprint.Hash(evt.SourceType, evt.Payload)
	if err != nil {
		return fmt.Errorf("fingerprinting event: %w", err)
	}
	evt.ContentHash = hash
	evt.WindowKey = window.KeyFor(evt.OccurredAt, s.windowSize)
	return nil
}

// assignWindow settles which window the event aggregates in. An event belongs
// to the window containing OccurredAt while that window's claim is still
// absent or open. Once the claim has moved past open its snapshot is taken,
// and storing under the same key would strand the event forever; such late
// arrivals roll forward to the first window that can still accept them.
//
// The loop terminates: a window ending in the future is never due, so its
// claim is always absent or open.
func (s *Service) assignWindow(ctx context.Context, evt *v1.Event) (time.Time, error) {
	start := window.StartFor(evt.OccurredAt, s.windowSize)
	for {
		key := window.KeyFor(start, s.windowSize)
		claim, err := s.store.GetWindowClaim(ctx, evt.RecipientID, key)
		if errors.Is(err, storage.ErrNotFound) {
			evt.WindowKey = key
			return start, nil
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("checking window claim: %w", err)
		}
		if claim.State == storage.WindowOpen {
			evt.WindowKey = key
			return start, nil
		}
		start = start.Add(s.windowSize)
	}
}

// ensureWindow guarantees the assigned window has an open claim so the sweep
// will eventually pick it up. Called on the duplicate path too: the original
// insert's claim may have been processed already, and EnsureWindowOpen is a
// no-op in that case.
func (s *Service) ensureWindow(ctx context.Context, evt *v1.Event, windowStart time.Time) error {
	return s.store.EnsureWindowOpen(ctx, evt.RecipientID, evt.WindowKey, windowStart, windowStart.Add(s.windowSize))
}
