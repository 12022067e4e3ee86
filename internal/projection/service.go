// Package projection is the read path: it serves generated summaries and
// their delivery status to API clients.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/briefcast-io/briefcast/internal/delivery"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// ErrInvalidQuery marks client-side query problems.
var ErrInvalidQuery = errors.New("invalid summary query")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service answers summary queries.
type Service struct {
	summaries  summarize.Store
	deliveries delivery.Store
}

func NewService(summaries summarize.Store, deliveries delivery.Store) *Service {
	return &Service{summaries: summaries, deliveries: deliveries}
}

// SummaryWithDeliveries pairs one summary with its delivery records.
type SummaryWithDeliveries struct {
	Summary    *summarize.Summary `json:"summary"`
	Deliveries []*delivery.Record `json:"deliveries"`
}

// ListSummaries returns the recipient's summaries newest first, each with its
// delivery records.
func (s *Service) ListSummaries(ctx context.Context, recipientID string, limit int) ([]SummaryWithDeliveries, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient_id is required", ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	summaries, err := s.summaries.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	out := make([]SummaryWithDeliveries, 0, len(summaries))
	for _, summary := range summaries {
		records, err := s.deliveries.ListBySummary(ctx, summary.SummaryID)
		if err != nil {
			return nil, fmt.Errorf("listing deliveries for %s: %w", summary.SummaryID, err)
		}
		out = append(out, SummaryWithDeliveries{Summary: summary, Deliveries: records})
	}
	return out, nil
}

// GetSummary returns one summary with its delivery records, or
// storage.ErrNotFound.
func (s *Service) GetSummary(ctx context.Context, summaryID string) (*SummaryWithDeliveries, error) {
	summary, err := s.summaries.GetByID(ctx, summaryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading summary: %w", err)
	}

	records, err := s.deliveries.ListBySummary(ctx, summaryID)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return &SummaryWithDeliveries{Summary: summary, Deliveries: records}, nil
}
