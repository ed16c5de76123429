package projection

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// timelineEventLimit bounds the events returned per lead. Sessions are
// few per lead; events are not.
const timelineEventLimit = 100

// Service implements the read side: per-lead timelines and funnel-wide
// stats over the same tables the write paths maintain. It holds no state
// of its own.
type Service struct {
	store storage.ProjectionStore
}

func NewService(store storage.ProjectionStore) *Service {
	if store == nil {
		panic("projection: store must not be nil")
	}
	return &Service{store: store}
}

// LeadTimeline assembles the merged activity view for one lead. Returns
// storage.ErrNotFound when the lead does not exist.
func (s *Service) LeadTimeline(ctx context.Context, leadID int64) (*LeadTimeline, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.ListSessionsForLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("session listing failed: %w", err)
	}
	events, err := s.store.ListEventsForLead(ctx, leadID, timelineEventLimit)
	if err != nil {
		return nil, fmt.Errorf("event listing failed: %w", err)
	}

	return &LeadTimeline{
		Lead:     lead,
		Sessions: sessions,
		Events:   events,
	}, nil
}

// FunnelStats computes the dashboard counters. The four counts are
// independent queries, so they run concurrently.
func (s *Service) FunnelStats(ctx context.Context) (*FunnelStats, error) {
	var stats FunnelStats

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Leads, err = s.store.CountLeads(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Sessions, err = s.store.CountSessions(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.IdentifiedSessions, err = s.store.CountIdentifiedSessions(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Events, err = s.store.CountEvents(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	stats.IdentificationRate = identificationRate(stats.IdentifiedSessions, stats.Sessions)
	return &stats, nil
}

// identificationRate renders identified/total as a percentage with fixed
// precision, avoiding float drift on the dashboard's headline number.
func identificationRate(identified, total int64) string {
	if total == 0 {
		return "0.00"
	}
	rate := decimal.NewFromInt(identified).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100))
	return rate.StringFixed(2)
}
