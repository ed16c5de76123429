package postgres

import (
	"context"
	"fmt"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
)

// ListSessionsForLead returns a lead's sessions, newest first.
func (a *Adapter) ListSessionsForLead(ctx context.Context, leadID int64) ([]*v1.Session, error) {
	rows, err := a.db.QueryContext(ctx, querySessionsForLead, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for lead: %w", err)
	}
	defer rows.Close()

	var sessions []*v1.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// ListEventsForLead returns a lead's merged event timeline, newest first.
func (a *Adapter) ListEventsForLead(ctx context.Context, leadID int64, limit int) ([]*v1.Event, error) {
	rows, err := a.db.QueryContext(ctx, queryEventsForLead, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for lead: %w", err)
	}
	defer rows.Close()

	var events []*v1.Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func (a *Adapter) CountLeads(ctx context.Context) (int64, error) {
	return a.count(ctx, queryCountLeads)
}

func (a *Adapter) CountSessions(ctx context.Context) (int64, error) {
	return a.count(ctx, queryCountSessions)
}

func (a *Adapter) CountIdentifiedSessions(ctx context.Context) (int64, error) {
	return a.count(ctx, queryCountIdentifiedSessions)
}

func (a *Adapter) CountEvents(ctx context.Context) (int64, error) {
	return a.count(ctx, queryCountEvents)
}

func (a *Adapter) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}
