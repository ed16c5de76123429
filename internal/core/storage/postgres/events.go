package postgres

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
)

// SaveEvent appends one event row and populates ID and CreatedAt.
func (a *Adapter) SaveEvent(ctx context.Context, event *v1.Event) error {
	dataJSON, err := marshalEventData(event.Data)
	if err != nil {
		return err
	}

	err = a.stmtInsertEvent.QueryRowContext(ctx,
		event.SessionID,
		nullLeadID(event.LeadID),
		event.Type,
		dataJSON,
		nullString(event.PageURL),
		nullString(event.PageTitle),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	slog.Debug("[Postgres] Saved event",
		"event_id", event.ID,
		"session_id", event.SessionID,
		"event_type", event.Type,
		"has_lead", event.LeadID != nil)
	return nil
}
