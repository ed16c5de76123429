package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// uniqueViolation is the postgres error code for unique_violation.
const uniqueViolation = "23505"

// CreateTrackingLink inserts the link and populates ID and CreatedAt.
// A token collision (vanishingly unlikely with random tokens) surfaces
// as storage.ErrDuplicate so the caller can mint a fresh token.
func (a *Adapter) CreateTrackingLink(ctx context.Context, link *v1.TrackingLink) error {
	err := a.db.QueryRowContext(ctx, queryInsertLink,
		link.Token,
		link.DestinationURL,
		nullString(link.CampaignID),
		nullString(link.CampaignName),
		link.LeadID,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to create tracking link: %w", err)
	}

	slog.Info("[Postgres] Created tracking link",
		"link_id", link.ID,
		"lead_id", link.LeadID,
		"campaign_id", link.CampaignID)
	return nil
}

// GetTrackingLinkByToken returns the link for an opaque token, or
// storage.ErrNotFound. Unknown tokens are a normal outcome on the
// redirect path, not an error condition.
func (a *Adapter) GetTrackingLinkByToken(ctx context.Context, token string) (*v1.TrackingLink, error) {
	l, err := scanLinkRow(a.db.QueryRowContext(ctx, querySelectLinkByToken, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking link: %w", err)
	}
	return l, nil
}
