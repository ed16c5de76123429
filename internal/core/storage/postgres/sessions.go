package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// GetSession returns the session row for the given id, or
// storage.ErrNotFound.
func (a *Adapter) GetSession(ctx context.Context, id string) (*v1.Session, error) {
	s, err := scanSessionRow(a.stmtSelectSession.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// CreateSessionIfAbsent inserts the session row unless one with the same
// id exists. The insert is a single conditional statement, so two
// concurrent first-events for the same session id cannot produce
// duplicate rows or clobber each other's metadata: the loser simply
// reads the winner's row back.
func (a *Adapter) CreateSessionIfAbsent(ctx context.Context, session *v1.Session) (*v1.Session, error) {
	var startedAt time.Time
	err := a.stmtInsertSession.QueryRowContext(ctx,
		session.ID,
		session.AnonymousID,
		nullLeadID(session.LeadID),
		nullString(session.IPAddress),
		nullString(session.UserAgent),
		nullString(session.Referrer),
		nullString(session.UTMSource),
		nullString(session.UTMMedium),
		nullString(session.UTMCampaign),
	).Scan(&startedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the creation race (or the row predates this call). The
		// stored row is authoritative; return it unchanged.
		slog.Debug("[Postgres] Session already exists, returning stored row", "session_id", session.ID)
		return a.GetSession(ctx, session.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	created := *session
	created.StartedAt = startedAt
	slog.Debug("[Postgres] Created session",
		"session_id", session.ID,
		"anonymous_id", session.AnonymousID,
		"has_lead", session.LeadID != nil)
	return &created, nil
}

// LatestLeadForAnonymous scans for the newest session of this anonymous
// id that already carries a lead reference. storage.ErrNotFound means the
// visitor is still anonymous.
func (a *Adapter) LatestLeadForAnonymous(ctx context.Context, anonymousID string) (int64, error) {
	var leadID int64
	err := a.stmtLatestLead.QueryRowContext(ctx, anonymousID).Scan(&leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve lead for anonymous id: %w", err)
	}
	return leadID, nil
}
