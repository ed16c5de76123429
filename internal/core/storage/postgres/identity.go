package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// StitchAnonymousToLead merges an anonymous visitor's trail onto the lead
// identified by email. Find-or-create of the lead, the session
// reassignment, and the event back-fill run inside one transaction:
// either the whole trail moves or none of it does. Concurrent stitches of
// the same anonymous id serialize on the row updates, and the
// lead_id IS NULL guards keep the second writer from touching rows the
// first already attributed.
func (a *Adapter) StitchAnonymousToLead(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error) {
	var result storage.StitchResult

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		lead, isNew, err := findOrCreateLead(ctx, tx, email, profile)
		if err != nil {
			return err
		}

		sessions, err := tx.ExecContext(ctx, queryStitchSessions, lead.ID, anonymousID)
		if err != nil {
			return fmt.Errorf("failed to reassign sessions: %w", err)
		}
		stitched, err := sessions.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count reassigned sessions: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryStitchEvents, lead.ID, anonymousID); err != nil {
			return fmt.Errorf("failed to back-fill events: %w", err)
		}

		result = storage.StitchResult{
			LeadID:           lead.ID,
			IsNewLead:        isNew,
			StitchedSessions: int(stitched),
		}
		return nil
	})
	if err != nil {
		return storage.StitchResult{}, err
	}

	slog.Info("[Postgres] Stitched anonymous trail",
		"anonymous_id", anonymousID,
		"lead_id", result.LeadID,
		"is_new_lead", result.IsNewLead,
		"stitched_sessions", result.StitchedSessions)
	return result, nil
}

// AttachSessionToLead attributes a tracking-link click. The session row
// is created on the spot when the click is the visitor's first contact
// (email clicks routinely land before any beacon event). The session's
// lead reference is first-write-wins; the click counters are monotonic
// and the unique counter advances once per (link, anonymous id) pair.
func (a *Adapter) AttachSessionToLead(ctx context.Context, link *v1.TrackingLink, sessionID, anonymousID string) error {
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, queryInsertSessionIfAbsent,
			sessionID,
			anonymousID,
			sql.NullInt64{Int64: link.LeadID, Valid: true},
			nullString(""), // ip_address
			nullString(""), // user_agent
			nullString(""), // referrer
			nullString(""), // utm_source
			nullString(""), // utm_medium
			nullString(link.CampaignID),
		); err != nil {
			return fmt.Errorf("failed to ensure session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryAttachSessionLead, link.LeadID, sessionID); err != nil {
			return fmt.Errorf("failed to attach session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryAttachSessionEvents, link.LeadID, sessionID); err != nil {
			return fmt.Errorf("failed to back-fill session events: %w", err)
		}

		click, err := tx.ExecContext(ctx, queryInsertLinkClick, link.ID, anonymousID)
		if err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}
		firstForVisitor, err := click.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to inspect click record: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryIncrementLinkClicks, link.ID, firstForVisitor); err != nil {
			return fmt.Errorf("failed to increment click counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("[Postgres] Attributed tracking-link click",
		"token", link.Token,
		"lead_id", link.LeadID,
		"session_id", sessionID)
	return nil
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("[Postgres] Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
