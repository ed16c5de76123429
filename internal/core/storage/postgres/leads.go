package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// querier abstracts *sql.DB and *sql.Tx so the find-or-create logic can
// run standalone (webhook path with no anonymous trail) or inside the
// stitch transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetLead returns the lead row for the given id, or storage.ErrNotFound.
func (a *Adapter) GetLead(ctx context.Context, id int64) (*v1.Lead, error) {
	l, err := scanLeadRow(a.db.QueryRowContext(ctx, querySelectLead, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return l, nil
}

// FindOrCreateLead resolves a lead by normalized email outside of any
// stitch. Used by the webhook path when the signal carries no anonymous
// identifier, so there is no trail to merge.
func (a *Adapter) FindOrCreateLead(ctx context.Context, email string, profile v1.LeadProfile) (*v1.Lead, bool, error) {
	return findOrCreateLead(ctx, a.db, email, profile)
}

// findOrCreateLead inserts the lead under its unique email constraint,
// falling back to the existing row on conflict. An existing lead is only
// enriched: profile fields land where the stored field is empty, never
// over populated data.
func findOrCreateLead(ctx context.Context, q querier, email string, profile v1.LeadProfile) (*v1.Lead, bool, error) {
	normalized := v1.NormalizeEmail(email)
	if normalized == "" {
		return nil, false, fmt.Errorf("email is required")
	}

	lead := &v1.Lead{
		Email:     normalized,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Company:   profile.Company,
		Phone:     profile.Phone,
	}
	err := q.QueryRowContext(ctx, queryInsertLeadIfAbsent,
		normalized,
		nullString(profile.FirstName),
		nullString(profile.LastName),
		nullString(profile.Company),
		nullString(profile.Phone),
	).Scan(&lead.ID, &lead.CreatedAt)
	if err == nil {
		slog.Info("[Postgres] Created lead", "lead_id", lead.ID, "email", normalized)
		return lead, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create lead: %w", err)
	}

	// Email already taken: load the row, then fill its empty fields.
	existing, err := scanLeadRow(q.QueryRowContext(ctx, querySelectLeadByEmail, normalized))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing lead: %w", err)
	}

	if profile != (v1.LeadProfile{}) {
		if _, err := q.ExecContext(ctx, queryEnrichLead,
			existing.ID,
			nullString(profile.FirstName),
			nullString(profile.LastName),
			nullString(profile.Company),
			nullString(profile.Phone),
		); err != nil {
			return nil, false, fmt.Errorf("failed to enrich lead: %w", err)
		}
		if existing.FirstName == "" {
			existing.FirstName = profile.FirstName
		}
		if existing.LastName == "" {
			existing.LastName = profile.LastName
		}
		if existing.Company == "" {
			existing.Company = profile.Company
		}
		if existing.Phone == "" {
			existing.Phone = profile.Phone
		}
	}

	return existing, false, nil
}
