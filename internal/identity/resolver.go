package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// Resolver maps (session id, anonymous id) pairs onto durable session
// rows, creating each session at most once and resolving whether the
// visitor is already linked to a lead. Resolution is cache-first with a
// store fallback; the cache is healed lazily on store hits.
type Resolver struct {
	sessions storage.SessionStore
	cache    LeadCache
}

func NewResolver(sessions storage.SessionStore, cache LeadCache) *Resolver {
	if sessions == nil {
		panic("identity: session store must not be nil")
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Resolver{sessions: sessions, cache: cache}
}

// ResolveSession returns the durable session for sessionID, creating it
// on first contact. Repeat calls for an existing session are a strict
// no-op: the stored row (including its lead reference) is returned
// unchanged, which keeps retries and same-tick races harmless.
func (r *Resolver) ResolveSession(ctx context.Context, sessionID, anonymousID string, meta v1.SessionMetadata) (*v1.Session, error) {
	existing, err := r.sessions.GetSession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	leadID := r.resolveLead(ctx, anonymousID)

	session := &v1.Session{
		ID:          sessionID,
		AnonymousID: anonymousID,
		LeadID:      leadID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Referrer:    meta.Referrer,
		UTMSource:   meta.UTMSource,
		UTMMedium:   meta.UTMMedium,
		UTMCampaign: meta.UTMCampaign,
	}

	stored, err := r.sessions.CreateSessionIfAbsent(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("session creation failed: %w", err)
	}
	return stored, nil
}

// resolveLead finds the lead already linked to this anonymous visitor,
// if any: cache first, store on miss or cache failure. A store hit
// repopulates the cache, so a cache outage costs round-trips, never
// correctness.
func (r *Resolver) resolveLead(ctx context.Context, anonymousID string) *int64 {
	leadID, ok, err := r.cache.GetLead(ctx, anonymousID)
	if err != nil {
		slog.Warn("[Identity] Cache unavailable, falling back to store", "error", err)
	}
	if ok {
		return &leadID
	}

	leadID, err = r.sessions.LatestLeadForAnonymous(ctx, anonymousID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		// Treat a failed fallback as "still anonymous". The session is
		// created without a lead and a later stitch re-attributes it.
		slog.Warn("[Identity] Lead fallback query failed", "anonymous_id", anonymousID, "error", err)
		return nil
	}

	if err := r.cache.SetLead(ctx, anonymousID, leadID); err != nil {
		slog.Warn("[Identity] Could not heal cache mapping", "anonymous_id", anonymousID, "error", err)
	}
	return &leadID
}
