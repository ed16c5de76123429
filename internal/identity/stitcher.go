package identity

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// Stitcher is the lead merge engine. Given an identity-revealing signal
// (an email) and the visitor's anonymous id, it finds-or-creates the
// lead and moves the visitor's entire orphaned trail onto it. The store
// performs the merge as one atomic unit; the stitcher's own job is
// normalization, orchestration, and the advisory cache refresh.
type Stitcher struct {
	store storage.IdentityStore
	cache LeadCache
}

func NewStitcher(store storage.IdentityStore, cache LeadCache) *Stitcher {
	if store == nil {
		panic("identity: identity store must not be nil")
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Stitcher{store: store, cache: cache}
}

// Stitch merges all of anonymousID's orphaned sessions and events onto
// the lead identified by email. Stitching is idempotent: a repeat call
// finds nothing left to reassign and reports zero stitched sessions
// without touching already-attributed rows.
func (s *Stitcher) Stitch(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error) {
	normalized := v1.NormalizeEmail(email)
	if normalized == "" {
		return storage.StitchResult{}, fmt.Errorf("email is required for stitching")
	}
	if anonymousID == "" {
		return storage.StitchResult{}, fmt.Errorf("anonymous id is required for stitching")
	}

	result, err := s.store.StitchAnonymousToLead(ctx, anonymousID, normalized, profile)
	if err != nil {
		return storage.StitchResult{}, fmt.Errorf("stitch failed: %w", err)
	}

	// Advisory only. A lost write costs one store round-trip on the next
	// resolution; merge correctness never depends on it.
	if err := s.cache.SetLead(ctx, anonymousID, result.LeadID); err != nil {
		slog.Warn("[Identity] Cache refresh failed after stitch", "anonymous_id", anonymousID, "error", err)
	}

	slog.Info("[Identity] Stitched visitor",
		"anonymous_id", anonymousID,
		"lead_id", result.LeadID,
		"is_new_lead", result.IsNewLead,
		"stitched_sessions", result.StitchedSessions)
	return result, nil
}
