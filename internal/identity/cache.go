package identity

import "context"

// LeadCache is the fast-path anonymous-id -> lead-id index. It is a
// derived, rebuildable projection of the store: lookups may miss or fail
// at any time and every caller falls back to the store, which is the
// single source of truth. Cache failures are logged and swallowed.
type LeadCache interface {
	// GetLead returns the cached lead id for an anonymous visitor, with
	// ok=false on a miss.
	GetLead(ctx context.Context, anonymousID string) (leadID int64, ok bool, err error)

	// SetLead writes the mapping with a bounded TTL.
	SetLead(ctx context.Context, anonymousID string, leadID int64) error
}

// NopCache is the LeadCache used when no cache is configured: every
// lookup is a miss, every write succeeds. Resolution then runs
// store-only, which is always correct, just slower.
type NopCache struct{}

func (NopCache) GetLead(context.Context, string) (int64, bool, error) { return 0, false, nil }
func (NopCache) SetLead(context.Context, string, int64) error         { return nil }
