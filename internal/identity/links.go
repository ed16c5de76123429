package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// ClickResolution is the outcome of a successful tracking-link click.
type ClickResolution struct {
	LeadID         int64
	DestinationURL string
}

// LinkResolver attributes tracking-link clicks. A link token identifies
// the lead the link was issued for; clicking it attaches the clicking
// session to that lead (first-write-wins) and records the click.
type LinkResolver struct {
	links    storage.TrackingLinkStore
	identity storage.IdentityStore
	cache    LeadCache
}

func NewLinkResolver(links storage.TrackingLinkStore, identity storage.IdentityStore, cache LeadCache) *LinkResolver {
	if links == nil {
		panic("identity: tracking link store must not be nil")
	}
	if identity == nil {
		panic("identity: identity store must not be nil")
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &LinkResolver{links: links, identity: identity, cache: cache}
}

// ResolveClick resolves a redirect token and attributes the click.
// Unknown tokens return storage.ErrNotFound and mutate nothing; the HTTP
// layer fails open to its fallback destination. If the session already
// belongs to a different lead, the existing attribution stands and only
// the click counters advance.
func (l *LinkResolver) ResolveClick(ctx context.Context, token, anonymousID, sessionID string) (*ClickResolution, error) {
	link, err := l.links.GetTrackingLinkByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("[Identity] Unknown tracking token", "token", token)
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tracking link lookup failed: %w", err)
	}

	if err := l.identity.AttachSessionToLead(ctx, link, sessionID, anonymousID); err != nil {
		return nil, fmt.Errorf("click attribution failed: %w", err)
	}

	if err := l.cache.SetLead(ctx, anonymousID, link.LeadID); err != nil {
		slog.Warn("[Identity] Cache refresh failed after click", "anonymous_id", anonymousID, "error", err)
	}

	return &ClickResolution{
		LeadID:         link.LeadID,
		DestinationURL: link.DestinationURL,
	}, nil
}
