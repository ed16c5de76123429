package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

func seedLink(t *testing.T, store *InMemoryStore, token, email string) *v1.TrackingLink {
	t.Helper()
	ctx := context.Background()

	lead, _, err := store.FindOrCreateLead(ctx, email, v1.LeadProfile{})
	require.NoError(t, err)

	link := &v1.TrackingLink{
		Token:          token,
		DestinationURL: "https://acme.example/pricing",
		LeadID:         lead.ID,
	}
	require.NoError(t, store.CreateTrackingLink(ctx, link))
	return link
}

func TestLinkResolver_UnknownTokenIsNotFound(t *testing.T) {
	store := NewInMemoryStore()
	resolver := NewLinkResolver(store, store, NewFakeCache())

	_, err := resolver.ResolveClick(context.Background(), "no-such-token", "anon-1", "s-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Nothing was mutated on the unknown-token path.
	count, err := store.CountSessions(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestLinkResolver_ClickAttributesSessionAndEvents(t *testing.T) {
	store := NewInMemoryStore()
	cache := NewFakeCache()
	resolver := NewLinkResolver(store, store, cache)
	ctx := context.Background()

	link := seedLink(t, store, "tok-1", "jane@acme.com")

	// The visitor browsed anonymously before clicking the email link.
	_, err := store.CreateSessionIfAbsent(ctx, &v1.Session{ID: "s-1", AnonymousID: "anon-1"})
	require.NoError(t, err)
	require.NoError(t, store.SaveEvent(ctx, &v1.Event{SessionID: "s-1", Type: "page_view"}))

	res, err := resolver.ResolveClick(ctx, "tok-1", "anon-1", "s-1")
	require.NoError(t, err)
	require.Equal(t, link.LeadID, res.LeadID)
	require.Equal(t, "https://acme.example/pricing", res.DestinationURL)

	session, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, session.LeadID)
	require.Equal(t, link.LeadID, *session.LeadID)

	events, err := store.ListEventsForLead(ctx, link.LeadID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	cached, ok := cache.Mapping("anon-1")
	require.True(t, ok)
	require.Equal(t, link.LeadID, cached)
}

func TestLinkResolver_FirstClickCreatesSession(t *testing.T) {
	store := NewInMemoryStore()
	resolver := NewLinkResolver(store, store, NewFakeCache())
	ctx := context.Background()

	link := seedLink(t, store, "tok-1", "jane@acme.com")

	// Email click with no prior beacon activity: the session row is minted
	// by the attribution itself.
	_, err := resolver.ResolveClick(ctx, "tok-1", "anon-new", "s-new")
	require.NoError(t, err)

	session, err := store.GetSession(ctx, "s-new")
	require.NoError(t, err)
	require.Equal(t, "anon-new", session.AnonymousID)
	require.NotNil(t, session.LeadID)
	require.Equal(t, link.LeadID, *session.LeadID)
}

func TestLinkResolver_AttributionNeverDowngrades(t *testing.T) {
	store := NewInMemoryStore()
	resolver := NewLinkResolver(store, store, NewFakeCache())
	ctx := context.Background()

	seedLink(t, store, "tok-other", "other@rival.com")

	owner, _, err := store.FindOrCreateLead(ctx, "jane@acme.com", v1.LeadProfile{})
	require.NoError(t, err)
	_, err = store.CreateSessionIfAbsent(ctx, &v1.Session{ID: "s-1", AnonymousID: "anon-1", LeadID: &owner.ID})
	require.NoError(t, err)

	// Clicking a different lead's link must not override the existing
	// attribution.
	_, err = resolver.ResolveClick(ctx, "tok-other", "anon-1", "s-1")
	require.NoError(t, err)

	session, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, session.LeadID)
	require.Equal(t, owner.ID, *session.LeadID)
}

func TestLinkResolver_ClickCountersAreMonotonicAndDeduped(t *testing.T) {
	store := NewInMemoryStore()
	resolver := NewLinkResolver(store, store, NewFakeCache())
	ctx := context.Background()

	seedLink(t, store, "tok-1", "jane@acme.com")

	_, err := resolver.ResolveClick(ctx, "tok-1", "anon-1", "s-1")
	require.NoError(t, err)
	_, err = resolver.ResolveClick(ctx, "tok-1", "anon-1", "s-2")
	require.NoError(t, err)
	_, err = resolver.ResolveClick(ctx, "tok-1", "anon-2", "s-3")
	require.NoError(t, err)

	link, err := store.GetTrackingLinkByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), link.Clicks)
	require.Equal(t, int64(2), link.UniqueClicks)
}

func TestLinkResolver_CacheFailureIsNonFatal(t *testing.T) {
	store := NewInMemoryStore()
	cache := NewFakeCache()
	cache.Fail = true
	resolver := NewLinkResolver(store, store, cache)

	seedLink(t, store, "tok-1", "jane@acme.com")

	res, err := resolver.ResolveClick(context.Background(), "tok-1", "anon-1", "s-1")
	require.NoError(t, err)
	require.NotZero(t, res.LeadID)
}
