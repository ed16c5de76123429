package storage

import (
	"context"
	"errors"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with an existing
// unique key (leads.email, sessions.id, tracking_links.token).
var ErrDuplicate = errors.New("record already exists")

// StitchResult reports the outcome of one merge. The fields are
// informational: under concurrent stitches of the same anonymous id the
// counts may race, which is why no caller makes correctness decisions
// from them.
type StitchResult struct {
	LeadID           int64
	IsNewLead        bool
	StitchedSessions int
}

// SessionStore persists browsing sessions. The store is the only arbiter
// of session-id uniqueness: concurrent first-events for the same id must
// resolve to a single row.
type SessionStore interface {
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*v1.Session, error)

	// CreateSessionIfAbsent inserts the session unless a row with the same
	// id already exists, and returns the stored row either way. The losing
	// side of a creation race gets the winner's row, never an error.
	CreateSessionIfAbsent(ctx context.Context, session *v1.Session) (*v1.Session, error)

	// LatestLeadForAnonymous returns the lead id of the most recent session
	// carrying this anonymous id with a non-null lead reference, or
	// ErrNotFound. This is the authoritative fallback behind the cache.
	LatestLeadForAnonymous(ctx context.Context, anonymousID string) (int64, error)
}

// EventStore persists immutable tracked actions.
type EventStore interface {
	// SaveEvent inserts the event and populates ID and CreatedAt.
	SaveEvent(ctx context.Context, event *v1.Event) error
}

// LeadStore reads and creates identified prospects.
type LeadStore interface {
	// GetLead returns the lead or ErrNotFound.
	GetLead(ctx context.Context, id int64) (*v1.Lead, error)

	// FindOrCreateLead resolves a lead by normalized email, creating it if
	// absent. An existing lead is enriched with profile fields only where
	// its own fields are empty. The second return reports creation.
	FindOrCreateLead(ctx context.Context, email string, profile v1.LeadProfile) (*v1.Lead, bool, error)
}

// TrackingLinkStore persists lead-scoped redirect links.
type TrackingLinkStore interface {
	// CreateTrackingLink inserts the link and populates ID and CreatedAt.
	// The caller supplies the token.
	CreateTrackingLink(ctx context.Context, link *v1.TrackingLink) error

	// GetTrackingLinkByToken returns the link or ErrNotFound.
	GetTrackingLinkByToken(ctx context.Context, token string) (*v1.TrackingLink, error)
}

// IdentityStore is the transactional write surface of identity stitching.
// Both operations are atomic units: a store failure mid-way must leave no
// session or event half-reassigned.
type IdentityStore interface {
	// StitchAnonymousToLead finds-or-creates the lead by normalized email,
	// reassigns every null-lead session carrying the anonymous id to it,
	// and back-fills the lead reference on those sessions' null-lead
	// events, all inside one transaction.
	StitchAnonymousToLead(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (StitchResult, error)

	// AttachSessionToLead attributes a tracking-link click: ensures the
	// session row exists, sets its lead reference only if currently null
	// (an existing attribution is never overridden), back-fills the
	// session's null-lead events, and records the click against the link.
	// The unique-click counter advances at most once per anonymous id.
	AttachSessionToLead(ctx context.Context, link *v1.TrackingLink, sessionID, anonymousID string) error
}

// ProjectionStore serves the read side: merged per-lead timelines and
// funnel-wide counts.
type ProjectionStore interface {
	GetLead(ctx context.Context, id int64) (*v1.Lead, error)
	ListSessionsForLead(ctx context.Context, leadID int64) ([]*v1.Session, error)
	ListEventsForLead(ctx context.Context, leadID int64, limit int) ([]*v1.Event, error)
	CountLeads(ctx context.Context) (int64, error)
	CountSessions(ctx context.Context) (int64, error)
	CountIdentifiedSessions(ctx context.Context) (int64, error)
	CountEvents(ctx context.Context) (int64, error)
}
