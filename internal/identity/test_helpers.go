package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// InMemoryStore is a test helper implementing every storage interface
// with the same race-arbitration semantics the Postgres adapter gets
// from constraints and transactions (a single mutex plays the role of
// the database here). Service-level tests across the repo build on it.
type InMemoryStore struct {
	mu           sync.Mutex
	leads        map[int64]*v1.Lead
	leadsByEmail map[string]int64
	sessions     map[string]*v1.Session
	sessionOrder []string
	events       []*v1.Event
	links        map[string]*v1.TrackingLink
	linkClicks   map[string]struct{}
	nextLeadID   int64
	nextEventID  int64
	nextLinkID   int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:        make(map[int64]*v1.Lead),
		leadsByEmail: make(map[string]int64),
		sessions:     make(map[string]*v1.Session),
		links:        make(map[string]*v1.TrackingLink),
		linkClicks:   make(map[string]struct{}),
	}
}

func (m *InMemoryStore) GetSession(ctx context.Context, id string) (*v1.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySession(s), nil
}

func (m *InMemoryStore) CreateSessionIfAbsent(ctx context.Context, session *v1.Session) (*v1.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.createSessionLocked(session)), nil
}

func (m *InMemoryStore) LatestLeadForAnonymous(ctx context.Context, anonymousID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Later-created sessions win, mirroring the ORDER BY started_at DESC.
	for i := len(m.sessionOrder) - 1; i >= 0; i-- {
		s := m.sessions[m.sessionOrder[i]]
		if s.AnonymousID == anonymousID && s.LeadID != nil {
			return *s.LeadID, nil
		}
	}
	return 0, storage.ErrNotFound
}

func (m *InMemoryStore) SaveEvent(ctx context.Context, event *v1.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[event.SessionID]; !ok {
		return fmt.Errorf("session %q does not exist", event.SessionID)
	}

	m.nextEventID++
	event.ID = m.nextEventID
	event.CreatedAt = time.Now().UTC()
	m.events = append(m.events, copyEvent(event))
	return nil
}

func (m *InMemoryStore) GetLead(ctx context.Context, id int64) (*v1.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *InMemoryStore) FindOrCreateLead(ctx context.Context, email string, profile v1.LeadProfile) (*v1.Lead, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, isNew, err := m.findOrCreateLeadLocked(email, profile)
	if err != nil {
		return nil, false, err
	}
	cp := *lead
	return &cp, isNew, nil
}

func (m *InMemoryStore) CreateTrackingLink(ctx context.Context, link *v1.TrackingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[link.Token]; ok {
		return storage.ErrDuplicate
	}
	m.nextLinkID++
	link.ID = m.nextLinkID
	link.CreatedAt = time.Now().UTC()
	cp := *link
	m.links[link.Token] = &cp
	return nil
}

func (m *InMemoryStore) GetTrackingLinkByToken(ctx context.Context, token string) (*v1.TrackingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *InMemoryStore) StitchAnonymousToLead(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lead, isNew, err := m.findOrCreateLeadLocked(email, profile)
	if err != nil {
		return storage.StitchResult{}, err
	}

	stitched := 0
	for _, id := range m.sessionOrder {
		s := m.sessions[id]
		if s.AnonymousID == anonymousID && s.LeadID == nil {
			leadID := lead.ID
			s.LeadID = &leadID
			stitched++
		}
	}

	for _, e := range m.events {
		if e.LeadID != nil {
			continue
		}
		s, ok := m.sessions[e.SessionID]
		if ok && s.AnonymousID == anonymousID && s.LeadID != nil && *s.LeadID == lead.ID {
			leadID := lead.ID
			e.LeadID = &leadID
		}
	}

	return storage.StitchResult{
		LeadID:           lead.ID,
		IsNewLead:        isNew,
		StitchedSessions: stitched,
	}, nil
}

func (m *InMemoryStore) AttachSessionToLead(ctx context.Context, link *v1.TrackingLink, sessionID, anonymousID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.links[link.Token]
	if !ok {
		return storage.ErrNotFound
	}

	leadID := stored.LeadID
	m.createSessionLocked(&v1.Session{
		ID:          sessionID,
		AnonymousID: anonymousID,
		LeadID:      &leadID,
	})

	s := m.sessions[sessionID]
	if s.LeadID == nil {
		s.LeadID = &leadID
	}

	for _, e := range m.events {
		if e.SessionID == sessionID && e.LeadID == nil {
			id := leadID
			e.LeadID = &id
		}
	}

	clickKey := fmt.Sprintf("%d|%s", stored.ID, anonymousID)
	stored.Clicks++
	if _, seen := m.linkClicks[clickKey]; !seen {
		m.linkClicks[clickKey] = struct{}{}
		stored.UniqueClicks++
	}
	return nil
}

func (m *InMemoryStore) ListSessionsForLead(ctx context.Context, leadID int64) ([]*v1.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*v1.Session
	for i := len(m.sessionOrder) - 1; i >= 0; i-- {
		s := m.sessions[m.sessionOrder[i]]
		if s.LeadID != nil && *s.LeadID == leadID {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (m *InMemoryStore) ListEventsForLead(ctx context.Context, leadID int64, limit int) ([]*v1.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*v1.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if e.LeadID != nil && *e.LeadID == leadID {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

func (m *InMemoryStore) CountLeads(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.leads)), nil
}

func (m *InMemoryStore) CountSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sessions)), nil
}

func (m *InMemoryStore) CountIdentifiedSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.LeadID != nil {
			n++
		}
	}
	return n, nil
}

func (m *InMemoryStore) CountEvents(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

// OrphanCounts reports how many sessions and events for the anonymous id
// still lack a lead reference. Assertion helper for merge-completeness
// tests.
func (m *InMemoryStore) OrphanCounts(anonymousID string) (sessions, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.AnonymousID == anonymousID && s.LeadID == nil {
			sessions++
		}
	}
	for _, e := range m.events {
		s, ok := m.sessions[e.SessionID]
		if ok && s.AnonymousID == anonymousID && e.LeadID == nil {
			events++
		}
	}
	return sessions, events
}

func (m *InMemoryStore) createSessionLocked(session *v1.Session) *v1.Session {
	if existing, ok := m.sessions[session.ID]; ok {
		return existing
	}
	cp := copySession(session)
	cp.StartedAt = time.Now().UTC()
	m.sessions[session.ID] = cp
	m.sessionOrder = append(m.sessionOrder, session.ID)
	return cp
}

func (m *InMemoryStore) findOrCreateLeadLocked(email string, profile v1.LeadProfile) (*v1.Lead, bool, error) {
	normalized := v1.NormalizeEmail(email)
	if normalized == "" {
		return nil, false, errors.New("email is required")
	}

	if id, ok := m.leadsByEmail[normalized]; ok {
		lead := m.leads[id]
		if lead.FirstName == "" {
			lead.FirstName = profile.FirstName
		}
		if lead.LastName == "" {
			lead.LastName = profile.LastName
		}
		if lead.Company == "" {
			lead.Company = profile.Company
		}
		if lead.Phone == "" {
			lead.Phone = profile.Phone
		}
		return lead, false, nil
	}

	m.nextLeadID++
	lead := &v1.Lead{
		ID:        m.nextLeadID,
		Email:     normalized,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Company:   profile.Company,
		Phone:     profile.Phone,
		CreatedAt: time.Now().UTC(),
	}
	m.leads[lead.ID] = lead
	m.leadsByEmail[normalized] = lead.ID
	return lead, true, nil
}

func copySession(s *v1.Session) *v1.Session {
	cp := *s
	if s.LeadID != nil {
		id := *s.LeadID
		cp.LeadID = &id
	}
	return &cp
}

func copyEvent(e *v1.Event) *v1.Event {
	cp := *e
	if e.LeadID != nil {
		id := *e.LeadID
		cp.LeadID = &id
	}
	return &cp
}

// FakeCache is a LeadCache test double. Toggling Fail simulates a cache
// outage on both reads and writes.
type FakeCache struct {
	mu       sync.Mutex
	mappings map[string]int64
	Fail     bool
	SetCalls int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{mappings: make(map[string]int64)}
}

func (c *FakeCache) GetLead(ctx context.Context, anonymousID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return 0, false, errors.New("cache unavailable")
	}
	leadID, ok := c.mappings[anonymousID]
	return leadID, ok, nil
}

func (c *FakeCache) SetLead(ctx context.Context, anonymousID string, leadID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetCalls++
	if c.Fail {
		return errors.New("cache unavailable")
	}
	c.mappings[anonymousID] = leadID
	return nil
}

// Mapping returns the cached lead id for assertions.
func (c *FakeCache) Mapping(anonymousID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	leadID, ok := c.mappings[anonymousID]
	return leadID, ok
}
