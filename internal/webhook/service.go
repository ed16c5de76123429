package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// Invitee event kinds sent by the scheduling provider.
const (
	KindInviteeCreated  = "invitee.created"
	KindInviteeCanceled = "invitee.canceled"
)

// LeadStitcher merges an anonymous trail into a lead. Satisfied by
// identity.Stitcher.
type LeadStitcher interface {
	Stitch(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error)
}

// InviteePayload is the scheduling provider's webhook body. The tracking
// block carries the identifiers our client script passed through the
// booking page; it is absent when the invitee arrived untracked.
type InviteePayload struct {
	Event   string `json:"event"`
	Payload struct {
		Email          string `json:"email"`
		Name           string `json:"name,omitempty"`
		EventTypeURI   string `json:"event_type,omitempty"`
		ScheduledEvent struct {
			URI       string `json:"uri,omitempty"`
			Name      string `json:"name,omitempty"`
			StartTime string `json:"start_time,omitempty"`
			EndTime   string `json:"end_time,omitempty"`
		} `json:"scheduled_event,omitempty"`
		CancelURL     string `json:"cancel_url,omitempty"`
		RescheduleURL string `json:"reschedule_url,omitempty"`
		Tracking      struct {
			UTMSource   string `json:"utm_source,omitempty"`
			UTMMedium   string `json:"utm_medium,omitempty"`
			UTMCampaign string `json:"utm_campaign,omitempty"`
			AnonymousID string `json:"anonymous_id,omitempty"`
			SessionID   string `json:"session_id,omitempty"`
		} `json:"tracking,omitempty"`
	} `json:"payload"`
}

func (p *InviteePayload) Validate() error {
	if p.Event == "" {
		return errors.New("event is required")
	}
	if _, err := mail.ParseAddress(p.Payload.Email); err != nil {
		return errors.New("payload.email must be a valid email address")
	}
	return nil
}

// profile derives lead enrichment fields from the invitee's display name.
func (p *InviteePayload) profile() v1.LeadProfile {
	first, last := splitName(p.Payload.Name)
	return v1.LeadProfile{FirstName: first, LastName: last}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Service receives identity signals from the external scheduling provider
// and folds them into the same lead graph the tracking beacon feeds.
type Service struct {
	stitcher LeadStitcher
	leads    storage.LeadStore
	sessions storage.SessionStore
	events   storage.EventStore
}

func NewService(stitcher LeadStitcher, leads storage.LeadStore, sessions storage.SessionStore, events storage.EventStore) *Service {
	if stitcher == nil {
		panic("webhook: lead stitcher must not be nil")
	}
	if leads == nil {
		panic("webhook: lead store must not be nil")
	}
	if sessions == nil {
		panic("webhook: session store must not be nil")
	}
	if events == nil {
		panic("webhook: event store must not be nil")
	}
	return &Service{
		stitcher: stitcher,
		leads:    leads,
		sessions: sessions,
		events:   events,
	}
}

// RegisterRoutes registers the scheduler webhook endpoint.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/webhooks/scheduler", s.InviteeHandler)
}

// HandleInvitee dispatches one webhook payload. Unknown event kinds are
// acknowledged without effect so the provider does not retry them.
func (s *Service) HandleInvitee(ctx context.Context, payload *InviteePayload) error {
	switch payload.Event {
	case KindInviteeCreated:
		return s.handleCreated(ctx, payload)
	case KindInviteeCanceled:
		return s.handleCanceled(ctx, payload)
	default:
		slog.Info("[Webhook] Ignoring unhandled event kind", "event", payload.Event)
		return nil
	}
}

func (s *Service) handleCreated(ctx context.Context, payload *InviteePayload) error {
	anonymousID := payload.Payload.Tracking.AnonymousID

	if anonymousID == "" {
		// Untracked invitee. There is no anonymous trail to stitch, so the
		// best we can do is make sure the lead exists.
		lead, _, err := s.leads.FindOrCreateLead(ctx, v1.NormalizeEmail(payload.Payload.Email), payload.profile())
		if err != nil {
			return fmt.Errorf("lead upsert failed: %w", err)
		}
		slog.Info("[Webhook] Booked call recorded without session context", "lead_id", lead.ID)
		return nil
	}

	result, err := s.stitcher.Stitch(ctx, anonymousID, payload.Payload.Email, payload.profile())
	if err != nil {
		return fmt.Errorf("stitch failed: %w", err)
	}

	// Some providers drop the session id in transit. Fall back to a
	// session keyed by the anonymous id so the booking still lands on the
	// visitor's timeline.
	sessionID := payload.Payload.Tracking.SessionID
	if sessionID == "" {
		sessionID = anonymousID
	}
	leadID := result.LeadID
	if _, err := s.sessions.CreateSessionIfAbsent(ctx, &v1.Session{
		ID:          sessionID,
		AnonymousID: anonymousID,
		LeadID:      &leadID,
	}); err != nil {
		return fmt.Errorf("session ensure failed: %w", err)
	}

	event := &v1.Event{
		SessionID: sessionID,
		LeadID:    &leadID,
		Type:      v1.EventTypeCallBooked,
		Data: map[string]interface{}{
			"event_type_uri":      payload.Payload.EventTypeURI,
			"scheduled_event_uri": payload.Payload.ScheduledEvent.URI,
			"event_name":          payload.Payload.ScheduledEvent.Name,
			"start_time":          payload.Payload.ScheduledEvent.StartTime,
			"end_time":            payload.Payload.ScheduledEvent.EndTime,
			"reschedule_url":      payload.Payload.RescheduleURL,
			"cancel_url":          payload.Payload.CancelURL,
		},
	}
	if err := s.events.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("call_booked event insert failed: %w", err)
	}

	slog.Info("[Webhook] Booked call stitched", "lead_id", result.LeadID, "session_id", sessionID, "stitched_sessions", result.StitchedSessions)
	return nil
}

// handleCanceled records a cancellation only when it can be attributed:
// there must already be a session with a known lead for the referenced
// identifiers. Anything else is silently dropped, there is nothing to
// cancel.
func (s *Service) handleCanceled(ctx context.Context, payload *InviteePayload) error {
	anonymousID := payload.Payload.Tracking.AnonymousID
	sessionID := payload.Payload.Tracking.SessionID
	if anonymousID == "" || sessionID == "" {
		return nil
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session lookup failed: %w", err)
	}
	if session.LeadID == nil {
		return nil
	}

	event := &v1.Event{
		SessionID: sessionID,
		LeadID:    session.LeadID,
		Type:      v1.EventTypeCallCanceled,
		Data: map[string]interface{}{
			"scheduled_event_uri": payload.Payload.ScheduledEvent.URI,
			"canceled_at":         time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.events.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("call_canceled event insert failed: %w", err)
	}

	slog.Info("[Webhook] Canceled call recorded", "lead_id", *session.LeadID, "session_id", sessionID)
	return nil
}
