package v1

import (
	"fmt"

	"github.com/google/uuid"
)

// TrackRequest is the wire shape of one beacon event posted to /api/track.
// AnonymousID and SessionID are client-minted UUIDs: the anonymous id is a
// long-lived cookie value, the session id is new per browsing session.
type TrackRequest struct {
	TrackingID  string                 `json:"tracking_id"`
	AnonymousID string                 `json:"anonymous_id"`
	SessionID   string                 `json:"session_id"`
	EventType   string                 `json:"event_type"`
	EventData   map[string]interface{} `json:"event_data,omitempty"`
	PageURL     string                 `json:"page_url,omitempty"`
	PageTitle   string                 `json:"page_title,omitempty"`
	Referrer    string                 `json:"referrer,omitempty"`
	UTMSource   string                 `json:"utm_source,omitempty"`
	UTMMedium   string                 `json:"utm_medium,omitempty"`
	UTMCampaign string                 `json:"utm_campaign,omitempty"`
}

// Validate ensures the request carries the identifiers the resolution
// path depends on. Malformed payloads never reach the core.
func (r *TrackRequest) Validate() error {
	if r.TrackingID == "" {
		return fmt.Errorf("tracking_id is required")
	}
	if _, err := uuid.Parse(r.AnonymousID); err != nil {
		return fmt.Errorf("anonymous_id must be a valid UUID")
	}
	if _, err := uuid.Parse(r.SessionID); err != nil {
		return fmt.Errorf("session_id must be a valid UUID")
	}
	if r.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	return nil
}

// IdentityEmail extracts the email from an identify event's payload.
// Returns ok=false when the event is not an identity reveal.
func (r *TrackRequest) IdentityEmail() (string, bool) {
	if r.EventType != EventTypeIdentify {
		return "", false
	}
	email, _ := r.EventData["email"].(string)
	if email == "" {
		return "", false
	}
	return email, true
}

// IdentityProfile extracts the optional contact fields from an identify
// event's payload. Missing or non-string values are simply left empty.
func (r *TrackRequest) IdentityProfile() LeadProfile {
	str := func(key string) string {
		v, _ := r.EventData[key].(string)
		return v
	}
	return LeadProfile{
		FirstName: str("first_name"),
		LastName:  str("last_name"),
		Company:   str("company"),
		Phone:     str("phone"),
	}
}
