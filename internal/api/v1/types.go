package v1

import (
	"strings"
	"time"
)

// Lead is an identified prospect, keyed by normalized email.
// Exactly one Lead exists per email; rows are never deleted and contact
// fields are only ever filled in, never overwritten.
type Lead struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LeadProfile carries optional contact fields supplied alongside an
// identity-revealing signal. Empty strings mean "not supplied".
type LeadProfile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Session is one browsing session for one anonymous visitor.
// ID is a caller-supplied natural key; LeadID transitions null -> set
// exactly once, at stitching time.
type Session struct {
	ID          string    `json:"id"`
	AnonymousID string    `json:"anonymous_id"`
	LeadID      *int64    `json:"lead_id,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Referrer    string    `json:"referrer,omitempty"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// SessionMetadata is the request context captured when a session row is
// first created. It is never updated afterwards.
type SessionMetadata struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// Event is one immutable tracked action. LeadID is denormalized for
// per-lead timeline queries and is back-filled once during stitching.
type Event struct {
	ID        int64                  `json:"id"`
	SessionID string                 `json:"session_id"`
	LeadID    *int64                 `json:"lead_id,omitempty"`
	Type      string                 `json:"event_type"`
	Data      map[string]interface{} `json:"event_data,omitempty"`
	PageURL   string                 `json:"page_url,omitempty"`
	PageTitle string                 `json:"page_title,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Well-known event types. The type column is open-ended; these are the
// ones the service itself emits or dispatches on.
const (
	EventTypeIdentify     = "identify"
	EventTypeCallBooked   = "call_booked"
	EventTypeCallCanceled = "call_canceled"
)

// TrackingLink is a lead-scoped shareable redirect used to attribute
// clicks (e.g. from email campaigns) back to a lead.
type TrackingLink struct {
	ID             int64     `json:"id"`
	Token          string    `json:"token"`
	DestinationURL string    `json:"destination_url"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	CampaignName   string    `json:"campaign_name,omitempty"`
	LeadID         int64     `json:"lead_id"`
	Clicks         int64     `json:"clicks"`
	UniqueClicks   int64     `json:"unique_clicks"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeEmail lowercases and trims an email address. Every lead lookup
// and insert goes through this so the unique constraint on leads.email is
// case-insensitive in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
