package projection

import (
	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
)

// LeadTimeline is the merged activity view for one lead: the lead record,
// every session attributed to it, and its most recent events.
type LeadTimeline struct {
	Lead     *v1.Lead      `json:"lead"`
	Sessions []*v1.Session `json:"sessions"`
	Events   []*v1.Event   `json:"events"`
}

// FunnelStats is the funnel-wide dashboard snapshot. IdentificationRate is
// the share of sessions attributed to a lead, as a percentage with two
// decimal places ("0.00" when no sessions exist yet).
type FunnelStats struct {
	Leads              int64  `json:"leads"`
	Sessions           int64  `json:"sessions"`
	IdentifiedSessions int64  `json:"identified_sessions"`
	Events             int64  `json:"events"`
	IdentificationRate string `json:"identification_rate"`
}
