package links

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httperr "github.com/leadsight-lab/leadsight/internal/core/errors"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// CreateLinkRequest is the campaign-tooling request to mint a link.
type CreateLinkRequest struct {
	LeadID         int64  `json:"lead_id"`
	DestinationURL string `json:"destination_url"`
	CampaignID     string `json:"campaign_id,omitempty"`
	CampaignName   string `json:"campaign_name,omitempty"`
}

func (r *CreateLinkRequest) Validate() error {
	if r.LeadID <= 0 {
		return errors.New("lead_id is required")
	}
	u, err := url.Parse(r.DestinationURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("destination_url must be an absolute URL")
	}
	return nil
}

// CreateHandler mints a tracking link for a lead.
func (s *Service) CreateHandler(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid JSON body",
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   err.Error(),
		})
		return
	}

	link, trackingURL, err := s.Create(c.Request.Context(), req.LeadID, req.DestinationURL, req.CampaignID, req.CampaignName)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "Lead does not exist",
		})
		return
	}
	if err != nil {
		slog.Error("Tracking link creation failed", "error", err, "lead_id", req.LeadID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to create tracking link",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"token":        link.Token,
		"tracking_url": trackingURL,
	})
}

// RedirectHandler serves tracking-link clicks. This path is reached
// straight from an email click, so it fails open: whatever goes wrong,
// the visitor gets a usable redirect, never an error page. Partial
// tracking loss is acceptable; visible breakage is not.
func (s *Service) RedirectHandler(c *gin.Context) {
	token := c.Param("token")

	// First-time clicks arrive without identifiers; mint them here so the
	// destination page's beacon continues the same trail.
	anonymousID := c.Query("aid")
	if anonymousID == "" {
		anonymousID = uuid.NewString()
	}
	sessionID := c.Query("sid")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resolution, err := s.resolver.ResolveClick(c.Request.Context(), token, anonymousID, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("Click attribution failed, failing open", "error", err, "token", token)
		}
		c.Redirect(http.StatusFound, s.cfg.FallbackURL)
		return
	}

	destination, err := url.Parse(resolution.DestinationURL)
	if err != nil {
		slog.Error("Stored destination URL is unparseable", "error", err, "token", token)
		c.Redirect(http.StatusFound, s.cfg.FallbackURL)
		return
	}

	// Embed the identifiers so the destination page can hand them to its
	// beacon, and mark the visit as sourced from email.
	q := destination.Query()
	q.Set("_aid", anonymousID)
	q.Set("_sid", sessionID)
	q.Set("_source", "email")
	destination.RawQuery = q.Encode()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, anonymousID, s.cfg.CookieMaxAgeSeconds, "/", "", false, false)

	c.Redirect(http.StatusFound, destination.String())
}
