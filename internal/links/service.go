package links

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
	"github.com/leadsight-lab/leadsight/internal/identity"
)

// tokenMintAttempts bounds retries on the (vanishingly unlikely) token
// collision.
const tokenMintAttempts = 3

// ClickResolver attributes a tracking-link click. Satisfied by
// identity.LinkResolver.
type ClickResolver interface {
	ResolveClick(ctx context.Context, token, anonymousID, sessionID string) (*identity.ClickResolution, error)
}

// Config carries the redirect-surface settings.
type Config struct {
	// BaseURL is the public origin tracking URLs are minted under.
	BaseURL string
	// FallbackURL is where unknown tokens and internal failures land.
	FallbackURL string
	// CookieName holds the long-lived anonymous visitor id.
	CookieName string
	// CookieMaxAgeSeconds bounds the cookie lifetime.
	CookieMaxAgeSeconds int
}

// Service owns tracking-link creation (campaign tooling) and the public
// redirect surface (email clicks).
type Service struct {
	links    storage.TrackingLinkStore
	leads    storage.LeadStore
	resolver ClickResolver
	cfg      Config
}

func NewService(links storage.TrackingLinkStore, leads storage.LeadStore, resolver ClickResolver, cfg Config) *Service {
	if links == nil {
		panic("links: tracking link store must not be nil")
	}
	if leads == nil {
		panic("links: lead store must not be nil")
	}
	if resolver == nil {
		panic("links: click resolver must not be nil")
	}
	return &Service{
		links:    links,
		leads:    leads,
		resolver: resolver,
		cfg:      cfg,
	}
}

// RegisterRoutes registers the link-creation API and the redirect path.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/tracking-links", s.CreateHandler)
	r.GET("/r/:token", s.RedirectHandler)
}

// Create persists a new tracking link for a lead and returns it together
// with the fully-qualified tracking URL.
func (s *Service) Create(ctx context.Context, leadID int64, destinationURL, campaignID, campaignName string) (*v1.TrackingLink, string, error) {
	if _, err := s.leads.GetLead(ctx, leadID); err != nil {
		return nil, "", fmt.Errorf("lead lookup failed: %w", err)
	}

	var link *v1.TrackingLink
	for attempt := 0; attempt < tokenMintAttempts; attempt++ {
		candidate := &v1.TrackingLink{
			Token:          mintToken(),
			DestinationURL: destinationURL,
			CampaignID:     campaignID,
			CampaignName:   campaignName,
			LeadID:         leadID,
		}
		err := s.links.CreateTrackingLink(ctx, candidate)
		if err == nil {
			link = candidate
			break
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, "", fmt.Errorf("tracking link creation failed: %w", err)
		}
	}
	if link == nil {
		return nil, "", fmt.Errorf("could not mint a unique token after %d attempts", tokenMintAttempts)
	}

	return link, s.trackingURL(link.Token), nil
}

func (s *Service) trackingURL(token string) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/r/" + token
}

// mintToken produces the opaque, unguessable redirect token.
func mintToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
