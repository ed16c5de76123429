package ingestion

import (
	"context"

	"github.com/gin-gonic/gin"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// SessionResolver resolves (session id, anonymous id) pairs to durable
// sessions. Satisfied by identity.Resolver.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID, anonymousID string, meta v1.SessionMetadata) (*v1.Session, error)
}

// LeadStitcher merges an anonymous trail onto a lead. Satisfied by
// identity.Stitcher.
type LeadStitcher interface {
	Stitch(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error)
}

// Service handles beacon event ingestion.
type Service struct {
	resolver         SessionResolver
	stitcher         LeadStitcher
	events           storage.EventStore
	maxBodySizeBytes int
}

func NewService(resolver SessionResolver, stitcher LeadStitcher, events storage.EventStore, maxBodySizeMB int) *Service {
	if resolver == nil {
		panic("ingestion: resolver must not be nil")
	}
	if stitcher == nil {
		panic("ingestion: stitcher must not be nil")
	}
	if events == nil {
		panic("ingestion: event store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		resolver:         resolver,
		stitcher:         stitcher,
		events:           events,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion routes. The beacon posts
// cross-origin from customer sites, so the endpoint answers CORS
// preflights.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/track", corsHeaders, s.TrackHandler)
	r.OPTIONS("/api/track", corsHeaders, s.PreflightHandler)
}
