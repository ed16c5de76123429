package projection

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/leadsight-lab/leadsight/internal/core/errors"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

// RegisterRoutes registers the read-side API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/leads/:id/timeline", s.TimelineHandler)
	r.GET("/v1/stats", s.StatsHandler)
}

// TimelineHandler handles GET /v1/leads/:id/timeline.
func (s *Service) TimelineHandler(c *gin.Context) {
	var uri struct {
		ID int64 `uri:"id" binding:"required,min=1"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Lead id must be a positive integer",
		})
		return
	}

	timeline, err := s.LeadTimeline(c.Request.Context(), uri.ID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "Lead does not exist",
		})
		return
	}
	if err != nil {
		slog.Error("Timeline query failed", "error", err, "lead_id", uri.ID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to load lead timeline",
		})
		return
	}

	c.JSON(http.StatusOK, timeline)
}

// StatsHandler handles GET /v1/stats.
func (s *Service) StatsHandler(c *gin.Context) {
	stats, err := s.FunnelStats(c.Request.Context())
	if err != nil {
		slog.Error("Stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to load funnel stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
