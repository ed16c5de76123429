package webhook

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/leadsight-lab/leadsight/internal/core/errors"
)

// InviteeHandler accepts scheduling-provider webhooks. Malformed payloads
// get a 400 so the provider surfaces them; processing failures get a 500
// so the provider retries.
func (s *Service) InviteeHandler(c *gin.Context) {
	var payload InviteePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid webhook payload",
		})
		return
	}
	if err := payload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   err.Error(),
		})
		return
	}

	slog.Info("[Webhook] Received", "event", payload.Event)

	if err := s.HandleInvitee(c.Request.Context(), &payload); err != nil {
		slog.Error("[Webhook] Processing failed", "event", payload.Event, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to process webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
