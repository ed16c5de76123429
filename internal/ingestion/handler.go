package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	httperr "github.com/leadsight-lab/leadsight/internal/core/errors"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgResolveFailed  = "Failed to resolve session"
	msgStitchFailed   = "Failed to stitch identity"
	msgPersistFailed  = "Failed to persist event"
)

// ingestionError carries the structured HTTP error shape from a helper
// back to the orchestrator. Helpers return this instead of writing to
// gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// TrackHandler ingests one beacon event: it resolves the session
// (creating it at most once), runs the lead merge when the event reveals
// an identity, and appends the event carrying whatever lead reference
// was resolved at that point.
func (s *Service) TrackHandler(c *gin.Context) {
	req, payloadSize, err := s.parseTrack(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if verr := req.Validate(); verr != nil {
		slog.Warn("Track payload validation failed", "error", verr, "payload_size", payloadSize)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    verr.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	session, rerr := s.resolver.ResolveSession(ctx, req.SessionID, req.AnonymousID, v1.SessionMetadata{
		IPAddress:   clientIP(c),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    req.Referrer,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
	})
	if rerr != nil {
		slog.Error("Session resolution failed", "error", rerr, "session_id", req.SessionID)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgResolveFailed,
		})
		return
	}

	leadID := session.LeadID

	// An identity reveal triggers the merge before the event is written,
	// so the event itself is created already attributed.
	if email, ok := req.IdentityEmail(); ok {
		result, serr := s.stitcher.Stitch(ctx, req.AnonymousID, email, req.IdentityProfile())
		if serr != nil {
			slog.Error("Stitch failed", "error", serr, "anonymous_id", req.AnonymousID)
			writeError(c, &ingestionError{
				statusCode: http.StatusInternalServerError,
				errorType:  httperr.HttpInternalError,
				message:    msgStitchFailed,
			})
			return
		}
		leadID = &result.LeadID
	}

	event := &v1.Event{
		SessionID: session.ID,
		LeadID:    leadID,
		Type:      req.EventType,
		Data:      req.EventData,
		PageURL:   req.PageURL,
		PageTitle: req.PageTitle,
	}
	if perr := s.events.SaveEvent(ctx, event); perr != nil {
		slog.Error("Failed to persist event", "error", perr, "session_id", session.ID)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		})
		return
	}

	slog.Info("Tracked event",
		"event_id", event.ID,
		"event_type", event.Type,
		"session_id", session.ID,
		"has_lead", leadID != nil,
		"payload_size", payloadSize)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"event_id":   event.ID,
		"session_id": session.ID,
		"lead_id":    leadID,
	})
}

// PreflightHandler answers the beacon's CORS preflight.
func (s *Service) PreflightHandler(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// parseTrack reads the raw request body and binds it into a TrackRequest.
// Returns the parsed request and the raw payload size.
func (s *Service) parseTrack(c *gin.Context) (*v1.TrackRequest, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM from oversized payloads
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req v1.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return &req, len(bodyBytes), nil
}

// clientIP prefers the forwarding headers set by the edge, falling back
// to gin's resolution.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return real
	}
	return c.ClientIP()
}

// corsHeaders lets the beacon post from any customer origin.
func corsHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Next()
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
