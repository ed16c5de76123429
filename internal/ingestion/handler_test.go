package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	httperr "github.com/leadsight-lab/leadsight/internal/core/errors"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
	"github.com/leadsight-lab/leadsight/internal/identity"
)

const (
	testAnonymousID = "0b906410-7a3f-4b45-9c1f-6c2d7c3e9ab1"
	testSessionID   = "5f7b1c32-88ad-4f6e-9a6b-24c7a9f1d0ee"
)

func newTestService(t *testing.T) (*Service, *identity.InMemoryStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := identity.NewInMemoryStore()
	cache := identity.NewFakeCache()
	svc := NewService(
		identity.NewResolver(store, cache),
		identity.NewStitcher(store, cache),
		store,
		1,
	)

	r := gin.New()
	svc.RegisterRoutes(r)
	return svc, store, r
}

func postTrack(t *testing.T, r *gin.Engine, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/track", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func trackPayload(eventType string, data map[string]interface{}) v1.TrackRequest {
	return v1.TrackRequest{
		TrackingID:  "acme-site",
		AnonymousID: testAnonymousID,
		SessionID:   testSessionID,
		EventType:   eventType,
		EventData:   data,
		PageURL:     "https://acme.example/pricing",
	}
}

func TestTrackHandler_PageView(t *testing.T) {
	_, store, r := newTestService(t)

	resp := postTrack(t, r, trackPayload("page_view", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Success   bool   `json:"success"`
		EventID   int64  `json:"event_id"`
		SessionID string `json:"session_id"`
		LeadID    *int64 `json:"lead_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.NotZero(t, result.EventID)
	require.Equal(t, testSessionID, result.SessionID)
	require.Nil(t, result.LeadID)

	count, err := store.CountSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestTrackHandler_IdentifyStitchesTrail(t *testing.T) {
	_, store, r := newTestService(t)

	// Two anonymous page views, then the visitor reveals themselves.
	require.Equal(t, http.StatusOK, postTrack(t, r, trackPayload("page_view", nil)).Code)
	require.Equal(t, http.StatusOK, postTrack(t, r, trackPayload("page_view", nil)).Code)

	resp := postTrack(t, r, trackPayload(v1.EventTypeIdentify, map[string]interface{}{
		"email":      "a@x.com",
		"first_name": "Ann",
	}))
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		LeadID *int64 `json:"lead_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.NotNil(t, result.LeadID)

	// The whole trail is attributed: both prior events and the identify
	// event itself carry the lead.
	events, err := store.ListEventsForLead(context.Background(), *result.LeadID, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	orphanSessions, orphanEvents := store.OrphanCounts(testAnonymousID)
	require.Zero(t, orphanSessions)
	require.Zero(t, orphanEvents)
}

func TestTrackHandler_EventAfterIdentifyIsBornAttributed(t *testing.T) {
	_, store, r := newTestService(t)

	require.Equal(t, http.StatusOK, postTrack(t, r, trackPayload(v1.EventTypeIdentify, map[string]interface{}{
		"email": "a@x.com",
	})).Code)

	resp := postTrack(t, r, trackPayload("purchase", map[string]interface{}{"amount": 99}))
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		LeadID *int64 `json:"lead_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.NotNil(t, result.LeadID)

	events, err := store.ListEventsForLead(context.Background(), *result.LeadID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestTrackHandler_InvalidJSON(t *testing.T) {
	_, _, r := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/track", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestTrackHandler_ValidationFailure(t *testing.T) {
	_, _, r := newTestService(t)

	payload := trackPayload("page_view", nil)
	payload.AnonymousID = "not-a-uuid"

	resp := postTrack(t, r, payload)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)
}

func TestTrackHandler_OversizedBody(t *testing.T) {
	_, _, r := newTestService(t)

	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	req := httptest.NewRequest(http.MethodPost, "/api/track", bytes.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestTrackHandler_StitchFailureReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := identity.NewInMemoryStore()
	cache := identity.NewFakeCache()
	svc := NewService(
		identity.NewResolver(store, cache),
		failingStitcher{},
		store,
		1,
	)

	r := gin.New()
	svc.RegisterRoutes(r)

	resp := postTrack(t, r, trackPayload(v1.EventTypeIdentify, map[string]interface{}{"email": "a@x.com"}))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestTrackHandler_CORSPreflight(t *testing.T) {
	_, _, r := newTestService(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/track", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

type failingStitcher struct{}

func (failingStitcher) Stitch(ctx context.Context, anonymousID, email string, profile v1.LeadProfile) (storage.StitchResult, error) {
	return storage.StitchResult{}, errors.New("store down")
}
