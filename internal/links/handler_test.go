package links

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/identity"
)

func testConfig() Config {
	return Config{
		BaseURL:             "https://track.acme.example",
		FallbackURL:         "https://acme.example/",
		CookieName:          "__ls_aid",
		CookieMaxAgeSeconds: 365 * 24 * 60 * 60,
	}
}

func newTestService(t *testing.T) (*Service, *identity.InMemoryStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := identity.NewInMemoryStore()
	resolver := identity.NewLinkResolver(store, store, identity.NewFakeCache())
	svc := NewService(store, store, resolver, testConfig())

	r := gin.New()
	svc.RegisterRoutes(r)
	return svc, store, r
}

func seedLead(t *testing.T, store *identity.InMemoryStore, email string) int64 {
	t.Helper()
	lead, _, err := store.FindOrCreateLead(context.Background(), email, v1.LeadProfile{})
	require.NoError(t, err)
	return lead.ID
}

func TestCreateHandler_MintsLink(t *testing.T) {
	_, store, r := newTestService(t)
	leadID := seedLead(t, store, "jane@acme.com")

	body, _ := json.Marshal(CreateLinkRequest{
		LeadID:         leadID,
		DestinationURL: "https://acme.example/pricing",
		CampaignID:     "q3-nurture",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tracking-links", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)

	var result struct {
		Success     bool   `json:"success"`
		Token       string `json:"token"`
		TrackingURL string `json:"tracking_url"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.NotEmpty(t, result.Token)
	require.Equal(t, "https://track.acme.example/r/"+result.Token, result.TrackingURL)

	link, err := store.GetTrackingLinkByToken(context.Background(), result.Token)
	require.NoError(t, err)
	require.Equal(t, leadID, link.LeadID)
	require.Equal(t, "q3-nurture", link.CampaignID)
}

func TestCreateHandler_UnknownLead(t *testing.T) {
	_, _, r := newTestService(t)

	body, _ := json.Marshal(CreateLinkRequest{
		LeadID:         999,
		DestinationURL: "https://acme.example/pricing",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tracking-links", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateHandler_ValidationFailure(t *testing.T) {
	_, _, r := newTestService(t)

	body, _ := json.Marshal(CreateLinkRequest{LeadID: 1, DestinationURL: "not-a-url"})
	req := httptest.NewRequest(http.MethodPost, "/api/tracking-links", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRedirectHandler_KnownToken(t *testing.T) {
	svc, store, r := newTestService(t)
	leadID := seedLead(t, store, "jane@acme.com")

	link, _, err := svc.Create(context.Background(), leadID, "https://acme.example/pricing?plan=pro", "", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/r/"+link.Token, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusFound, resp.Code)

	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "acme.example", location.Host)
	require.Equal(t, "pro", location.Query().Get("plan")) // original params survive
	require.NotEmpty(t, location.Query().Get("_aid"))
	require.NotEmpty(t, location.Query().Get("_sid"))
	require.Equal(t, "email", location.Query().Get("_source"))

	// Long-lived anonymous-id cookie is set for cross-visit tracking.
	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "__ls_aid", cookies[0].Name)
	require.Equal(t, location.Query().Get("_aid"), cookies[0].Value)

	// The click itself was attributed.
	updated, err := store.GetTrackingLinkByToken(context.Background(), link.Token)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated.Clicks)
	require.Equal(t, int64(1), updated.UniqueClicks)
}

func TestRedirectHandler_ReusesSuppliedIdentifiers(t *testing.T) {
	svc, store, r := newTestService(t)
	leadID := seedLead(t, store, "jane@acme.com")

	link, _, err := svc.Create(context.Background(), leadID, "https://acme.example/", "", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/r/"+link.Token+"?aid=anon-known&sid=sess-known", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusFound, resp.Code)
	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "anon-known", location.Query().Get("_aid"))
	require.Equal(t, "sess-known", location.Query().Get("_sid"))

	session, err := store.GetSession(context.Background(), "sess-known")
	require.NoError(t, err)
	require.NotNil(t, session.LeadID)
	require.Equal(t, leadID, *session.LeadID)
}

func TestRedirectHandler_UnknownTokenFailsOpen(t *testing.T) {
	_, _, r := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/r/no-such-token", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusFound, resp.Code)
	require.Equal(t, "https://acme.example/", resp.Header().Get("Location"))
}

func TestRedirectHandler_ResolverFailureFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := identity.NewInMemoryStore()
	svc := NewService(store, store, failingResolver{}, testConfig())

	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/r/any-token", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	// Store down mid-click: the visitor still lands somewhere usable.
	require.Equal(t, http.StatusFound, resp.Code)
	require.Equal(t, "https://acme.example/", resp.Header().Get("Location"))
}

func TestMintToken_Shape(t *testing.T) {
	token := mintToken()
	require.Len(t, token, 32)
	require.False(t, strings.Contains(token, "-"))
	require.NotEqual(t, token, mintToken())
}

type failingResolver struct{}

func (failingResolver) ResolveClick(ctx context.Context, token, anonymousID, sessionID string) (*identity.ClickResolution, error) {
	return nil, errors.New("store down")
}
