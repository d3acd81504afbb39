package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/ai"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/cookie"
	"github.com/crewdesk/crewdesk/internal/crypto"
	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/googleauth"
	"github.com/crewdesk/crewdesk/internal/session"
)

// gatewaySpy records every token the handlers hand to the gateway factory.
// By default it fails to build clients, which is enough to prove whether a
// request made it past the auth, CSRF, and refresh layers.
type gatewaySpy struct {
	mu       sync.Mutex
	tokens   []*session.TokenSet
	services *gateway.Services
	err      error
}

func (g *gatewaySpy) New(ctx context.Context, ts *session.TokenSet) (*gateway.Services, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, ts)
	if g.err != nil {
		return nil, g.err
	}
	return g.services, nil
}

func (g *gatewaySpy) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens)
}

func (g *gatewaySpy) lastToken() *session.TokenSet {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) == 0 {
		return nil
	}
	return g.tokens[len(g.tokens)-1]
}

// allowEmptyGateway makes the spy succeed with empty service clients, for
// handlers whose input validation runs before any remote call.
func (g *gatewaySpy) allowEmptyGateway() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = nil
	g.services = &gateway.Services{}
}

type testApp struct {
	router http.Handler
	store  *session.MemoryStore
	signer crypto.TokenSigner
	spy    *gatewaySpy
}

func testConfig() config.Config {
	return config.Config{
		Addr:           ":0",
		BaseURL:        "http://localhost:3001",
		ClientID:       "test-client-id",
		ClientSecret:   "test-client-secret",
		RedirectURI:    "http://localhost:3001/oauth2callback",
		SessionSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTL:     2 * time.Hour,
		SessionBackend: config.SessionBackendMemory,
	}
}

// newTestApp assembles the full router with an in-memory store and a spy
// gateway factory. Construct it after any t.Setenv endpoint overrides so the
// OAuth client picks them up.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := testConfig()
	store := session.NewMemoryStore(cfg.SessionTTL)
	oauthClient := googleauth.NewClient(cfg)
	signer := crypto.NewTokenSigner([]byte(cfg.SessionSecret), 10*time.Minute)
	spy := &gatewaySpy{err: errors.New("gateway offline")}
	policy := authz.NewDrivePolicy()

	aiClient := ai.NewClient("", "")
	auth := NewAuthHandlers(store, oauthClient, &signer)
	ws := NewWorkspaceHandlers(store, oauthClient, policy, spy.New)
	aiHandlers := NewAIHandlers(policy, aiClient, ai.NewVectorStore(aiClient))

	return &testApp{
		router: NewRouter(cfg, store, auth, ws, aiHandlers),
		store:  store,
		signer: signer,
		spy:    spy,
	}
}

// authedSession creates a store-backed session holding the given token.
func (a *testApp) authedSession(t *testing.T, email string, ts *session.TokenSet) *session.Session {
	t.Helper()
	s, created, err := a.store.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	require.True(t, created)
	s.AttachAuthentication(ts, email, "Test User", "")
	return s
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(id string) *http.Cookie {
	return &http.Cookie{Name: cookie.SessionCookie, Value: id}
}

// validToken returns a token set that is nowhere near expiry.
func validToken() *session.TokenSet {
	return &session.TokenSet{
		AccessToken:  "live-access-token",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}
}

// expiredToken returns a token set past expiry but still refreshable.
func expiredToken() *session.TokenSet {
	return &session.TokenSet{
		AccessToken:  "stale-access-token",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Minute),
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// fakeIDToken builds an unsigned JWT-shaped identity token with the given
// claims. The callback decodes the payload segment only.
func fakeIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".signature"
}

// fakeTokenEndpoint stands in for Google's token endpoint for both code
// exchange and refresh grants.
type fakeTokenEndpoint struct {
	srv *httptest.Server

	mu         sync.Mutex
	grantTypes []string
	response   map[string]any
	status     int
}

func newFakeTokenEndpoint(t *testing.T, response map[string]any) *fakeTokenEndpoint {
	t.Helper()
	f := &fakeTokenEndpoint{response: response, status: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.grantTypes = append(f.grantTypes, r.Form.Get("grant_type"))
		status := f.status
		resp := f.response
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTokenEndpoint) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grantTypes)
}

func (f *fakeTokenEndpoint) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = http.StatusBadRequest
}

// beginLogin drives GET /login and returns the session cookie and the signed
// state extracted from the consent redirect.
func beginLogin(t *testing.T, app *testApp, redirect string) (*http.Cookie, string) {
	t.Helper()

	target := "/login"
	if redirect != "" {
		target += "?redirect=" + url.QueryEscape(redirect)
	}
	rec := app.do(httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	var sc *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.SessionCookie {
			sc = c
		}
	}
	require.NotNil(t, sc, "login must set a session cookie")

	consent, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)
	return sc, state
}
