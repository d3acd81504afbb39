package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/cookie"
)

func TestLoginRedirectsToConsent(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	consent, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", consent.Query().Get("client_id"))
	assert.Equal(t, "offline", consent.Query().Get("access_type"))
	assert.NotEmpty(t, consent.Query().Get("state"))
	assert.Contains(t, consent.Query().Get("scope"), "drive")
}

func TestLoginCallbackRoundTrip(t *testing.T) {
	idToken := fakeIDToken(t, map[string]any{
		"email":   "manager@example.com",
		"name":    "Pat Manager",
		"picture": "https://example.com/pat.png",
	})
	endpoint := newFakeTokenEndpoint(t, map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      idToken,
	})
	t.Setenv("GOOGLE_OAUTH_TOKEN_URL", endpoint.srv.URL)

	app := newTestApp(t)
	sc, state := beginLogin(t, app, "/projects.html")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/projects.html", rec.Header().Get("Location"))
	assert.Equal(t, []string{"authorization_code"}, endpoint.grantTypes)

	userReq := httptest.NewRequest(http.MethodGet, "/user", nil)
	userReq.AddCookie(sc)
	rec = app.do(userReq)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["loggedIn"])
	assert.Equal(t, "manager@example.com", body["email"])
	assert.Equal(t, "Pat Manager", body["name"])
	csrfToken, _ := body["csrfToken"].(string)
	require.NotEmpty(t, csrfToken)

	// Reading the identity must not rotate the anti-forgery token.
	userReq = httptest.NewRequest(http.MethodGet, "/user", nil)
	userReq.AddCookie(sc)
	body = decodeJSON(t, app.do(userReq))
	assert.Equal(t, csrfToken, body["csrfToken"])
}

func TestLoginWithoutRedirectLandsOnIndex(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, map[string]any{
		"access_token": "access-1",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     fakeIDToken(t, map[string]any{"email": "manager@example.com"}),
	})
	t.Setenv("GOOGLE_OAUTH_TOKEN_URL", endpoint.srv.URL)

	app := newTestApp(t)
	sc, state := beginLogin(t, app, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/index.html", rec.Header().Get("Location"))
}

func TestSanitizeReturnPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "/index.html"},
		{"relative path kept", "/projects.html", "/projects.html"},
		{"nested path kept", "/app/board?tab=2", "/app/board?tab=2"},
		{"absolute url rejected", "https://evil.example.com/", "/index.html"},
		{"protocol relative rejected", "//evil.example.com", "/index.html"},
		{"backslash rejected", "/\\evil.example.com", "/index.html"},
		{"no leading slash rejected", "projects.html", "/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeReturnPath(tt.in))
		})
	}
}

func TestCallbackConsentDenied(t *testing.T) {
	app := newTestApp(t)
	sc, _ := beginLogin(t, app, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?error=access_denied", nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=oauth_denied", rec.Header().Get("Location"))

	userReq := httptest.NewRequest(http.MethodGet, "/user", nil)
	userReq.AddCookie(sc)
	body := decodeJSON(t, app.do(userReq))
	assert.Equal(t, false, body["loggedIn"])
}

func TestCallbackMissingCode(t *testing.T) {
	app := newTestApp(t)
	sc, _ := beginLogin(t, app, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback", nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=no_code", rec.Header().Get("Location"))
}

func TestCallbackForgedState(t *testing.T) {
	app := newTestApp(t)
	sc, _ := beginLogin(t, app, "")

	// Garbage state fails signature verification.
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code&state=not-a-token", nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=auth_failed", rec.Header().Get("Location"))

	// A validly signed state minted for another session must not pass.
	foreign, err := app.signer.Sign(authorizationState{Nonce: "n", SessionID: "someone-else"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code&state="+url.QueryEscape(foreign), nil)
	req.AddCookie(sc)
	rec = app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=auth_failed", rec.Header().Get("Location"))
}

func TestCallbackWithoutEmailClaim(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, map[string]any{
		"access_token": "access-1",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     fakeIDToken(t, map[string]any{"name": "No Email"}),
	})
	t.Setenv("GOOGLE_OAUTH_TOKEN_URL", endpoint.srv.URL)

	app := newTestApp(t)
	sc, state := beginLogin(t, app, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=email_extraction_failed", rec.Header().Get("Location"))

	userReq := httptest.NewRequest(http.MethodGet, "/user", nil)
	userReq.AddCookie(sc)
	body := decodeJSON(t, app.do(userReq))
	assert.Equal(t, false, body["loggedIn"])
}

func TestCallbackExchangeFailure(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, map[string]any{})
	endpoint.fail()
	t.Setenv("GOOGLE_OAUTH_TOKEN_URL", endpoint.srv.URL)

	app := newTestApp(t)
	sc, state := beginLogin(t, app, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=bad-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(sc)
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?error=auth_failed", rec.Header().Get("Location"))
}

func TestLogoutDestroysSession(t *testing.T) {
	app := newTestApp(t)
	s := app.authedSession(t, "manager@example.com", validToken())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(sessionCookie(s.ID))
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html", rec.Header().Get("Location"))

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout must clear the session cookie")

	// The old ID now resolves to a fresh, unauthenticated session.
	userReq := httptest.NewRequest(http.MethodGet, "/user", nil)
	userReq.AddCookie(sessionCookie(s.ID))
	body := decodeJSON(t, app.do(userReq))
	assert.Equal(t, false, body["loggedIn"])
}

func TestLogoutInvalidatesCSRFToken(t *testing.T) {
	app := newTestApp(t)
	s := app.authedSession(t, "manager@example.com", validToken())
	staleToken := s.CSRFToken()

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(sessionCookie(s.ID))
	rec := app.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	// A write with the pre-logout token must be rejected and must never
	// reach the Google API layer.
	req = httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"name":"Alpha"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookie(s.ID))
	req.Header.Set("X-CSRF-Token", staleToken)
	rec = app.do(req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_csrf_token", decodeJSON(t, rec)["error"])
	assert.Equal(t, 0, app.spy.calls())
}

func TestLogoutPostRequiresCSRFToken(t *testing.T) {
	app := newTestApp(t)
	s := app.authedSession(t, "manager@example.com", validToken())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(sessionCookie(s.ID))
	rec := app.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_csrf_token", decodeJSON(t, rec)["error"])

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(sessionCookie(s.ID))
	req.Header.Set("X-CSRF-Token", s.CSRFToken())
	rec = app.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["loggedIn"])
}

func TestUserWithoutSession(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/user", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["loggedIn"])
	assert.NotContains(t, body, "csrfToken")
}

func TestAuthEndpointsRateLimited(t *testing.T) {
	app := newTestApp(t)

	var limited bool
	for i := 0; i < 15; i++ {
		rec := app.do(httptest.NewRequest(http.MethodGet, "/user", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "rate_limited", decodeJSON(t, rec)["error"])
			break
		}
	}
	assert.True(t, limited, "burst above the limit must hit 429")
}
