package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/internal/cookie"
	"github.com/crewdesk/crewdesk/internal/crypto"
	"github.com/crewdesk/crewdesk/internal/googleauth"
	jsonwriter "github.com/crewdesk/crewdesk/internal/json"
	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/metrics"
	"github.com/crewdesk/crewdesk/internal/session"
)

const (
	loginPage       = "/login.html"
	defaultReturnTo = "/index.html"

	// exchangeTimeout bounds the code exchange with the token endpoint.
	exchangeTimeout = 30 * time.Second
)

// Callback error codes surfaced to the login page as ?error=<code>. This
// enum is part of the frontend contract.
const (
	errOAuthDenied     = "oauth_denied"
	errNoCode          = "no_code"
	errEmailExtraction = "email_extraction_failed"
	errAuthFailed      = "auth_failed"
)

// authorizationState is the signed payload carried through the OAuth state
// parameter. Binding the session ID prevents a callback from attaching
// tokens to someone else's session.
type authorizationState struct {
	Nonce     string `json:"nonce"`
	SessionID string `json:"session_id"`
}

// AuthHandlers implements the login, callback, logout, and whoami endpoints.
type AuthHandlers struct {
	store       session.Store
	oauthClient *googleauth.Client
	stateSigner *crypto.TokenSigner
}

// NewAuthHandlers creates the auth endpoint handlers.
func NewAuthHandlers(store session.Store, oauthClient *googleauth.Client, stateSigner *crypto.TokenSigner) *AuthHandlers {
	return &AuthHandlers{
		store:       store,
		oauthClient: oauthClient,
		stateSigner: stateSigner,
	}
}

// sanitizeReturnPath accepts only same-site relative paths. Anything else
// falls back to the default landing page.
func sanitizeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return defaultReturnTo
	}
	return p
}

// LoginHandler stores the post-login return path and redirects the browser
// to the provider's consent page.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())

	s.SetReturnPath(sanitizeReturnPath(r.URL.Query().Get("redirect")))
	if err := h.store.Save(r.Context(), s); err != nil {
		log.LogError("Failed to persist session before login: %v", err)
		jsonwriter.WriteInternalServerError(w, "session store unavailable")
		return
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogError("Failed to generate state nonce: %v", err)
		jsonwriter.WriteInternalServerError(w, "failed to generate authentication state")
		return
	}
	state, err := h.stateSigner.Sign(authorizationState{Nonce: nonce, SessionID: s.ID})
	if err != nil {
		log.LogError("Failed to sign state: %v", err)
		jsonwriter.WriteInternalServerError(w, "failed to generate authentication state")
		return
	}

	http.Redirect(w, r, h.oauthClient.AuthURL(state), http.StatusFound)
}

// CallbackHandler completes the authorization code flow. Every failure mode
// redirects back to the login page with a stable error code; the session is
// only mutated on full success.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	query := r.URL.Query()

	fail := func(code string) {
		metrics.Logins.WithLabelValues(code).Inc()
		http.Redirect(w, r, loginPage+"?error="+code, http.StatusFound)
	}

	if errParam := query.Get("error"); errParam != "" {
		log.LogInfoWithFields("auth", "Login denied at consent", map[string]any{"error": errParam})
		fail(errOAuthDenied)
		return
	}

	code := query.Get("code")
	if code == "" {
		fail(errNoCode)
		return
	}

	var state authorizationState
	if err := h.stateSigner.Verify(query.Get("state"), &state); err != nil || state.SessionID != s.ID {
		log.LogWarn("State verification failed: %v", err)
		fail(errAuthFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	tokens, err := h.oauthClient.Exchange(ctx, code)
	if err != nil {
		log.LogError("Code exchange failed: %v", err)
		fail(errAuthFailed)
		return
	}

	ident, err := h.oauthClient.DecodeIdentity(tokens)
	if err != nil {
		log.LogError("Identity extraction failed: %v", err)
		fail(errEmailExtraction)
		return
	}

	s.AttachAuthentication(tokens, ident.Email, ident.Name, ident.Picture)

	// The id_token usually carries name and picture; fill gaps from the
	// userinfo endpoint but never fail the login over it.
	if ident.Name == "" || ident.Picture == "" {
		if profile, err := h.oauthClient.FetchProfile(ctx, tokens); err != nil {
			log.LogDebug("Profile fetch failed: %v", err)
		} else {
			s.UpdateProfile(profile.Name, profile.Picture)
		}
	}

	returnPath := s.ConsumeReturnPath()
	if returnPath == "" {
		returnPath = defaultReturnTo
	}

	if err := h.store.Save(r.Context(), s); err != nil {
		log.LogError("Failed to persist session after login: %v", err)
		jsonwriter.WriteInternalServerError(w, "session store unavailable")
		return
	}

	metrics.Logins.WithLabelValues("success").Inc()
	log.LogInfoWithFields("auth", "Login completed", map[string]any{"email": ident.Email})
	http.Redirect(w, r, returnPath, http.StatusFound)
}

// LogoutHandler destroys the session and clears the cookie. Dual mode: a GET
// (link navigation) redirects to the login page, a POST or JSON request gets
// a JSON body.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s != nil {
		if err := h.store.Destroy(r.Context(), s.ID); err != nil {
			log.LogError("Failed to destroy session: %v", err)
		}
	}
	cookie.ClearSession(w)

	wantsJSON := r.Method == http.MethodPost ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
	if wantsJSON {
		jsonwriter.Write(w, map[string]any{"loggedIn": false})
		return
	}
	http.Redirect(w, r, loginPage, http.StatusFound)
}

// userResponse is the whoami payload. The CSRF token is disclosed here and
// nowhere else.
type userResponse struct {
	LoggedIn  bool   `json:"loggedIn"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
}

// UserHandler reports the session's identity. Idempotent; calling it never
// changes session state.
func (h *AuthHandlers) UserHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s == nil || !s.IsAuthenticated() {
		jsonwriter.Write(w, userResponse{LoggedIn: false})
		return
	}

	email, name, picture := s.Identity()
	jsonwriter.Write(w, userResponse{
		LoggedIn:  true,
		Email:     email,
		Name:      name,
		Picture:   picture,
		CSRFToken: s.CSRFToken(),
	})
}
