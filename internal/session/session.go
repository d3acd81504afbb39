// Package session holds server-side, per-browser session state: the
// authentication flag, the OAuth token set, the derived identity, and the
// per-session CSRF secret. Sessions are keyed by an opaque server-generated
// ID carried in a cookie; tokens never leave the process.
package session

import (
	"sync"
	"time"

	"github.com/crewdesk/crewdesk/internal/crypto"
	"github.com/crewdesk/crewdesk/internal/log"
)

// expirySkew treats tokens about to expire as already expired so that a
// refresh happens before the remote call, not after it fails.
const expirySkew = 30 * time.Second

// TokenSet is the OAuth token material owned exclusively by one Session.
type TokenSet struct {
	AccessToken  string    `json:"access_token" firestore:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" firestore:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty" firestore:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry" firestore:"expiry"`
}

// Expired reports whether the access token is expired or about to expire.
// A zero expiry means the provider did not report one and the token is
// treated as valid.
func (ts *TokenSet) Expired() bool {
	if ts == nil {
		return true
	}
	if ts.Expiry.IsZero() {
		return false
	}
	return time.Now().After(ts.Expiry.Add(-expirySkew))
}

// Session is the state for one authenticated browser context. All state
// transitions go through methods that hold the session mutex, so a logout
// racing a login cannot leave the session half-populated.
type Session struct {
	mu sync.Mutex

	ID            string    `json:"id" firestore:"id"`
	Authenticated bool      `json:"authenticated" firestore:"authenticated"`
	Token         *TokenSet `json:"token,omitempty" firestore:"token,omitempty"`
	Email         string    `json:"email,omitempty" firestore:"email,omitempty"`
	Name          string    `json:"name,omitempty" firestore:"name,omitempty"`
	Picture       string    `json:"picture,omitempty" firestore:"picture,omitempty"`
	CSRFSecret    string    `json:"csrf_secret" firestore:"csrf_secret"`
	ReturnPath    string    `json:"return_path,omitempty" firestore:"return_path,omitempty"`
	CreatedAt     time.Time `json:"created_at" firestore:"created_at"`
	LastSeen      time.Time `json:"last_seen" firestore:"last_seen"`
}

func newSession(id string) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		LastSeen:  now,
	}
	s.rotateCSRFSecret()
	return s
}

// rotateCSRFSecret replaces the CSRF secret. Called once at creation and
// again on every authentication change so a stale anti-forgery token cannot
// survive a session transition.
func (s *Session) rotateCSRFSecret() {
	secret, err := crypto.GenerateSecureToken()
	if err != nil {
		// crypto/rand failing means the process is in no state to serve
		// authenticated traffic at all.
		log.LogError("Failed to generate CSRF secret: %v", err)
		panic(err)
	}
	s.CSRFSecret = secret
}

// AttachAuthentication transitions the session to authenticated, atomically
// with respect to other transitions on the same session. The email is the
// join key for authorization decisions and is never overwritten once set.
func (s *Session) AttachAuthentication(ts *TokenSet, email, name, picture string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Authenticated = true
	s.Token = ts
	if s.Email == "" {
		s.Email = email
	}
	if name != "" {
		s.Name = name
	}
	if picture != "" {
		s.Picture = picture
	}
	s.rotateCSRFSecret()
	s.LastSeen = time.Now()
}

// UpdateProfile records best-effort profile fields fetched after login.
func (s *Session) UpdateProfile(name, picture string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.Name = name
	}
	if picture != "" {
		s.Picture = picture
	}
}

// ReplaceToken swaps in a refreshed token set. No-op if the session was
// logged out in the meantime.
func (s *Session) ReplaceToken(ts *TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Authenticated {
		return
	}
	s.Token = ts
}

// CurrentToken returns the session's token set, or nil if unauthenticated.
func (s *Session) CurrentToken() *TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Authenticated {
		return nil
	}
	return s.Token
}

// IsAuthenticated reports whether the session holds live credentials.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Authenticated && s.Token != nil
}

// Clear wipes all credential state. The session object itself is removed
// from the store by Destroy; Clear exists so a racing request holding the
// pointer observes a logged-out session, not stale tokens.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Authenticated = false
	s.Token = nil
	s.Email = ""
	s.Name = ""
	s.Picture = ""
	s.ReturnPath = ""
	s.rotateCSRFSecret()
}

// CSRFToken returns the current CSRF secret.
func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CSRFSecret
}

// Identity returns the session's email, name, and picture.
func (s *Session) Identity() (email, name, picture string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Email, s.Name, s.Picture
}

// SetReturnPath stores the post-login redirect target.
func (s *Session) SetReturnPath(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReturnPath = p
}

// ConsumeReturnPath returns the stored redirect target and clears it, so a
// second callback cannot replay a stale path.
func (s *Session) ConsumeReturnPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ReturnPath
	s.ReturnPath = ""
	return p
}

// Touch slides the session expiry window.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSeen = time.Now()
}

// Snapshot returns a copy safe to persist without holding the mutex during
// the store round trip.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := Session{
		ID:            s.ID,
		Authenticated: s.Authenticated,
		Email:         s.Email,
		Name:          s.Name,
		Picture:       s.Picture,
		CSRFSecret:    s.CSRFSecret,
		ReturnPath:    s.ReturnPath,
		CreatedAt:     s.CreatedAt,
		LastSeen:      s.LastSeen,
	}
	if s.Token != nil {
		t := *s.Token
		copied.Token = &t
	}
	return copied
}
