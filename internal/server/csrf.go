package server

import (
	"net/http"

	jsonwriter "github.com/crewdesk/crewdesk/internal/json"
	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/metrics"
)

// csrfHeader is the double-submit header checked on every state-changing
// request. Its value is disclosed to the frontend only by GET /user.
const csrfHeader = "X-CSRF-Token"

// NewCSRFMiddleware rejects non-safe requests whose header does not match
// the session's CSRF secret. Runs after the session middleware and before
// any handler, so a forged request never reaches application code. The
// secret is random per session, so plain string comparison is sufficient.
func NewCSRFMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			s := SessionFromContext(r.Context())
			if s == nil || r.Header.Get(csrfHeader) != s.CSRFToken() {
				metrics.CSRFRejections.Inc()
				log.LogWarnWithFields("csrf", "Rejected request with invalid CSRF token", map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				jsonwriter.WriteError(w, http.StatusForbidden, "invalid_csrf_token", "missing or invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
