package server

import (
	"context"
	"net/http"

	"github.com/crewdesk/crewdesk/internal/cookie"
	jsonwriter "github.com/crewdesk/crewdesk/internal/json"
	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext returns the session attached by the session middleware,
// or nil when the middleware did not run.
func SessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionContextKey).(*session.Session)
	return s
}

// withSession is used by tests to inject a session without the middleware.
func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// NewSessionMiddleware resolves the session cookie to a server-side session,
// creating one (and setting the cookie) when the browser has none. The
// cookie carries only the opaque ID; all state stays server-side.
func NewSessionMiddleware(store session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := cookie.GetSession(r)

			s, created, err := store.GetOrCreate(r.Context(), id)
			if err != nil {
				log.LogError("Failed to resolve session: %v", err)
				jsonwriter.WriteInternalServerError(w, "session store unavailable")
				return
			}
			if created {
				cookie.SetSession(w, s.ID, 0)
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
		})
	}
}
