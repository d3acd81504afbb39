package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/metrics"
	"github.com/crewdesk/crewdesk/internal/session"
)

// NewRouter assembles the full HTTP surface. Middleware order matters: the
// session must be resolved before the CSRF guard, and the CSRF guard runs
// before any API handler.
func NewRouter(
	cfg config.Config,
	store session.Store,
	auth *AuthHandlers,
	ws *WorkspaceHandlers,
	aiHandlers *AIHandlers,
) http.Handler {
	r := chi.NewRouter()

	r.Use(NewRecoverMiddleware("server"))
	r.Use(NewMetricsMiddleware())
	r.Use(NewLoggerMiddleware("server"))
	r.Use(NewCORSMiddleware(cfg.AllowedOrigins))

	r.Method(http.MethodGet, "/healthz", NewHealthHandler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Auth endpoints: session-attached and rate-limited, no CSRF (all
	// reachable via top-level navigation; logout is guarded below).
	r.Group(func(r chi.Router) {
		r.Use(NewRateLimitMiddleware(5, 10))
		r.Use(NewSessionMiddleware(store))

		r.Get("/login", auth.LoginHandler)
		r.Get("/oauth2callback", auth.CallbackHandler)
		r.Get("/logout", auth.LogoutHandler)
		r.Get("/user", auth.UserHandler)
	})

	// Application endpoints: session plus CSRF double-submit on every
	// state-changing method.
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(store))
		r.Use(NewCSRFMiddleware())

		r.Post("/logout", auth.LogoutHandler)

		r.Route("/api", func(r chi.Router) {
			r.Post("/projects", ws.CreateProjectHandler)
			r.Get("/projects", ws.ListProjectsHandler)
			r.Get("/projects/files", ws.ListFilesHandler)
			r.Post("/projects/files", ws.AddFileHandler)
			r.Get("/projects/entries", ws.RecentEntriesHandler)

			r.Post("/workers/share", ws.ShareWorkerHandler)
			r.Get("/workers/folders", ws.WorkerFoldersHandler)
			r.Get("/workers/permissions", ws.PermissionsHandler)
			r.Post("/workers/notes", ws.WorkerNoteHandler)
			r.Post("/workers/photos", ws.PhotoUploadHandler)

			r.Post("/manager/notes", ws.ManagerNoteHandler)
			r.Get("/manager/inbox", ws.InboxHandler)

			r.Get("/calendar/events", ws.EventsHandler)
			r.Post("/calendar/events", ws.AddEventHandler)
			r.Get("/calendar/list", ws.CalendarListHandler)
			r.Post("/calendar/delete", ws.DeleteCalendarHandler)

			r.Post("/ask", aiHandlers.AskHandler)
			r.Post("/ask/index", aiHandlers.IndexHandler)
		})
	})

	return r
}
