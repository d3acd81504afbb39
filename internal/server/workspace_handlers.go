package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/googleauth"
	jsonwriter "github.com/crewdesk/crewdesk/internal/json"
	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/metrics"
	"github.com/crewdesk/crewdesk/internal/session"
	"github.com/crewdesk/crewdesk/internal/workspace"
)

// maxPhotoSize bounds photo uploads.
const maxPhotoSize = 10 << 20

// WorkspaceHandlers implements the project, worker, calendar, and inbox
// endpoints. A fresh workspace.Service is built per request from the
// session's current token.
type WorkspaceHandlers struct {
	store       session.Store
	oauthClient *googleauth.Client
	policy      authz.Policy
	newGateway  gateway.Factory
}

// NewWorkspaceHandlers creates the workspace endpoint handlers.
func NewWorkspaceHandlers(store session.Store, oauthClient *googleauth.Client, policy authz.Policy, newGateway gateway.Factory) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		store:       store,
		oauthClient: oauthClient,
		policy:      policy,
		newGateway:  newGateway,
	}
}

// serviceFor authorizes the request and builds a workspace service from the
// session's token, refreshing it first when it is about to expire. A failed
// refresh is swallowed here; if the token really is dead the gateway call
// fails with 401 and the client is told to log in again. Returns nil after
// writing the error response.
func (h *WorkspaceHandlers) serviceFor(w http.ResponseWriter, r *http.Request, requireManager bool) (*workspace.Service, *session.Session) {
	s := SessionFromContext(r.Context())

	var err error
	if requireManager {
		err = h.policy.RequireManager(s)
	} else {
		err = h.policy.RequireAuthenticated(s)
	}
	if err != nil {
		jsonwriter.WriteUnauthorized(w, "please log in")
		return nil, nil
	}

	tokens := s.CurrentToken()
	if refreshed, err := h.oauthClient.RefreshIfExpiring(r.Context(), s.ID, tokens); err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		log.LogWarn("Token refresh failed for session: %v", err)
	} else if refreshed != tokens {
		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		s.ReplaceToken(refreshed)
		if err := h.store.Save(r.Context(), s); err != nil {
			log.LogWarn("Failed to persist refreshed token: %v", err)
		}
		tokens = refreshed
	}

	gw, err := h.newGateway(r.Context(), tokens)
	if err != nil {
		log.LogError("Failed to build gateway clients: %v", err)
		jsonwriter.WriteInternalServerError(w, "failed to reach Google APIs")
		return nil, nil
	}
	return workspace.New(gw), s
}

// writeWorkspaceError maps service errors onto the uniform error contract.
func writeWorkspaceError(w http.ResponseWriter, err error) {
	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, workspace.ErrStructureMissing):
		jsonwriter.WriteBadRequest(w, err.Error())
	case errors.Is(err, workspace.ErrWorkerFolderNotFound):
		jsonwriter.WriteNotFound(w, err.Error())
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized:
		// Credentials rejected upstream; the session must re-login.
		jsonwriter.WriteUnauthorized(w, "please log in again")
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		jsonwriter.WriteNotFound(w, "resource not found")
	default:
		log.LogError("Workspace operation failed: %v", err)
		jsonwriter.WriteInternalServerError(w, "operation failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonwriter.WriteBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// CreateProjectHandler provisions a project workspace.
func (h *WorkspaceHandlers) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		jsonwriter.WriteBadRequest(w, "project name required")
		return
	}

	project, err := svc.Provision(r.Context(), strings.TrimSpace(body.Name))
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, project)
}

// ListProjectsHandler lists top-level project folders.
func (h *WorkspaceHandlers) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	folders, err := svc.ListProjects(r.Context())
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"folders": folders})
}

// ListFilesHandler lists the contents of a folder.
func (h *WorkspaceHandlers) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, false)
	if svc == nil {
		return
	}

	folderID := r.URL.Query().Get("folderId")
	if folderID == "" {
		jsonwriter.WriteBadRequest(w, "missing folderId")
		return
	}

	files, err := svc.ListFiles(r.Context(), folderID)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"files": files})
}

// AddFileHandler creates a document, spreadsheet, or folder in a project.
func (h *WorkspaceHandlers) AddFileHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		ProjectID string `json:"projectId"`
		FileType  string `json:"fileType"`
		FileName  string `json:"fileName"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ProjectID == "" || body.FileType == "" || body.FileName == "" {
		jsonwriter.WriteBadRequest(w, "missing projectId, fileType, or fileName")
		return
	}

	file, err := svc.AddFile(r.Context(), body.ProjectID, body.FileType, body.FileName)
	if err != nil {
		if strings.Contains(err.Error(), "invalid file type") {
			jsonwriter.WriteBadRequest(w, err.Error())
			return
		}
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true, "file": file})
}

// ShareWorkerHandler invites a worker into a project.
func (h *WorkspaceHandlers) ShareWorkerHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		ProjectID string `json:"projectId"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		Surname   string `json:"surname"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ProjectID == "" || body.Email == "" || body.FirstName == "" || body.Surname == "" {
		jsonwriter.WriteBadRequest(w, "missing projectId, email, firstName, or surname")
		return
	}

	result, err := svc.ShareWorker(r.Context(), body.ProjectID, body.Email, body.FirstName, body.Surname)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{
		"success":        true,
		"workerFolderId": result.WorkerFolderID,
		"logDocId":       result.LogDocID,
	})
}

// WorkerFoldersHandler lists worker folders accessible to the caller. The
// policy discovers the caller's scope; the service filters it down to worker
// folders with a log document.
func (h *WorkspaceHandlers) WorkerFoldersHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, false)
	if svc == nil {
		return
	}

	candidates, err := h.policy.WorkerFolders(r.Context(), svc.Gateway())
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	folders, err := svc.AccessibleWorkerFolders(r.Context(), candidates)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"folders": folders})
}

// PermissionsHandler reads the live ACL of a folder (or of a project's
// Workers folder when projectId is given instead).
func (h *WorkspaceHandlers) PermissionsHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var emails []string
	var err error
	switch {
	case r.URL.Query().Get("folderId") != "":
		emails, err = svc.FolderPermissions(r.Context(), r.URL.Query().Get("folderId"))
	case r.URL.Query().Get("projectId") != "":
		emails, err = svc.WorkerEmails(r.Context(), r.URL.Query().Get("projectId"))
	default:
		jsonwriter.WriteBadRequest(w, "missing folderId or projectId")
		return
	}
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"emails": emails})
}

// WorkerNoteHandler appends a note to a worker's log document.
func (h *WorkspaceHandlers) WorkerNoteHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, false)
	if svc == nil {
		return
	}

	var body struct {
		DocID string `json:"docId"`
		Body  string `json:"body"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.DocID == "" || body.Body == "" {
		jsonwriter.WriteBadRequest(w, "missing docId or body")
		return
	}

	if err := svc.AppendNote(r.Context(), body.DocID, body.Body); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true})
}

// ManagerNoteHandler appends to the manager's quick notes document.
func (h *WorkspaceHandlers) ManagerNoteHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		ProjectID string `json:"projectId"`
		Note      string `json:"note"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ProjectID == "" || body.Note == "" {
		jsonwriter.WriteBadRequest(w, "missing projectId or note")
		return
	}

	if err := svc.AppendManagerNote(r.Context(), body.ProjectID, body.Note); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true})
}

// RecentEntriesHandler returns the latest notes across a project's workers.
func (h *WorkspaceHandlers) RecentEntriesHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		jsonwriter.WriteBadRequest(w, "missing projectId")
		return
	}

	entries, err := svc.RecentEntries(r.Context(), projectID)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"entries": entries})
}

// PhotoUploadHandler stores an image in the calling worker's subfolder.
func (h *WorkspaceHandlers) PhotoUploadHandler(w http.ResponseWriter, r *http.Request) {
	svc, s := h.serviceFor(w, r, false)
	if svc == nil {
		return
	}

	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		jsonwriter.WriteBadRequest(w, "invalid multipart form")
		return
	}
	projectID := r.FormValue("projectId")
	if projectID == "" {
		jsonwriter.WriteBadRequest(w, "missing projectId")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		jsonwriter.WriteBadRequest(w, "no photo uploaded")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		jsonwriter.WriteBadRequest(w, "invalid or missing image file")
		return
	}

	email, _, _ := s.Identity()
	if err := svc.UploadPhoto(r.Context(), projectID, email, header.Filename, mimeType, file); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true})
}

// InboxHandler returns recent Gmail inbox metadata.
func (h *WorkspaceHandlers) InboxHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	emails, err := svc.InboxEmails(r.Context(), 10)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"emails": emails})
}

// parseEventTime accepts RFC3339 or a bare date.
func parseEventTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// EventsHandler lists calendar events for a range.
func (h *WorkspaceHandlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, false)
	if svc == nil {
		return
	}

	query := r.URL.Query()
	start, err := parseEventTime(query.Get("start"))
	if err != nil {
		jsonwriter.WriteBadRequest(w, "missing or invalid start")
		return
	}
	end, err := parseEventTime(query.Get("end"))
	if err != nil {
		jsonwriter.WriteBadRequest(w, "missing or invalid end")
		return
	}

	events, fallback, err := svc.Events(r.Context(), start, end, query.Get("projectName"), query.Get("calendarId"))
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}

	resp := map[string]any{"events": events}
	if fallback {
		resp["fallback"] = true
		resp["message"] = "Project calendar not found, showing primary calendar."
	}
	jsonwriter.Write(w, resp)
}

// AddEventHandler inserts a calendar event.
func (h *WorkspaceHandlers) AddEventHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Start       string `json:"start"`
		End         string `json:"end"`
		Location    string `json:"location"`
		Notify      bool   `json:"notify"`
		ProjectName string `json:"projectName"`
		CalendarID  string `json:"calendarId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Title == "" || body.Start == "" || body.End == "" {
		jsonwriter.WriteBadRequest(w, "missing required fields: title, start, end")
		return
	}
	start, err := parseEventTime(body.Start)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid start time")
		return
	}
	end, err := parseEventTime(body.End)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid end time")
		return
	}

	event, err := svc.AddEvent(r.Context(), workspace.EventInput{
		Title:       body.Title,
		Description: body.Description,
		Start:       start,
		End:         end,
		Location:    body.Location,
		Notify:      body.Notify,
		ProjectName: body.ProjectName,
		CalendarID:  body.CalendarID,
	})
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true, "eventId": event.ID, "htmlLink": event.HTMLLink})
}

// CalendarListHandler lists the user's calendars.
func (h *WorkspaceHandlers) CalendarListHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	calendars, err := svc.Calendars(r.Context())
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"items": calendars})
}

// DeleteCalendarHandler removes a calendar.
func (h *WorkspaceHandlers) DeleteCalendarHandler(w http.ResponseWriter, r *http.Request) {
	svc, _ := h.serviceFor(w, r, true)
	if svc == nil {
		return
	}

	var body struct {
		CalendarID string `json:"calendarId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.CalendarID == "" {
		jsonwriter.WriteBadRequest(w, "missing calendarId")
		return
	}

	if err := svc.DeleteCalendar(r.Context(), body.CalendarID); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true})
}
