package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/session"
)

// fakeGoogle is an in-memory stand-in for the Drive, Docs, Calendar, and
// Gmail REST APIs, good enough for the query shapes this package issues.
type fakeGoogle struct {
	t   *testing.T
	mu  sync.Mutex
	srv *httptest.Server

	nextID int
	files  map[string]*fakeFile
	grants []fakeGrant

	docsText map[string]string
	inserts  []fakeInsert

	calendars    map[string]string // id -> summary
	calendarList []string
	aclInserts   []string
	events       map[string][]map[string]any
	deletedCals  []string

	gmailMessages []fakeEmail

	requests    []string
	authHeaders []string
}

type fakeFile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
	Shared   bool     `json:"-"`
}

type fakeGrant struct {
	FileID string
	Email  string
	Role   string
}

type fakeInsert struct {
	DocID string
	Index int64
	Text  string
}

type fakeEmail struct {
	ID      string
	From    string
	Subject string
	Date    string
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{
		t:         t,
		files:     make(map[string]*fakeFile),
		docsText:  make(map[string]string),
		calendars: make(map[string]string),
		events:    make(map[string][]map[string]any),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// services builds gateway clients pointed at the fake.
func (f *fakeGoogle) services(t *testing.T) *gateway.Services {
	t.Helper()
	gw, err := gateway.New(context.Background(),
		&session.TokenSet{AccessToken: "test-access-token"},
		option.WithEndpoint(f.srv.URL+"/"))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	return gw
}

func (f *fakeGoogle) addFile(id, name, mimeType string, parents ...string) *fakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &fakeFile{ID: id, Name: name, MimeType: mimeType, Parents: parents}
	f.files[id] = file
	return file
}

func (f *fakeGoogle) newID() string {
	f.nextID++
	return fmt.Sprintf("f%d", f.nextID)
}

func (f *fakeGoogle) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "files" && r.Method == http.MethodGet:
		f.handleFilesList(w, r)
	case path == "files" && r.Method == http.MethodPost:
		f.handleFilesCreate(w, r)
	case path == "upload/drive/v3/files" && r.Method == http.MethodPost:
		f.handleFilesCreate(w, r)
	case strings.HasPrefix(path, "files/") && strings.HasSuffix(path, "/permissions"):
		f.handlePermissions(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "files/"), "/permissions"))
	case strings.HasPrefix(path, "files/") && r.Method == http.MethodGet:
		f.handleFilesGet(w, strings.TrimPrefix(path, "files/"))
	case strings.HasPrefix(path, "v1/documents/") && strings.HasSuffix(path, ":batchUpdate"):
		f.handleBatchUpdate(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "v1/documents/"), ":batchUpdate"))
	case strings.HasPrefix(path, "v1/documents/"):
		f.handleDocsGet(w, strings.TrimPrefix(path, "v1/documents/"))
	case path == "calendars" && r.Method == http.MethodPost:
		f.handleCalendarInsert(w, r)
	case path == "users/me/calendarList" && r.Method == http.MethodGet:
		f.handleCalendarList(w)
	case path == "users/me/calendarList" && r.Method == http.MethodPost:
		f.handleCalendarListInsert(w, r)
	case strings.HasPrefix(path, "calendars/") && strings.HasSuffix(path, "/acl"):
		f.handleAclInsert(w, strings.TrimSuffix(strings.TrimPrefix(path, "calendars/"), "/acl"))
	case strings.HasPrefix(path, "calendars/") && strings.HasSuffix(path, "/events"):
		f.handleEvents(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "calendars/"), "/events"))
	case strings.HasPrefix(path, "calendars/") && r.Method == http.MethodDelete:
		f.handleCalendarDelete(w, strings.TrimPrefix(path, "calendars/"))
	case path == "gmail/v1/users/me/messages":
		f.handleGmailList(w)
	case strings.HasPrefix(path, "gmail/v1/users/me/messages/"):
		f.handleGmailGet(w, strings.TrimPrefix(path, "gmail/v1/users/me/messages/"))
	default:
		http.Error(w, fmt.Sprintf(`{"error":{"code":404,"message":"no route %s"}}`, path), http.StatusNotFound)
	}
}

var (
	reNameEq   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	reNameHas  = regexp.MustCompile(`name contains '((?:[^'\\]|\\.)*)'`)
	reMimeEq   = regexp.MustCompile(`mimeType ?= ?'([^']*)'`)
	reInParent = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
)

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func (f *fakeGoogle) handleFilesList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []*fakeFile
	for _, file := range f.files {
		if m := reNameEq.FindStringSubmatch(q); m != nil && file.Name != unescape(m[1]) {
			continue
		}
		if m := reNameHas.FindStringSubmatch(q); m != nil && !strings.Contains(file.Name, unescape(m[1])) {
			continue
		}
		if m := reMimeEq.FindStringSubmatch(q); m != nil && file.MimeType != m[1] {
			continue
		}
		if m := reInParent.FindStringSubmatch(q); m != nil {
			parent := unescape(m[1])
			found := false
			for _, p := range file.Parents {
				if p == parent {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		if strings.Contains(q, "sharedWithMe") && !file.Shared {
			continue
		}
		matches = append(matches, file)
	}

	writeJSON(w, map[string]any{"files": matches})
}

func (f *fakeGoogle) handleFilesCreate(w http.ResponseWriter, r *http.Request) {
	var file fakeFile
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		// Media upload: metadata is the first part. The Drive client sends
		// multipart/related, which r.MultipartReader rejects, so parse the
		// boundary ourselves.
		_, params, err := mime.ParseMediaType(ct)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(part).Decode(&file); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	file.ID = f.newID()
	f.files[file.ID] = &file
	f.mu.Unlock()

	writeJSON(w, &file)
}

func (f *fakeGoogle) handleFilesGet(w http.ResponseWriter, id string) {
	f.mu.Lock()
	file, ok := f.files[id]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":{"code":404,"message":"file not found"}}`, http.StatusNotFound)
		return
	}
	writeJSON(w, file)
}

func (f *fakeGoogle) handlePermissions(w http.ResponseWriter, r *http.Request, fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost {
		var body struct {
			Role         string `json:"role"`
			EmailAddress string `json:"emailAddress"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.grants = append(f.grants, fakeGrant{FileID: fileID, Email: body.EmailAddress, Role: body.Role})
		writeJSON(w, map[string]any{"id": fmt.Sprintf("perm%d", len(f.grants))})
		return
	}

	var perms []map[string]any
	for _, g := range f.grants {
		if g.FileID == fileID {
			perms = append(perms, map[string]any{
				"type": "user", "role": g.Role, "emailAddress": g.Email,
			})
		}
	}
	writeJSON(w, map[string]any{"permissions": perms})
}

func (f *fakeGoogle) handleDocsGet(w http.ResponseWriter, docID string) {
	f.mu.Lock()
	text, ok := f.docsText[docID]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":{"code":404,"message":"document not found"}}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"documentId": docID,
		"body": map[string]any{
			"content": []map[string]any{{
				"endIndex": len(text) + 2,
				"paragraph": map[string]any{
					"elements": []map[string]any{{
						"textRun": map[string]any{"content": text},
					}},
				},
			}},
		},
	})
}

func (f *fakeGoogle) handleBatchUpdate(w http.ResponseWriter, r *http.Request, docID string) {
	var body struct {
		Requests []struct {
			InsertText *struct {
				Location struct {
					Index int64 `json:"index"`
				} `json:"location"`
				Text string `json:"text"`
			} `json:"insertText"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	for _, req := range body.Requests {
		if req.InsertText != nil {
			f.inserts = append(f.inserts, fakeInsert{
				DocID: docID,
				Index: req.InsertText.Location.Index,
				Text:  req.InsertText.Text,
			})
			f.docsText[docID] += req.InsertText.Text
		}
	}
	f.mu.Unlock()

	writeJSON(w, map[string]any{"documentId": docID})
}

func (f *fakeGoogle) handleCalendarInsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	id := fmt.Sprintf("cal%d@group.calendar.google.com", len(f.calendars)+1)
	f.calendars[id] = body.Summary
	f.mu.Unlock()

	writeJSON(w, map[string]any{"id": id, "summary": body.Summary})
}

func (f *fakeGoogle) handleCalendarList(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := []map[string]any{{"id": "primary-id", "summary": "Manager", "primary": true}}
	for id, summary := range f.calendars {
		items = append(items, map[string]any{"id": id, "summary": summary})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (f *fakeGoogle) handleCalendarListInsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calendarList = append(f.calendarList, body.ID)
	f.mu.Unlock()

	writeJSON(w, map[string]any{"id": body.ID})
}

func (f *fakeGoogle) handleAclInsert(w http.ResponseWriter, calID string) {
	f.mu.Lock()
	already := false
	for _, id := range f.aclInserts {
		if id == calID {
			already = true
		}
	}
	if !already {
		f.aclInserts = append(f.aclInserts, calID)
	}
	f.mu.Unlock()

	if already {
		http.Error(w, `{"error":{"code":409,"message":"already shared"}}`, http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"id": "acl1"})
}

func (f *fakeGoogle) handleEvents(w http.ResponseWriter, r *http.Request, calID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, known := f.calendars[calID]
	if !known && calID != "primary" && calID != "primary-id" {
		http.Error(w, `{"error":{"code":404,"message":"calendar not found"}}`, http.StatusNotFound)
		return
	}

	if r.Method == http.MethodPost {
		var event map[string]any
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		event["id"] = fmt.Sprintf("ev%d", len(f.events[calID])+1)
		event["htmlLink"] = "https://calendar.google.com/event?eid=" + event["id"].(string)
		f.events[calID] = append(f.events[calID], event)
		writeJSON(w, event)
		return
	}

	writeJSON(w, map[string]any{"items": f.events[calID]})
}

func (f *fakeGoogle) handleCalendarDelete(w http.ResponseWriter, calID string) {
	f.mu.Lock()
	delete(f.calendars, calID)
	f.deletedCals = append(f.deletedCals, calID)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGoogle) handleGmailList(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var msgs []map[string]any
	for _, m := range f.gmailMessages {
		msgs = append(msgs, map[string]any{"id": m.ID})
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

func (f *fakeGoogle) handleGmailGet(w http.ResponseWriter, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.gmailMessages {
		if m.ID == id {
			writeJSON(w, map[string]any{
				"id": m.ID,
				"payload": map[string]any{
					"headers": []map[string]string{
						{"name": "From", "value": m.From},
						{"name": "Subject", "value": m.Subject},
						{"name": "Date", "value": m.Date},
					},
				},
			})
			return
		}
	}
	http.Error(w, `{"error":{"code":404,"message":"message not found"}}`, http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// fileCount counts stored files matching a name.
func (f *fakeGoogle) fileCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, file := range f.files {
		if file.Name == name {
			n++
		}
	}
	return n
}
