package workspace

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/docs/v1"

	"github.com/crewdesk/crewdesk/internal/gateway"
)

// noteTimestamp formats the header line prepended to every appended note.
func noteTimestamp(t time.Time) string {
	return t.Format("02/01/2006, 15:04")
}

// AppendNote appends a timestamped note to the end of a document.
func (s *Service) AppendNote(ctx context.Context, docID, body string) error {
	doc, err := s.gw.Docs.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	// Insert just before the trailing newline of the last element.
	endIndex := int64(1)
	if doc.Body != nil && len(doc.Body.Content) > 0 {
		last := doc.Body.Content[len(doc.Body.Content)-1]
		if last.EndIndex > 1 {
			endIndex = last.EndIndex - 1
		}
	}

	noteText := noteTimestamp(time.Now()) + "\n" + body + "\n\n"
	_, err = s.gw.Docs.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: endIndex},
				Text:     noteText,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	return nil
}

// AppendManagerNote appends to the manager's "My Quick Notes" document of a
// project.
func (s *Service) AppendManagerNote(ctx context.Context, projectID, note string) error {
	docsFolder, err := s.findChildFolder(ctx, projectID, "Docs")
	if err != nil {
		return err
	}
	personal, err := s.findByName(ctx, "My Docs", gateway.MimeFolder, docsFolder.Id)
	if err != nil {
		return err
	}
	if personal == nil {
		return fmt.Errorf("no My Docs folder in project: %w", ErrStructureMissing)
	}
	quickNotes, err := s.findByName(ctx, "My Quick Notes", gateway.MimeDocument, personal.Id)
	if err != nil {
		return err
	}
	if quickNotes == nil {
		return fmt.Errorf("no My Quick Notes document in project: %w", ErrStructureMissing)
	}
	return s.AppendNote(ctx, quickNotes.Id, note)
}

// Entry is a recent note from a worker's log document.
type Entry struct {
	Worker string `json:"worker"`
	Note   string `json:"note"`
}

var noteSeparator = regexp.MustCompile(`\n\n+`)

// RecentEntries collects the last two notes from every worker log document
// in a project, most recent first.
func (s *Service) RecentEntries(ctx context.Context, projectID string) ([]Entry, error) {
	workers, err := s.workersFolder(ctx, projectID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(workers.Id), gateway.MimeFolder)
	subfolders, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list worker subfolders: %w", err)
	}

	entries := []Entry{}
	for _, folder := range subfolders.Files {
		logDoc, err := s.findLogDoc(ctx, folder.Id)
		if err != nil {
			return nil, err
		}
		if logDoc == nil {
			continue
		}

		doc, err := s.gw.Docs.Documents.Get(logDoc.Id).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to read log document: %w", err)
		}

		notes := splitNotes(documentText(doc))
		if len(notes) > 2 {
			notes = notes[len(notes)-2:]
		}
		for _, note := range notes {
			entries = append(entries, Entry{Worker: folder.Name, Note: note})
		}
	}

	// Newest logs come last from the listing; reverse for recency.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// documentText flattens a document body to plain text.
func documentText(doc *docs.Document) string {
	if doc.Body == nil {
		return ""
	}
	var b strings.Builder
	for _, elem := range doc.Body.Content {
		if elem.Paragraph == nil {
			continue
		}
		for _, pe := range elem.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String()
}

// splitNotes breaks document text into notes on blank-line boundaries.
func splitNotes(text string) []string {
	parts := noteSeparator.Split(text, -1)
	notes := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			notes = append(notes, p)
		}
	}
	return notes
}
