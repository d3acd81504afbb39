// Package workspace implements the project workspace operations on top of
// the remote gateway: provisioning the folder tree, sharing worker folders,
// appending notes, photos, calendars, and the manager inbox.
//
// Every operation is non-transactional and at-least-once. Creates are
// find-by-name-first (ensure semantics), so retrying a partially failed
// operation converges instead of duplicating.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"

	"github.com/crewdesk/crewdesk/internal/gateway"
)

var (
	// ErrStructureMissing means an expected folder or document of the
	// project tree does not exist. Usually the project was never
	// provisioned, or the caller passed the wrong folder ID.
	ErrStructureMissing = errors.New("project structure missing")

	// ErrWorkerFolderNotFound means no subfolder matches the worker.
	ErrWorkerFolderNotFound = errors.New("worker folder not found")
)

// Service executes workspace operations with one session's gateway clients.
// Construct a fresh Service per request; it carries no state of its own.
type Service struct {
	gw *gateway.Services
}

// New wraps the gateway clients for one request.
func New(gw *gateway.Services) *Service {
	return &Service{gw: gw}
}

// Gateway exposes the underlying clients so authorization checks can run
// against the same request credentials.
func (s *Service) Gateway() *gateway.Services {
	return s.gw
}

// FileRef is a created or found file.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File is a listed file with its kind and editor link.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Kind     string `json:"kind"`
	URL      string `json:"url"`
}

// escapeQuery escapes a value for interpolation into a Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// findByName returns the first non-trashed file with the exact name and MIME
// type under parentID, or nil when none exists.
func (s *Service) findByName(ctx context.Context, name, mimeType, parentID string) (*drive.File, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), mimeType, escapeQuery(parentID))
	list, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

// ensure returns the named file under parentID, creating it when absent.
func (s *Service) ensure(ctx context.Context, name, mimeType, parentID string) (*drive.File, error) {
	existing, err := s.findByName(ctx, name, mimeType, parentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	file, err := s.gw.Drive.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Fields("id, name").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create %q: %w", name, err)
	}
	return file, nil
}

// findChildFolder finds a folder under parentID whose name contains the
// fragment. The provisioned tree uses "<project> Docs" and "<project>
// Workers" names, so a contains match locates them without knowing the
// project name.
func (s *Service) findChildFolder(ctx context.Context, parentID, nameFragment string) (*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and name contains '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(parentID), escapeQuery(nameFragment), gateway.MimeFolder)
	list, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to find %s folder: %w", nameFragment, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("no %s folder under %s: %w", nameFragment, parentID, ErrStructureMissing)
	}
	return list.Files[0], nil
}

// workersFolder resolves the "<project> Workers" folder of a project.
func (s *Service) workersFolder(ctx context.Context, projectID string) (*drive.File, error) {
	docsFolder, err := s.findChildFolder(ctx, projectID, "Docs")
	if err != nil {
		return nil, err
	}
	return s.findChildFolder(ctx, docsFolder.Id, "Workers")
}

// projectName reads the project folder's name, empty on failure. Names are
// cosmetic in the paths that use this; the IDs carry the structure.
func (s *Service) projectName(ctx context.Context, projectID string) string {
	f, err := s.gw.Drive.Files.Get(projectID).Fields("name").Context(ctx).Do()
	if err != nil {
		return ""
	}
	return f.Name
}
