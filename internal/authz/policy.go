// Package authz decides what an authenticated identity may do. Roles are not
// stored anywhere: a manager is whoever owns project folders in their own
// Drive, and a worker's scope is whatever has been shared with them. Every
// decision reads the live ACLs through the caller's own credentials.
package authz

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/drive/v3"

	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/session"
)

// ErrUnauthenticated means the request has no live credentials behind it.
var ErrUnauthenticated = errors.New("unauthenticated")

// Policy gates access to manager and worker operations.
type Policy interface {
	// RequireAuthenticated rejects sessions without live credentials.
	RequireAuthenticated(s *session.Session) error

	// RequireManager rejects sessions that cannot act as a manager. Manager
	// operations run against the caller's own Drive, so authentication is
	// the gate; the vendor ACLs enforce the rest.
	RequireManager(s *session.Session) error

	// WorkerFolders lists the worker folders the identity can reach,
	// discovered from what has been shared with it.
	WorkerFolders(ctx context.Context, gw *gateway.Services) ([]*drive.File, error)
}

// DrivePolicy is the production Policy backed by Drive ACLs.
type DrivePolicy struct{}

// NewDrivePolicy returns the ACL-backed policy.
func NewDrivePolicy() *DrivePolicy {
	return &DrivePolicy{}
}

func (p *DrivePolicy) RequireAuthenticated(s *session.Session) error {
	if s == nil || !s.IsAuthenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func (p *DrivePolicy) RequireManager(s *session.Session) error {
	return p.RequireAuthenticated(s)
}

// WorkerFolders queries shared-with-me folders. The caller filters further
// (e.g. to folders containing a log document); this is the scope boundary.
func (p *DrivePolicy) WorkerFolders(ctx context.Context, gw *gateway.Services) ([]*drive.File, error) {
	query := fmt.Sprintf("sharedWithMe and mimeType = '%s' and trashed = false", gateway.MimeFolder)
	list, err := gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name, parents)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list shared folders: %w", err)
	}
	return list.Files, nil
}
