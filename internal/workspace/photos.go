package workspace

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/crewdesk/crewdesk/internal/emailutil"
	"github.com/crewdesk/crewdesk/internal/gateway"
)

// UploadPhoto stores an image in the worker's own subfolder of a project.
// The subfolder is located by matching the local part of the worker's email
// against the subfolder names.
func (s *Service) UploadPhoto(ctx context.Context, projectID, workerEmail, filename, mimeType string, content io.Reader) error {
	workers, err := s.workersFolder(ctx, projectID)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(workers.Id), gateway.MimeFolder)
	subfolders, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to list worker subfolders: %w", err)
	}

	localPart := emailutil.LocalPart(workerEmail)
	var target *drive.File
	for _, f := range subfolders.Files {
		if strings.Contains(f.Name, localPart) {
			target = f
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no subfolder for %s: %w", workerEmail, ErrWorkerFolderNotFound)
	}

	_, err = s.gw.Drive.Files.Create(&drive.File{
		Name:    filename,
		Parents: []string{target.Id},
	}).Media(content, googleapi.ContentType(mimeType)).
		Fields("id, name").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload photo: %w", err)
	}
	return nil
}
