package workspace

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"

	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/log"
)

// ShareResult reports what ShareWorker created.
type ShareResult struct {
	WorkerFolderID string `json:"workerFolderId"`
	LogDocID       string `json:"logDocId"`
}

// WorkerFolder is a worker-accessible folder with its log document.
type WorkerFolder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectName string `json:"projectName"`
	LogDocID    string `json:"logDocId,omitempty"`
}

// ShareWorker creates the worker's subfolder and log document under the
// project's Workers folder and grants the worker writer access to all three.
// Permission grants are idempotent on Google's side; re-granting an existing
// permission is harmless.
func (s *Service) ShareWorker(ctx context.Context, projectID, email, firstName, surname string) (*ShareResult, error) {
	workers, err := s.workersFolder(ctx, projectID)
	if err != nil {
		return nil, err
	}

	projectName := s.projectName(ctx, projectID)
	fullName := strings.TrimSpace(firstName + " " + surname)

	subfolder, err := s.ensure(ctx, projectName+"-"+fullName, gateway.MimeFolder, workers.Id)
	if err != nil {
		return nil, err
	}
	logDoc, err := s.ensure(ctx, projectName+" "+fullName+" log", gateway.MimeDocument, subfolder.Id)
	if err != nil {
		return nil, err
	}

	for _, fileID := range []string{workers.Id, subfolder.Id, logDoc.Id} {
		if err := s.grantWriter(ctx, fileID, email); err != nil {
			return nil, err
		}
	}

	log.LogInfoWithFields("workspace", "Shared worker folder", map[string]any{
		"project":  projectName,
		"worker":   email,
		"folderId": subfolder.Id,
	})
	return &ShareResult{WorkerFolderID: subfolder.Id, LogDocID: logDoc.Id}, nil
}

func (s *Service) grantWriter(ctx context.Context, fileID, email string) error {
	_, err := s.gw.Drive.Permissions.Create(fileID, &drive.Permission{
		Type:         "user",
		Role:         "writer",
		EmailAddress: email,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to share %s with %s: %w", fileID, email, err)
	}
	return nil
}

// WorkerEmails reads the live ACL of a project's Workers folder and returns
// the writer user emails. This is the only place worker membership exists;
// there is no local copy to drift.
func (s *Service) WorkerEmails(ctx context.Context, projectID string) ([]string, error) {
	workers, err := s.workersFolder(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.FolderPermissions(ctx, workers.Id)
}

// FolderPermissions lists the writer user emails on a folder.
func (s *Service) FolderPermissions(ctx context.Context, folderID string) ([]string, error) {
	perms, err := s.gw.Drive.Permissions.List(folderID).
		Fields("permissions(emailAddress, role, type)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	emails := []string{}
	for _, p := range perms.Permissions {
		if p.Type == "user" && p.Role == "writer" && p.EmailAddress != "" {
			emails = append(emails, p.EmailAddress)
		}
	}
	return emails, nil
}

// AccessibleWorkerFolders filters the shared folders the authorization
// policy discovered down to worker subfolders containing a log document. The
// project name is recovered by walking up the parents past the Docs and
// Workers levels.
func (s *Service) AccessibleWorkerFolders(ctx context.Context, candidates []*drive.File) ([]WorkerFolder, error) {
	seen := make(map[string]bool)
	folders := []WorkerFolder{}
	for _, f := range candidates {
		// Worker subfolders are named "<project>-<name>"; the shared
		// Workers parent itself has no hyphenated suffix.
		if !strings.Contains(f.Name, "-") || seen[f.Id] {
			continue
		}

		logDoc, err := s.findLogDoc(ctx, f.Id)
		if err != nil {
			return nil, err
		}
		if logDoc == nil {
			continue
		}

		wf := WorkerFolder{
			ID:          f.Id,
			Name:        f.Name,
			ProjectName: f.Name,
			LogDocID:    logDoc.Id,
		}
		if name := s.findProjectNameAbove(ctx, f.Parents); name != "" {
			wf.ProjectName = name
		}
		seen[f.Id] = true
		folders = append(folders, wf)
	}
	return folders, nil
}

// findLogDoc finds the log document inside a worker subfolder, nil when the
// folder has none.
func (s *Service) findLogDoc(ctx context.Context, folderID string) (*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and name contains 'log' and trashed = false",
		escapeQuery(folderID), gateway.MimeDocument)
	list, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to find log document: %w", err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

// findProjectNameAbove walks up the parent chain (at most three levels,
// subfolder -> Workers -> Docs -> project) looking for the project folder.
func (s *Service) findProjectNameAbove(ctx context.Context, parents []string) string {
	if len(parents) == 0 {
		return ""
	}
	current := parents[0]
	for i := 0; i < 3 && current != ""; i++ {
		f, err := s.gw.Drive.Files.Get(current).Fields("id, name, parents").Context(ctx).Do()
		if err != nil {
			return ""
		}
		if f.Name != "" && !strings.Contains(f.Name, "Docs") && !strings.Contains(f.Name, "Workers") {
			return f.Name
		}
		current = ""
		if len(f.Parents) > 0 {
			current = f.Parents[0]
		}
	}
	return ""
}
