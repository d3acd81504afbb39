package workspace

import (
	"context"
	"fmt"

	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/log"
)

// Project is the result of provisioning a workspace.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CalendarID string `json:"calendarId,omitempty"`
	Subfolders struct {
		Sheets       FileRef `json:"sheets"`
		Docs         FileRef `json:"docs"`
		Workers      FileRef `json:"workers"`
		PersonalDocs FileRef `json:"personalDocs"`
	} `json:"subfolders"`
	Sheets struct {
		AutoGenerating FileRef `json:"autoGenerating"`
		Personal       FileRef `json:"personal"`
	} `json:"sheets"`
	Docs struct {
		Personal FileRef `json:"personal"`
	} `json:"docs"`
}

// Provision builds the workspace tree for a project:
//
//	<name>/
//	  <name> Sheets/        Auto Generating, My Sheet
//	  <name> Docs/
//	    <name> Workers/
//	    My Docs/            My Quick Notes
//
// plus a project calendar named after the project. Every step is ensure
// semantics, so a retry after partial failure completes the tree rather than
// duplicating it. Calendar failures are logged, not fatal.
func (s *Service) Provision(ctx context.Context, name string) (*Project, error) {
	root, err := s.ensure(ctx, name, gateway.MimeFolder, "root")
	if err != nil {
		return nil, fmt.Errorf("failed to provision project folder: %w", err)
	}

	p := &Project{ID: root.Id, Name: root.Name}

	if calID, err := s.EnsureProjectCalendar(ctx, name); err != nil {
		log.LogWarn("Failed to provision calendar for project %s: %v", name, err)
	} else {
		p.CalendarID = calID
	}

	sheetsFolder, err := s.ensure(ctx, name+" Sheets", gateway.MimeFolder, root.Id)
	if err != nil {
		return nil, err
	}
	docsFolder, err := s.ensure(ctx, name+" Docs", gateway.MimeFolder, root.Id)
	if err != nil {
		return nil, err
	}
	p.Subfolders.Sheets = FileRef{ID: sheetsFolder.Id, Name: sheetsFolder.Name}
	p.Subfolders.Docs = FileRef{ID: docsFolder.Id, Name: docsFolder.Name}

	autoGen, err := s.ensure(ctx, "Auto Generating", gateway.MimeSpreadsheet, sheetsFolder.Id)
	if err != nil {
		return nil, err
	}
	mySheet, err := s.ensure(ctx, "My Sheet", gateway.MimeSpreadsheet, sheetsFolder.Id)
	if err != nil {
		return nil, err
	}
	p.Sheets.AutoGenerating = FileRef{ID: autoGen.Id, Name: autoGen.Name}
	p.Sheets.Personal = FileRef{ID: mySheet.Id, Name: mySheet.Name}

	workers, err := s.ensure(ctx, name+" Workers", gateway.MimeFolder, docsFolder.Id)
	if err != nil {
		return nil, err
	}
	personalDocs, err := s.ensure(ctx, "My Docs", gateway.MimeFolder, docsFolder.Id)
	if err != nil {
		return nil, err
	}
	p.Subfolders.Workers = FileRef{ID: workers.Id, Name: workers.Name}
	p.Subfolders.PersonalDocs = FileRef{ID: personalDocs.Id, Name: personalDocs.Name}

	quickNotes, err := s.ensure(ctx, "My Quick Notes", gateway.MimeDocument, personalDocs.Id)
	if err != nil {
		return nil, err
	}
	p.Docs.Personal = FileRef{ID: quickNotes.Id, Name: quickNotes.Name}

	log.LogInfoWithFields("workspace", "Provisioned project workspace", map[string]any{
		"project":  name,
		"folderId": root.Id,
	})
	return p, nil
}

// ListProjects lists top-level folders in the manager's Drive.
func (s *Service) ListProjects(ctx context.Context) ([]FileRef, error) {
	query := fmt.Sprintf("mimeType = '%s' and 'root' in parents and trashed = false", gateway.MimeFolder)
	list, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list project folders: %w", err)
	}

	folders := make([]FileRef, 0, len(list.Files))
	for _, f := range list.Files {
		folders = append(folders, FileRef{ID: f.Id, Name: f.Name})
	}
	return folders, nil
}

// ListFiles lists the contents of a folder with kind classification and
// editor links.
func (s *Service) ListFiles(ctx context.Context, folderID string) ([]File, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	list, err := s.gw.Drive.Files.List().
		Q(query).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]File, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, File{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Kind:     gateway.KindOf(f.MimeType).String(),
			URL:      gateway.EditorURL(f.Id, f.MimeType),
		})
	}
	return files, nil
}

// AddFile creates a document, spreadsheet, or folder in a project. Documents
// land in the Docs subfolder, spreadsheets in Sheets, folders at the project
// root.
func (s *Service) AddFile(ctx context.Context, projectID, fileType, fileName string) (*FileRef, error) {
	var mimeType string
	parentID := projectID

	switch fileType {
	case "document":
		mimeType = gateway.MimeDocument
		folder, err := s.findChildFolder(ctx, projectID, "Docs")
		if err != nil {
			return nil, err
		}
		parentID = folder.Id
	case "spreadsheet":
		mimeType = gateway.MimeSpreadsheet
		folder, err := s.findChildFolder(ctx, projectID, "Sheets")
		if err != nil {
			return nil, err
		}
		parentID = folder.Id
	case "folder":
		mimeType = gateway.MimeFolder
	default:
		return nil, fmt.Errorf("invalid file type %q", fileType)
	}

	file, err := s.ensure(ctx, fileName, mimeType, parentID)
	if err != nil {
		return nil, err
	}
	return &FileRef{ID: file.Id, Name: file.Name}, nil
}
