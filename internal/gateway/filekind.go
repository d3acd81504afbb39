package gateway

// Kind classifies a Drive file into the editor families the dashboard links
// to. The mapping from MIME type to kind to editor URL lives here and
// nowhere else.
type Kind int

const (
	KindOther Kind = iota
	KindFolder
	KindDocument
	KindSpreadsheet
	KindPresentation
	KindDrawing
	KindForm
)

const (
	// MimeFolder and friends are the Google Workspace MIME types the
	// dashboard creates or classifies.
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"
	MimeDrawing      = "application/vnd.google-apps.drawing"
	MimeForm         = "application/vnd.google-apps.form"
)

// KindOf maps a MIME type to its kind. Unknown MIME types are KindOther,
// never an error.
func KindOf(mimeType string) Kind {
	switch mimeType {
	case MimeFolder:
		return KindFolder
	case MimeDocument:
		return KindDocument
	case MimeSpreadsheet:
		return KindSpreadsheet
	case MimePresentation:
		return KindPresentation
	case MimeDrawing:
		return KindDrawing
	case MimeForm:
		return KindForm
	default:
		return KindOther
	}
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindDocument:
		return "document"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindPresentation:
		return "presentation"
	case KindDrawing:
		return "drawing"
	case KindForm:
		return "form"
	default:
		return "other"
	}
}

// EditorURL returns the browser URL opening the file in its native editor.
// Files with no dedicated editor open in the Drive viewer.
func EditorURL(fileID, mimeType string) string {
	switch KindOf(mimeType) {
	case KindFolder:
		return "https://drive.google.com/drive/folders/" + fileID
	case KindDocument:
		return "https://docs.google.com/document/d/" + fileID + "/edit"
	case KindSpreadsheet:
		return "https://docs.google.com/spreadsheets/d/" + fileID + "/edit"
	case KindPresentation:
		return "https://docs.google.com/presentation/d/" + fileID + "/edit"
	case KindDrawing:
		return "https://docs.google.com/drawings/d/" + fileID + "/edit"
	case KindForm:
		return "https://docs.google.com/forms/d/" + fileID + "/edit"
	default:
		return "https://drive.google.com/file/d/" + fileID + "/view"
	}
}
