package models

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type FileKind string

const (
	KindImage   FileKind = "image"
	KindPDF     FileKind = "pdf"
	KindText    FileKind = "text"
	KindUnknown FileKind = "unknown"
)

type ExtractionStatus string

const (
	ExtractionUnprocessed ExtractionStatus = "unprocessed"
	ExtractionExtracted   ExtractionStatus = "extracted"
	ExtractionFailed      ExtractionStatus = "failed"
)

// Attachment references an uploaded file. Raw bytes live with the storage
// collaborator; once Text is written by the ingestion pipeline it is
// read-only.
type Attachment struct {
	ID     uuid.UUID        `json:"id"`
	Name   string           `json:"name"`
	Kind   FileKind         `json:"kind"`
	Size   int64            `json:"size"`
	Status ExtractionStatus `json:"status"`
	Text   string           `json:"text,omitempty"`
}

func NewAttachment(name string, size int64) Attachment {
	return Attachment{
		ID:     uuid.New(),
		Name:   name,
		Kind:   KindForFilename(name),
		Size:   size,
		Status: ExtractionUnprocessed,
	}
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".py": true, ".js": true, ".ts": true, ".go": true,
	".json": true, ".yaml": true, ".yml": true,
	".html": true, ".css": true, ".sh": true, ".sql": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".java": true,
}

// KindForFilename maps a declared filename to a file kind. Dispatch is by
// declared extension only; there is no content sniffing.
func KindForFilename(name string) FileKind {
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".bmp" || ext == ".webp":
		return KindImage
	case ext == ".pdf":
		return KindPDF
	case textExtensions[ext]:
		return KindText
	default:
		return KindUnknown
	}
}

// ExtractionResult is the outcome of extracting one attachment. Empty output
// (an image with no recognizable text) is a success with Empty set, distinct
// from failure.
type ExtractionResult struct {
	AttachmentID uuid.UUID `json:"attachment_id"`
	Name         string    `json:"name"`
	Kind         FileKind  `json:"kind"`
	Text         string    `json:"text,omitempty"`
	Empty        bool      `json:"empty,omitempty"`
	Err          string    `json:"error,omitempty"`
}

func (r ExtractionResult) Failed() bool {
	return r.Err != ""
}
