// Package source enumerates documents and supplies their extracted text.
//
// Text extraction (OCR, PDF parsing, transcription) happens elsewhere. A
// Directory source reads markdown and plain text directly, and picks up
// extracted text for binary originals from a sidecar file named
// "<original>.txt" next to the original.
package source

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files that carry no usable text.
var ErrUnsupported = errors.New("unsupported document")

// Document types reported by sources.
const (
	TypeText     = "TEXT"
	TypeMarkdown = "MARKDOWN"
	TypePDF      = "PDF"
	TypeImage    = "IMAGE"
	TypeAudio    = "AUDIO"
	TypeOther    = "FILE"
)

// Item is one document ready for ingestion.
type Item struct {
	Key         string // Stable key within the source, used for listing
	Name        string
	Origin      string // Path or URL of the original artifact
	Size        int64  // Size of the original, not of the text
	Type        string
	Text        string
	Description string
}

// Source lists document keys and fetches their text.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string) (*Item, error)
}

// TypeFor maps a file name to a document type.
func TypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return TypeMarkdown
	case ".txt", ".text":
		return TypeText
	case ".pdf":
		return TypePDF
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".heic", ".tif", ".tiff":
		return TypeImage
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac":
		return TypeAudio
	default:
		return TypeOther
	}
}
