// Package artifact locates the original file behind an ingested document.
package artifact

import (
	"context"
	"errors"

	"github.com/bull/docrag-mcp-server/internal/storage"
)

// ErrNotAvailable is returned when a document has no reachable original.
var ErrNotAvailable = errors.New("artifact not available")

// Source values reported on a resolved Artifact.
const (
	SourceFile   = "file"
	SourceGitHub = "github"
)

// Artifact is a handle to a document's original bytes.
type Artifact struct {
	DocumentID  string `json:"document_id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	Source      string `json:"source"`
}

// Resolver finds the original artifact for a document.
type Resolver interface {
	Resolve(ctx context.Context, doc *storage.Document) (*Artifact, error)
}

// Chain tries each resolver in order and returns the first hit.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, doc *storage.Document) (*Artifact, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		a, err := r.Resolve(ctx, doc)
		if err == nil {
			return a, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, ErrNotAvailable
}

// None never resolves anything.
type None struct{}

func (None) Resolve(context.Context, *storage.Document) (*Artifact, error) {
	return nil, ErrNotAvailable
}
