package artifact

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bull/docrag-mcp-server/internal/storage"
)

// FileResolver resolves documents whose origin is a path on local disk.
// Relative origins are joined to Root.
type FileResolver struct {
	Root string
}

func (r FileResolver) Resolve(ctx context.Context, doc *storage.Document) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || doc.Origin == "" || strings.Contains(doc.Origin, "://") {
		return nil, ErrNotAvailable
	}

	p := doc.Origin
	if !filepath.IsAbs(p) && r.Root != "" {
		p = filepath.Join(r.Root, p)
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotAvailable, p)
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return &Artifact{
		DocumentID:  doc.ID,
		Name:        doc.Name,
		Location:    abs,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(p)),
		Source:      SourceFile,
	}, nil
}
