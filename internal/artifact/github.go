package artifact

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/bull/docrag-mcp-server/internal/github"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

// GitHubResolver resolves documents whose origin is a raw.githubusercontent.com
// URL by checking the file still exists at that ref.
type GitHubResolver struct {
	Client *github.Client
}

func (r GitHubResolver) Resolve(ctx context.Context, doc *storage.Document) (*Artifact, error) {
	if doc == nil || r.Client == nil {
		return nil, ErrNotAvailable
	}
	owner, repo, ref, filePath, ok := github.ParseRawURL(doc.Origin)
	if !ok {
		return nil, ErrNotAvailable
	}

	info, err := r.Client.Stat(ctx, owner, repo, ref, filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	return &Artifact{
		DocumentID:  doc.ID,
		Name:        doc.Name,
		Location:    doc.Origin,
		Size:        info.Size,
		ContentType: mime.TypeByExtension(path.Ext(filePath)),
		Source:      SourceGitHub,
	}, nil
}
