package source

import (
	"context"
	"fmt"
	"path"

	"github.com/bull/docrag-mcp-server/internal/github"
	"github.com/bull/docrag-mcp-server/internal/markdown"
)

// GitHub is a Source over the documents of a repository directory.
type GitHub struct {
	fetcher   *github.Fetcher
	converter *markdown.Converter
}

// NewGitHub wraps fetcher as a Source.
func NewGitHub(fetcher *github.Fetcher, converter *markdown.Converter) *GitHub {
	if converter == nil {
		converter = markdown.NewConverter(0)
	}
	return &GitHub{fetcher: fetcher, converter: converter}
}

func (g *GitHub) List(ctx context.Context) ([]string, error) {
	return g.fetcher.ListDocs(ctx)
}

func (g *GitHub) Fetch(ctx context.Context, key string) (*Item, error) {
	doc, err := g.fetcher.FetchDoc(ctx, key)
	if err != nil {
		return nil, err
	}

	item := &Item{
		Key:    key,
		Name:   path.Base(key),
		Origin: doc.URL,
		Size:   doc.Size,
		Type:   TypeFor(key),
		Text:   doc.Content,
	}
	if item.Type == TypeMarkdown {
		md, err := g.converter.Convert([]byte(doc.Content))
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", key, err)
		}
		item.Text = md.Text
		item.Description = md.Description()
	}
	return item, nil
}

// Revision returns the latest commit SHA touching the source directory.
func (g *GitHub) Revision(ctx context.Context) (string, error) {
	return g.fetcher.GetLatestCommitSHA(ctx)
}
