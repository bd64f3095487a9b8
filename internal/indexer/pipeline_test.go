package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/source"
)

type fakeSource struct {
	items    map[string]*source.Item
	order    []string
	listErr  error
	revision string
}

func (f *fakeSource) List(context.Context) ([]string, error) {
	return f.order, f.listErr
}

func (f *fakeSource) Fetch(_ context.Context, key string) (*source.Item, error) {
	item, ok := f.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrUnsupported, key)
	}
	return item, nil
}

type revisionSource struct{ *fakeSource }

func (r revisionSource) Revision(context.Context) (string, error) { return r.revision, nil }

type fakeIngester struct {
	requests []retrieval.IngestRequest
}

func (f *fakeIngester) Ingest(_ context.Context, req retrieval.IngestRequest) (*retrieval.IngestResult, error) {
	f.requests = append(f.requests, req)
	if req.Text == "" {
		return &retrieval.IngestResult{Success: false, Reason: "empty"}, retrieval.ErrNoChunks
	}
	return &retrieval.IngestResult{DocumentID: req.Name, Success: true, ChunkCount: len(req.Text)}, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		order: []string{"a.md", "b.txt", "missing.pdf", "empty.txt"},
		items: map[string]*source.Item{
			"a.md":      {Key: "a.md", Name: "a.md", Type: source.TypeMarkdown, Text: "alpha", Origin: "/d/a.md", Description: "Sections: # A"},
			"b.txt":     {Key: "b.txt", Name: "b.txt", Type: source.TypeText, Text: "beta!", Origin: "/d/b.txt", Size: 5},
			"empty.txt": {Key: "empty.txt", Name: "empty.txt", Type: source.TypeText},
		},
	}
}

func TestPipeline_IndexAll(t *testing.T) {
	ing := &fakeIngester{}
	p := NewPipeline(newFakeSource(), ing, nil)

	result, err := p.IndexAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Equal(t, 10, result.TotalChunks)
	assert.Empty(t, result.Revision)
	require.Len(t, result.FailedDocs, 2)
	assert.Equal(t, "missing.pdf", result.FailedDocs[0].Path)
	assert.Contains(t, result.FailedDocs[0].Reason, "fetch")
	assert.Equal(t, "empty.txt", result.FailedDocs[1].Path)
	assert.Contains(t, result.FailedDocs[1].Reason, "no chunks")

	require.Len(t, ing.requests, 3)
	assert.Equal(t, retrieval.IngestRequest{
		Name:        "a.md",
		Type:        source.TypeMarkdown,
		Origin:      "/d/a.md",
		Description: "Sections: # A",
		Text:        "alpha",
	}, ing.requests[0])
}

func TestPipeline_Revision(t *testing.T) {
	src := revisionSource{newFakeSource()}
	src.revision = "abc123"

	result, err := NewPipeline(src, &fakeIngester{}, nil).IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Revision)
}

func TestPipeline_ListError(t *testing.T) {
	src := newFakeSource()
	src.listErr = errors.New("rate limited")

	_, err := NewPipeline(src, &fakeIngester{}, nil).IndexAll(context.Background())
	assert.ErrorContains(t, err, "list docs")
}

func TestPipeline_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing := &fakeIngester{}

	result, err := NewPipeline(newFakeSource(), ing, nil).IndexAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, ing.requests)
}
