package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore(testDim)
	})
}

func TestMemoryStoreCopiesChunks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testDim)
	doc := newTestDocument("copy.pdf")
	chunk := newTestChunk(doc, 0, []float32{1, 0, 0, 0})
	require.NoError(t, s.Add(ctx, doc, []*Chunk{chunk}))

	chunk.Embedding[0] = 0
	chunk.Text = "mutated"

	got, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(1), got[0].Embedding[0])
	assert.NotEqual(t, "mutated", got[0].Text)
}

func TestMemoryStoreResultsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testDim)
	doc := newTestDocument("copy.pdf")
	require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, []float32{1, 0, 0, 0})}))

	results, err := s.Query(ctx, []float32{1, 0, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	results[0].Chunk.Embedding[0] = 0
	results[0].Chunk.Text = "mutated"

	listed, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	listed[0].Embedding[1] = 5
	listed[0].Text = "mutated too"

	got, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, got[0].Embedding)
	assert.NotContains(t, got[0].Text, "mutated")
}

func TestMemoryStoreChunksUnknownDocument(t *testing.T) {
	_, err := NewMemoryStore(testDim).Chunks(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
