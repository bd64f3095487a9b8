package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "docrag.db"), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return setupTestDB(t)
	})
}

func TestSQLiteStoreVectorsRoundTripExactly(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	vector := []float32{float32(math.Pi), -1e-38, 0.1, float32(math.Sqrt2)}
	doc := newTestDocument("exact.pdf")
	require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, vector)}))

	got, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	for i := range vector {
		assert.Equal(t, math.Float32bits(vector[i]), math.Float32bits(got[0].Embedding[i]))
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docrag.db")

	s, err := NewSQLiteStore(path, testDim)
	require.NoError(t, err)
	doc := newTestDocument("persist.pdf")
	doc.Description = "a persisted document"
	require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, axis0)}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, testDim)
	require.NoError(t, err)
	defer reopened.Close()

	stored, err := reopened.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a persisted document", stored.Description)
	assert.Equal(t, StatusComplete, stored.Status)
	assert.WithinDuration(t, doc.IngestedAt, stored.IngestedAt, 0)

	results, err := reopened.Query(ctx, axis0, 1, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, doc.ID, results[0].Document.ID)
}

func TestSQLiteStoreHealth(t *testing.T) {
	assert.NoError(t, setupTestDB(t).Health(context.Background()))
}
