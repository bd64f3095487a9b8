package storage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// unitAt returns a unit vector whose cosine similarity with axis0 is score.
func unitAt(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score)), 0, 0}
}

var axis0 = []float32{1, 0, 0, 0}

func newTestDocument(name string) *Document {
	return &Document{
		ID:         uuid.New().String(),
		Name:       name,
		Origin:     "/docs/" + name,
		Size:       128,
		Type:       "PDF",
		IngestedAt: time.Now().UTC(),
		Status:     StatusPending,
	}
}

func newTestChunk(doc *Document, index int, vector []float32) *Chunk {
	text := fmt.Sprintf("chunk %d of %s", index, doc.Name)
	return &Chunk{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		Index:       index,
		Start:       index * 10,
		End:         index*10 + 10,
		Text:        text,
		Length:      len(text),
		ProcessedAt: time.Now().UTC(),
		Embedding:   vector,
	}
}

// runStoreSuite exercises the Store contract against a fresh backend per subtest.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store returns empty result", func(t *testing.T) {
		s := newStore(t)
		results, err := s.Query(ctx, axis0, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("non-positive k returns empty result", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("a.pdf")
		require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, axis0)}))

		for _, k := range []int{0, -1} {
			results, err := s.Query(ctx, axis0, k, -1)
			require.NoError(t, err)
			assert.Empty(t, results)
		}
	})

	t.Run("ties are broken by ordinal", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("card.pdf")
		chunks := []*Chunk{
			newTestChunk(doc, 2, unitAt(0.9)),
			newTestChunk(doc, 0, unitAt(0.9)),
			newTestChunk(doc, 1, unitAt(0.4)),
		}
		require.NoError(t, s.Add(ctx, doc, chunks))

		results, err := s.Query(ctx, axis0, 2, 0.5)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].Chunk.Index)
		assert.Equal(t, 2, results[1].Chunk.Index)
		assert.InDelta(t, 0.9, results[0].Score, 1e-6)
		assert.Equal(t, doc.ID, results[0].Document.ID)
	})

	t.Run("results respect threshold and k", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("notes.txt")
		scores := []float64{0.1, 0.95, 0.3, 0.7, 0.5, 0.85}
		var chunks []*Chunk
		for i, sc := range scores {
			chunks = append(chunks, newTestChunk(doc, i, unitAt(sc)))
		}
		require.NoError(t, s.Add(ctx, doc, chunks))

		results, err := s.Query(ctx, axis0, 3, 0.4)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.4)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
		assert.Equal(t, []int{1, 5, 3}, []int{results[0].Chunk.Index, results[1].Chunk.Index, results[2].Chunk.Index})
	})

	t.Run("add marks document complete", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("report.pdf")
		doc.Status = StatusProcessing
		require.NoError(t, s.SaveDocument(ctx, doc))

		chunks := []*Chunk{newTestChunk(doc, 0, axis0), newTestChunk(doc, 1, unitAt(0.5))}
		require.NoError(t, s.Add(ctx, doc, chunks))
		assert.Equal(t, StatusComplete, doc.Status)

		stored, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, stored.Status)
		assert.Equal(t, 2, stored.ChunkCount)
		assert.Equal(t, doc.Name, stored.Name)
		assert.Equal(t, doc.Origin, stored.Origin)
		assert.Equal(t, doc.Size, stored.Size)
	})

	t.Run("chunks of incomplete documents are not queryable", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("pending.pdf")
		require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, axis0)}))

		doc.Status = StatusFailed
		doc.Error = "boom"
		require.NoError(t, s.SaveDocument(ctx, doc))

		results, err := s.Query(ctx, axis0, 5, -1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("dimension mismatch is rejected", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("bad.pdf")

		err := s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, []float32{1, 2})})
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = s.Query(ctx, []float32{1, 2}, 1, 0)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("chunk of another document is rejected", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("a.pdf")
		other := newTestDocument("b.pdf")

		err := s.Add(ctx, doc, []*Chunk{newTestChunk(other, 0, axis0)})
		assert.ErrorIs(t, err, ErrInvalidChunk)
	})

	t.Run("remove document drops all chunks", func(t *testing.T) {
		s := newStore(t)
		keep := newTestDocument("keep.pdf")
		drop := newTestDocument("drop.pdf")
		require.NoError(t, s.Add(ctx, keep, []*Chunk{newTestChunk(keep, 0, unitAt(0.6))}))
		require.NoError(t, s.Add(ctx, drop, []*Chunk{
			newTestChunk(drop, 0, axis0),
			newTestChunk(drop, 1, unitAt(0.8)),
		}))

		require.NoError(t, s.RemoveDocument(ctx, drop.ID))

		results, err := s.Query(ctx, axis0, 10, -1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		for _, r := range results {
			assert.NotEqual(t, drop.ID, r.Chunk.DocumentID)
		}

		_, err = s.GetDocument(ctx, drop.ID)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("removing unknown document is a no-op", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.RemoveDocument(ctx, uuid.New().String()))
	})

	t.Run("chunks are returned in ordinal order", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("ordered.pdf")
		chunks := []*Chunk{
			newTestChunk(doc, 2, unitAt(0.1)),
			newTestChunk(doc, 0, unitAt(0.2)),
			newTestChunk(doc, 1, unitAt(0.3)),
		}
		require.NoError(t, s.Add(ctx, doc, chunks))

		got, err := s.Chunks(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, c := range got {
			assert.Equal(t, i, c.Index)
		}
		assert.Equal(t, chunks[1].Embedding, got[0].Embedding)
	})

	t.Run("re-adding replaces chunks", func(t *testing.T) {
		s := newStore(t)
		doc := newTestDocument("v1.pdf")
		require.NoError(t, s.Add(ctx, doc, []*Chunk{
			newTestChunk(doc, 0, axis0),
			newTestChunk(doc, 1, axis0),
		}))
		require.NoError(t, s.Add(ctx, doc, []*Chunk{newTestChunk(doc, 0, unitAt(0.5))}))

		got, err := s.Chunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		stored, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.ChunkCount)
	})

	t.Run("list documents", func(t *testing.T) {
		s := newStore(t)
		first := newTestDocument("first.pdf")
		second := newTestDocument("second.pdf")
		second.IngestedAt = first.IngestedAt.Add(time.Second)
		require.NoError(t, s.SaveDocument(ctx, second))
		require.NoError(t, s.SaveDocument(ctx, first))

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, first.ID, docs[0].ID)
		assert.Equal(t, second.ID, docs[1].ID)
	})

	t.Run("queries never observe a partial document", func(t *testing.T) {
		s := newStore(t)
		const perDoc = 5

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				doc := newTestDocument(fmt.Sprintf("doc-%d.pdf", i))
				var chunks []*Chunk
				for j := 0; j < perDoc; j++ {
					chunks = append(chunks, newTestChunk(doc, j, axis0))
				}
				if err := s.Add(ctx, doc, chunks); err != nil {
					t.Error(err)
					return
				}
				if i%2 == 0 {
					if err := s.RemoveDocument(ctx, doc.ID); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()

		for i := 0; i < 20; i++ {
			results, err := s.Query(ctx, axis0, 1000, -1)
			require.NoError(t, err)
			counts := make(map[string]int)
			for _, r := range results {
				counts[r.Chunk.DocumentID]++
			}
			for id, n := range counts {
				assert.Equal(t, perDoc, n, "document %s partially visible", id)
			}
		}
		wg.Wait()
	})
}
