package storage

import (
	"context"
	"fmt"
	"sort"
)

// Store persists documents and their embedded chunks and answers
// similarity queries over the committed chunks.
//
// Implementations must make Add and RemoveDocument atomic with respect to
// Query: a query never observes some but not all chunks of a document.
type Store interface {
	// SaveDocument inserts or updates a document record without touching its chunks.
	SaveDocument(ctx context.Context, doc *Document) error
	// Add replaces the document's chunks and marks it COMPLETE in one step.
	Add(ctx context.Context, doc *Document, chunks []*Chunk) error
	// Query returns at most k results with score >= threshold, best first.
	Query(ctx context.Context, vector []float32, k int, threshold float64) ([]SimilarityResult, error)
	// RemoveDocument deletes a document and all of its chunks. Unknown ids are a no-op.
	RemoveDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	// Chunks returns a document's chunks in ordinal order.
	Chunks(ctx context.Context, documentID string) ([]*Chunk, error)
	Dimension() int
	Health(ctx context.Context) error
	Close() error
}

// validateAdd checks that every chunk belongs to doc and carries a vector of
// the store's dimension.
func validateAdd(doc *Document, chunks []*Chunk, dim int) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document has no id", ErrInvalidChunk)
	}
	for i, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d references document %q, expected %q",
				ErrInvalidChunk, i, c.DocumentID, doc.ID)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), dim)
		}
	}
	return nil
}

func checkQueryVector(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

// rank sorts results by descending score, breaking ties by ascending chunk
// ordinal, then document and chunk id, and truncates to k.
func rank(results []SimilarityResult, k int) []SimilarityResult {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func sortChunks(chunks []*Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
}
