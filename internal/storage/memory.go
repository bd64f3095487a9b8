package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps documents and chunks in process memory.
// A document's chunk slice is replaced whole under the write lock, so a
// query holding the read lock sees either all of a document's chunks or none.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	docs   map[string]*Document
	chunks map[string][]*Chunk
}

// NewMemoryStore creates an empty store for vectors of the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dim:    dimension,
		docs:   make(map[string]*Document),
		chunks: make(map[string][]*Chunk),
	}
}

func (s *MemoryStore) SaveDocument(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if err := validateAdd(doc, chunks, s.dim); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	committed := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		committed[i] = cloneChunk(c)
	}
	sortChunks(committed)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Status = StatusComplete
	doc.ChunkCount = len(chunks)
	doc.Error = ""
	s.docs[doc.ID] = cloneDocument(doc)
	s.chunks[doc.ID] = committed
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int, threshold float64) ([]SimilarityResult, error) {
	if k <= 0 {
		return []SimilarityResult{}, nil
	}
	if err := checkQueryVector(vector, s.dim); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []SimilarityResult{}
	for docID, chunks := range s.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := s.docs[docID]
		if doc == nil || doc.Status != StatusComplete {
			continue
		}
		for _, c := range chunks {
			score := CosineSimilarity(vector, c.Embedding)
			if score < threshold {
				continue
			}
			results = append(results, SimilarityResult{
				Chunk:    cloneChunk(c),
				Document: cloneDocument(doc),
				Score:    score,
			})
		}
	}
	return rank(results, k), nil
}

func (s *MemoryStore) RemoveDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, id)
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// ListDocuments returns every document ordered by ingestion time, then id.
func (s *MemoryStore) ListDocuments(_ context.Context) ([]*Document, error) {
	s.mu.RLock()
	docs := make([]*Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, cloneDocument(d))
	}
	s.mu.RUnlock()

	sortDocuments(docs)
	return docs, nil
}

func (s *MemoryStore) Chunks(_ context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[documentID]; !ok {
		return nil, ErrDocumentNotFound
	}
	out := make([]*Chunk, len(s.chunks[documentID]))
	for i, c := range s.chunks[documentID] {
		out[i] = cloneChunk(c)
	}
	return out, nil
}

func (s *MemoryStore) Dimension() int { return s.dim }

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortDocuments(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].IngestedAt.Before(docs[j].IngestedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
