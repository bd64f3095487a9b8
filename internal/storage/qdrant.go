package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

const (
	kindDocument = "document"
	kindChunk    = "chunk"
	vectorName   = "content"
)

// QdrantStorage stores documents and chunks as points of a single Qdrant
// collection. Documents are vectorless points; chunks carry the named
// "content" vector and a "committed" flag that Add flips in one filtered
// payload update once every chunk point has been written.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(host string, port int, collection string, dimension int) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollectionName
	}
	storage := &QdrantStorage{
		client:     client,
		collection: collection,
		dim:        dimension,
	}

	ctx := context.Background()
	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (s *QdrantStorage) Dimension() int { return s.dim }

// EnsureCollection creates the collection with a cosine "content" vector of
// the configured dimension and keyword indexes on the filter fields.
// Idempotent - safe to call multiple times.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

// createPayloadIndexes indexes every field used in a filter.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		"kind":        qdrant.FieldType_FieldTypeKeyword,
		"document_id": qdrant.FieldType_FieldTypeKeyword,
		"status":      qdrant.FieldType_FieldTypeKeyword,
		"committed":   qdrant.FieldType_FieldTypeBool,
	}
	for field, fieldType := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

func documentPoint(doc *Document) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"kind":        kindDocument,
			"document_id": doc.ID,
			"name":        doc.Name,
			"origin":      doc.Origin,
			"size":        doc.Size,
			"type":        doc.Type,
			"ingested_at": doc.IngestedAt.UTC().Format(time.RFC3339Nano),
			"description": doc.Description,
			"chunk_count": doc.ChunkCount,
			"status":      string(doc.Status),
			"error":       doc.Error,
		}),
	}
}

func (s *QdrantStorage) SaveDocument(ctx context.Context, doc *Document) error {
	if err := s.upsertWithRetry(ctx, []*qdrant.PointStruct{documentPoint(doc)}); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func chunkFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("kind", kindChunk),
			qdrant.NewMatch("document_id", documentID),
		},
	}
}

// Add replaces the document's chunk points. New chunks are written
// uncommitted in batches of 100, then made visible by a single filtered
// payload update, and finally the document point is saved as COMPLETE.
// Queries also drop chunks whose document is not COMPLETE, so a failure
// between steps leaves nothing visible.
func (s *QdrantStorage) Add(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if err := validateAdd(doc, chunks, s.dim); err != nil {
		return err
	}

	if err := s.deletePoints(ctx, chunkFilter(doc.ID)); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))

		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(c.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"kind":         kindChunk,
					"document_id":  c.DocumentID,
					"ordinal":      c.Index,
					"start":        c.Start,
					"end":          c.End,
					"text":         c.Text,
					"metadata":     c.Metadata,
					"length":       c.Length,
					"processed_at": c.ProcessedAt.UTC().Format(time.RFC3339Nano),
					"committed":    false,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        qdrant.NewValueMap(map[string]any{"committed": true}),
		PointsSelector: qdrant.NewPointsSelectorFilter(chunkFilter(doc.ID)),
	})
	if err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	committed := *doc
	committed.Status = StatusComplete
	committed.ChunkCount = len(chunks)
	committed.Error = ""
	if err := s.SaveDocument(ctx, &committed); err != nil {
		return err
	}
	*doc = committed
	return nil
}

// Query runs an exact (brute-force) search over committed chunks. Extra
// candidates are fetched so that ties at the k-th score can be re-ranked by
// ordinal on the client.
func (s *QdrantStorage) Query(ctx context.Context, vector []float32, k int, threshold float64) ([]SimilarityResult, error) {
	if k <= 0 {
		return []SimilarityResult{}, nil
	}
	if err := checkQueryVector(vector, s.dim); err != nil {
		return nil, err
	}

	name := vectorName
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &name,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("kind", kindChunk),
				qdrant.NewMatchBool("committed", true),
			},
		},
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
		Limit:          qdrant.PtrOf(uint64(2*k + 16)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	docs := make(map[string]*Document)
	results := make([]SimilarityResult, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload(p.Id, p.Payload, p.Vectors)
		doc, ok := docs[c.DocumentID]
		if !ok {
			doc, err = s.GetDocument(ctx, c.DocumentID)
			if err != nil && !errors.Is(err, ErrDocumentNotFound) {
				return nil, err
			}
			docs[c.DocumentID] = doc
		}
		if doc == nil || doc.Status != StatusComplete {
			continue
		}
		// qdrant scores are float32; recompute to match the other backends
		score := CosineSimilarity(vector, c.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, SimilarityResult{Chunk: c, Document: cloneDocument(doc), Score: score})
	}
	return rank(results, k), nil
}

// RemoveDocument deletes the document point and its chunk points with one filtered delete.
func (s *QdrantStorage) RemoveDocument(ctx context.Context, id string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", id)},
	}
	if err := s.deletePoints(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

func (s *QdrantStorage) deletePoints(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

// GetDocument retrieves a document point by ID.
func (s *QdrantStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(result) == 0 || result[0].Payload["kind"].GetStringValue() != kindDocument {
		return nil, ErrDocumentNotFound
	}
	return documentFromPayload(result[0].Payload), nil
}

// ListDocuments scrolls through every document point.
func (s *QdrantStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	var docs []*Document
	err := s.scroll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("kind", kindDocument)},
	}, false, func(p *qdrant.RetrievedPoint) {
		docs = append(docs, documentFromPayload(p.Payload))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sortDocuments(docs)
	return docs, nil
}

// Chunks returns the committed chunks of a document in ordinal order.
func (s *QdrantStorage) Chunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	filter := chunkFilter(documentID)
	filter.Must = append(filter.Must, qdrant.NewMatchBool("committed", true))

	chunks := []*Chunk{}
	err := s.scroll(ctx, filter, true, func(p *qdrant.RetrievedPoint) {
		chunks = append(chunks, chunkFromPayload(p.Id, p.Payload, p.Vectors))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}
	sortChunks(chunks)
	return chunks, nil
}

func (s *QdrantStorage) scroll(ctx context.Context, filter *qdrant.Filter, withVectors bool, fn func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	batchSize := uint32(100)

	for {
		results, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			fn(r)
		}
		if next == nil || len(results) == 0 {
			return nil
		}
		offset = next
	}
}

// ClearCollection deletes and recreates the collection.
func (s *QdrantStorage) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

func documentFromPayload(payload map[string]*qdrant.Value) *Document {
	ingestedAt, err := time.Parse(time.RFC3339Nano, payload["ingested_at"].GetStringValue())
	if err != nil {
		ingestedAt = time.Time{}
	}
	return &Document{
		ID:          payload["document_id"].GetStringValue(),
		Name:        payload["name"].GetStringValue(),
		Origin:      payload["origin"].GetStringValue(),
		Size:        payload["size"].GetIntegerValue(),
		Type:        payload["type"].GetStringValue(),
		IngestedAt:  ingestedAt,
		Description: payload["description"].GetStringValue(),
		ChunkCount:  int(payload["chunk_count"].GetIntegerValue()),
		Status:      Status(payload["status"].GetStringValue()),
		Error:       payload["error"].GetStringValue(),
	}
}

func chunkFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) *Chunk {
	processedAt, err := time.Parse(time.RFC3339Nano, payload["processed_at"].GetStringValue())
	if err != nil {
		processedAt = time.Time{}
	}
	c := &Chunk{
		ID:          id.GetUuid(),
		DocumentID:  payload["document_id"].GetStringValue(),
		Index:       int(payload["ordinal"].GetIntegerValue()),
		Start:       int(payload["start"].GetIntegerValue()),
		End:         int(payload["end"].GetIntegerValue()),
		Text:        payload["text"].GetStringValue(),
		Metadata:    payload["metadata"].GetStringValue(),
		Length:      int(payload["length"].GetIntegerValue()),
		ProcessedAt: processedAt,
	}
	if v := vectors.GetVectors().GetVectors()[vectorName]; v != nil {
		c.Embedding = v.GetDenseVector().GetData()
	}
	return c
}
