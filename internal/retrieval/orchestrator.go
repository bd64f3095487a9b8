// Package retrieval composes chunking, embedding and the vector store into
// document ingestion, similarity search and arbitrated answers.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bull/docrag-mcp-server/internal/answer"
	"github.com/bull/docrag-mcp-server/internal/arbiter"
	"github.com/bull/docrag-mcp-server/internal/chunker"
	"github.com/bull/docrag-mcp-server/internal/embedding"
	"github.com/bull/docrag-mcp-server/internal/metrics"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.2
)

// Describer writes a description for a document that arrived without one.
type Describer interface {
	Describe(ctx context.Context, name, docType, content string) (string, error)
}

// Deps are the collaborators an Orchestrator is built from. Chunker,
// Provider and Store are required.
type Deps struct {
	Chunker   *chunker.Chunker
	Provider  embedding.Provider
	Store     storage.Store
	Arbiter   *arbiter.Arbiter // nil: an arbiter that never resolves artifacts
	Generator answer.Generator // nil: answer.Extractive
	Describer Describer        // nil: descriptions are left as supplied
	Logger    *slog.Logger
}

// IngestRequest is one document's extracted text plus its source details.
type IngestRequest struct {
	ID          string // Optional; a new UUID is assigned when empty
	Name        string
	Type        string
	Size        int64
	Origin      string
	Description string
	Text        string
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Reason     string `json:"reason,omitempty"`
}

// AnswerRequest asks for an arbitrated answer to a question.
type AnswerRequest struct {
	Query     string
	K         int     // <= 0 selects DefaultTopK
	Threshold float64 // Minimum cosine similarity
	TypeHint  string  // Optional document-type hint for FULL_FILE answers
}

// QueryResult is the evidence for a question and the arbiter's decision.
type QueryResult struct {
	Results  []storage.SimilarityResult
	Decision arbiter.Decision
}

// Orchestrator runs ingestion, search and answering over one store.
type Orchestrator struct {
	chunker   *chunker.Chunker
	provider  embedding.Provider
	store     storage.Store
	arbiter   *arbiter.Arbiter
	generator answer.Generator
	describer Describer
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	clearing bool
}

// New validates deps and returns an Orchestrator. A store whose dimension
// differs from the provider's is rejected with storage.ErrDimensionMismatch.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Chunker == nil || deps.Provider == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: chunker, provider and store are required", ErrMissingComponent)
	}
	if deps.Store.Dimension() != deps.Provider.Dimension() {
		return nil, fmt.Errorf("%w: store has %d dimensions, provider %s has %d",
			storage.ErrDimensionMismatch, deps.Store.Dimension(), deps.Provider.Name(), deps.Provider.Dimension())
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	arb := deps.Arbiter
	if arb == nil {
		arb = arbiter.New(nil, logger)
	}
	var gen answer.Generator = answer.Extractive{}
	if deps.Generator != nil {
		gen = deps.Generator
	}

	return &Orchestrator{
		chunker:   deps.Chunker,
		provider:  deps.Provider,
		store:     deps.Store,
		arbiter:   arb,
		generator: gen,
		describer: deps.Describer,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}, nil
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy || o.clearing {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

// Ingest chunks, embeds and commits one document.
//
// The document is saved PENDING, then PROCESSING, and becomes COMPLETE only
// in the store operation that commits its chunks. On any failure, including
// cancellation, it is saved FAILED with a reason and no chunks are
// committed; the returned result then has Success false and the error is
// returned alongside it. Re-ingesting the id of a COMPLETE document leaves
// that version untouched and searchable until the new chunks commit, and
// untouched if ingestion fails. Once the new document is committed, earlier
// documents with the same non-empty Origin are removed.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	if !o.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrIngestInProgress, id)
	}
	defer o.release(id)

	doc := &storage.Document{
		ID:          id,
		Name:        documentName(req),
		Origin:      req.Origin,
		Size:        req.Size,
		Type:        req.Type,
		IngestedAt:  time.Now().UTC(),
		Description: req.Description,
		Status:      storage.StatusPending,
	}
	if doc.Size == 0 {
		doc.Size = int64(len(req.Text))
	}

	// A committed version stays visible while its replacement is built.
	replacing := false
	if prior, err := o.store.GetDocument(ctx, id); err == nil && prior.Status == storage.StatusComplete {
		replacing = true
	}
	if !replacing {
		if err := o.store.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("save document: %w", err)
		}
	}

	n, err := o.process(ctx, doc, req.Text, !replacing)
	if err != nil {
		return o.fail(ctx, doc, err, !replacing), err
	}

	metrics.Ingestions.WithLabelValues("complete").Inc()
	metrics.ChunksStored.Add(float64(n))
	o.logger.Info("Ingested document", "document_id", id, "name", doc.Name, "chunks", n)

	o.replaceEarlier(ctx, doc)

	return &IngestResult{DocumentID: id, Success: true, ChunkCount: n}, nil
}

// process builds and commits doc's chunks. Status writes before the commit
// are skipped when track is false.
func (o *Orchestrator) process(ctx context.Context, doc *storage.Document, text string, track bool) (int, error) {
	doc.Status = storage.StatusProcessing
	if track {
		if err := o.store.SaveDocument(ctx, doc); err != nil {
			return 0, fmt.Errorf("save document: %w", err)
		}
	}

	segments := o.chunker.Chunk(text)
	if len(segments) == 0 {
		return 0, ErrNoChunks
	}
	o.logger.Debug("Chunked document", "document_id", doc.ID, "chunks", len(segments))

	if doc.Description == "" && o.describer != nil {
		desc, err := o.describer.Describe(ctx, doc.Name, doc.Type, text)
		if err != nil {
			o.logger.Warn("Description generation failed, using empty", "document_id", doc.ID, "error", err)
		} else {
			doc.Description = desc
		}
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vectors, err := o.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(segments) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", ErrInvalidEmbedding, len(vectors), len(segments))
	}

	now := time.Now().UTC()
	chunks := make([]*storage.Chunk, len(segments))
	for i, s := range segments {
		if !o.provider.IsValid(vectors[i]) {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions", ErrInvalidEmbedding, i, len(vectors[i]))
		}
		chunks[i] = &storage.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			Index:       s.Index,
			Start:       s.Start,
			End:         s.End,
			Text:        s.Text,
			Metadata:    s.Metadata,
			Length:      utf8.RuneCountInString(s.Text),
			ProcessedAt: now,
			Embedding:   vectors[i],
		}
	}

	// Last point at which cancellation can stop the commit.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := o.store.Add(ctx, doc, chunks); err != nil {
		return 0, fmt.Errorf("commit chunks: %w", err)
	}
	return len(chunks), nil
}

// fail records the document as FAILED when record is set. The status write
// ignores caller cancellation so a cancelled ingestion is never left
// PROCESSING. Without record the stored version is left as it was.
func (o *Orchestrator) fail(ctx context.Context, doc *storage.Document, cause error, record bool) *IngestResult {
	doc.Status = storage.StatusFailed
	doc.ChunkCount = 0
	doc.Error = cause.Error()

	if record {
		if err := o.store.SaveDocument(context.WithoutCancel(ctx), doc); err != nil {
			o.logger.Error("Failed to record ingestion failure", "document_id", doc.ID, "error", err)
		}
	}
	metrics.Ingestions.WithLabelValues("failed").Inc()
	o.logger.Warn("Ingestion failed", "document_id", doc.ID, "name", doc.Name, "error", cause)

	return &IngestResult{DocumentID: doc.ID, Success: false, Reason: doc.Error}
}

// replaceEarlier removes older documents ingested from the same origin.
func (o *Orchestrator) replaceEarlier(ctx context.Context, doc *storage.Document) {
	if doc.Origin == "" {
		return
	}
	docs, err := o.store.ListDocuments(ctx)
	if err != nil {
		o.logger.Warn("Could not list documents to replace", "origin", doc.Origin, "error", err)
		return
	}
	for _, d := range docs {
		if d.ID == doc.ID || d.Origin != doc.Origin {
			continue
		}
		if err := o.Delete(ctx, d.ID); err != nil {
			o.logger.Warn("Could not remove replaced document", "document_id", d.ID, "error", err)
			continue
		}
		o.logger.Info("Replaced earlier version", "document_id", d.ID, "origin", doc.Origin)
	}
}

func documentName(req IngestRequest) string {
	switch {
	case strings.TrimSpace(req.Name) != "":
		return strings.TrimSpace(req.Name)
	case req.Origin != "":
		return filepath.Base(req.Origin)
	default:
		return "untitled"
	}
}

// Search embeds query and returns at most k chunks with score >= threshold.
func (o *Orchestrator) Search(ctx context.Context, query string, k int, threshold float64) ([]storage.SimilarityResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	vector, err := o.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := o.store.Query(ctx, vector, k, threshold)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	metrics.Queries.Inc()
	o.logger.Debug("Searched", "k", k, "threshold", threshold, "results", len(results))
	return results, nil
}

// Answer retrieves evidence for req.Query, generates an answer and
// arbitrates its final shape. A failing generator degrades to an
// extractive answer; only cancellation and search errors are returned.
func (o *Orchestrator) Answer(ctx context.Context, req AnswerRequest) (*QueryResult, error) {
	k := req.K
	if k <= 0 {
		k = DefaultTopK
	}
	results, err := o.Search(ctx, req.Query, k, req.Threshold)
	if err != nil {
		return nil, err
	}

	evidence := answer.BuildEvidence(results)
	text, err := o.generator.Generate(ctx, req.Query, evidence)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("Answer generation failed, using extractive answer", "error", err)
		text, err = answer.Extractive{}.Generate(ctx, req.Query, evidence)
		if err != nil {
			return nil, err
		}
	}

	decision := o.arbiter.Decide(ctx, text, results, req.TypeHint)
	return &QueryResult{Results: results, Decision: decision}, nil
}

// Delete removes a document and its chunks. Unknown ids are a no-op.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if !o.acquire(id) {
		return fmt.Errorf("%w: %s", ErrIngestInProgress, id)
	}
	defer o.release(id)

	if err := o.store.RemoveDocument(ctx, id); err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}

// clearer is implemented by stores that can drop everything at once.
type clearer interface {
	ClearCollection(ctx context.Context) error
}

// Clear removes every document and chunk from the index. It fails with
// ErrIngestInProgress while any ingestion is running, and ingestions or
// deletions started while it runs are rejected the same way.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.mu.Lock()
	if len(o.inflight) > 0 || o.clearing {
		o.mu.Unlock()
		return ErrIngestInProgress
	}
	o.clearing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.clearing = false
		o.mu.Unlock()
	}()

	if c, ok := o.store.(clearer); ok {
		if err := c.ClearCollection(ctx); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
		o.logger.Info("Cleared index")
		return nil
	}

	docs, err := o.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, d := range docs {
		if err := o.store.RemoveDocument(ctx, d.ID); err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
	}
	o.logger.Info("Cleared index", "documents", len(docs))
	return nil
}

func (o *Orchestrator) GetDocument(ctx context.Context, id string) (*storage.Document, error) {
	return o.store.GetDocument(ctx, id)
}

func (o *Orchestrator) ListDocuments(ctx context.Context) ([]*storage.Document, error) {
	return o.store.ListDocuments(ctx)
}

// DocumentChunks returns a document's chunks in ordinal order.
func (o *Orchestrator) DocumentChunks(ctx context.Context, id string) ([]*storage.Chunk, error) {
	return o.store.Chunks(ctx, id)
}

// Status summarises the index.
type Status struct {
	Documents int                    `json:"documents"`
	Chunks    int                    `json:"chunks"`
	ByStatus  map[storage.Status]int `json:"by_status"`
	Provider  string                 `json:"provider"`
	Dimension int                    `json:"dimension"`
	Healthy   bool                   `json:"healthy"`
	Error     string                 `json:"error,omitempty"`
}

// Status reports document counts and store health.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		ByStatus:  make(map[storage.Status]int),
		Provider:  o.provider.Name(),
		Dimension: o.provider.Dimension(),
		Healthy:   true,
	}
	if err := o.store.Health(ctx); err != nil {
		st.Healthy = false
		st.Error = err.Error()
		return st, nil
	}

	docs, err := o.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	st.Documents = len(docs)
	for _, d := range docs {
		st.ByStatus[d.Status]++
		st.Chunks += d.ChunkCount
	}
	return st, nil
}
