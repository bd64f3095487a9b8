package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docrag-mcp-server/internal/arbiter"
	"github.com/bull/docrag-mcp-server/internal/artifact"
	"github.com/bull/docrag-mcp-server/internal/chunker"
	"github.com/bull/docrag-mcp-server/internal/embedding"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

const testDim = 16

const passportText = `PASSPORT RENEWAL:
Submit the renewal form at the passport office with two photographs. The passport office accepts payment by card only.

FEES:
The renewal fee is 1500 rupees for thirty six pages. Urgent renewal costs an additional 2000 rupees and takes three working days.`

func testChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	ch, err := chunker.New(chunker.Config{
		TargetSize:              120,
		Overlap:                 20,
		MinSize:                 20,
		MaxSize:                 240,
		PreferSentenceBoundary:  true,
		PreferParagraphBoundary: true,
	})
	require.NoError(t, err)
	return ch
}

func newTestOrchestrator(t *testing.T, mutate func(*Deps)) (*Orchestrator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(testDim)
	deps := Deps{
		Chunker:  testChunker(t),
		Provider: embedding.NewFallback(testDim),
		Store:    store,
	}
	if mutate != nil {
		mutate(&deps)
	}
	o, err := New(deps)
	require.NoError(t, err)
	return o, store
}

// stubProvider wraps the fallback and lets tests intercept EmbedBatch.
type stubProvider struct {
	*embedding.Fallback
	embedBatch func(ctx context.Context, texts []string) ([][]float32, error)
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedBatch != nil {
		return s.embedBatch(ctx, texts)
	}
	return s.Fallback.EmbedBatch(ctx, texts)
}

type stubGenerator struct {
	answer string
	err    error
}

func (g stubGenerator) Generate(context.Context, string, string) (string, error) {
	return g.answer, g.err
}

type stubDescriber struct{ calls int }

func (d *stubDescriber) Describe(_ context.Context, name, _, _ string) (string, error) {
	d.calls++
	return "Description of " + name, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{
		Chunker:  testChunker(t),
		Provider: embedding.NewFallback(8),
		Store:    storage.NewMemoryStore(16),
	})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	_, err = New(Deps{Provider: embedding.NewFallback(8), Store: storage.NewMemoryStore(8)})
	assert.ErrorIs(t, err, ErrMissingComponent)
}

func TestIngest_CommitsCompleteDocument(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "passport-guide.txt", Type: "TEXT", Text: passportText})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Greater(t, res.ChunkCount, 1)
	assert.Empty(t, res.Reason)

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusComplete, doc.Status)
	assert.Equal(t, res.ChunkCount, doc.ChunkCount)
	assert.Equal(t, int64(len(passportText)), doc.Size)

	chunks, err := o.DocumentChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, res.ChunkCount)

	runes := []rune(passportText)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, strings.TrimSpace(string(runes[c.Start:c.End])), c.Text)
		assert.Equal(t, len([]rune(c.Text)), c.Length)
		assert.Len(t, c.Embedding, testDim)
		assert.False(t, c.ProcessedAt.IsZero())
	}
}

func TestSearch_FindsIngestedChunk(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.NoError(t, err)
	chunks, err := o.DocumentChunks(ctx, res.DocumentID)
	require.NoError(t, err)

	// The fallback embeds identical text identically, so a chunk's own
	// text is its best match.
	results, err := o.Search(ctx, chunks[1].Text, 3, -1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, chunks[1].ID, results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, res.DocumentID, results[0].Document.ID)

	_, err = o.Search(ctx, "   ", 3, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIngest_TooShortFails(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "tiny", Text: "Too short."})
	assert.ErrorIs(t, err, ErrNoChunks)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "no chunks")

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, doc.Status)
	assert.Equal(t, res.Reason, doc.Error)
}

func TestIngest_EmbeddingFailureLeavesNoChunks(t *testing.T) {
	provider := &stubProvider{
		Fallback: embedding.NewFallback(testDim),
		embedBatch: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("provider exploded")
		},
	}
	o, store := newTestOrchestrator(t, func(d *Deps) { d.Provider = provider })
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "provider exploded")

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, doc.Status)
	assert.Zero(t, doc.ChunkCount)

	chunks, err := store.Chunks(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngest_WrongDimensionFails(t *testing.T) {
	provider := &stubProvider{
		Fallback: embedding.NewFallback(testDim),
		embedBatch: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = make([]float32, testDim-1)
			}
			return out, nil
		},
	}
	o, _ := newTestOrchestrator(t, func(d *Deps) { d.Provider = provider })

	res, err := o.Ingest(context.Background(), IngestRequest{Name: "guide", Text: passportText})
	assert.ErrorIs(t, err, ErrInvalidEmbedding)
	assert.False(t, res.Success)
}

func TestIngest_CancelledBeforeCommitIsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fallback := embedding.NewFallback(testDim)
	provider := &stubProvider{
		Fallback: fallback,
		embedBatch: func(_ context.Context, texts []string) ([][]float32, error) {
			// Vectors are produced, then the caller gives up.
			out, err := fallback.EmbedBatch(context.Background(), texts)
			cancel()
			return out, err
		},
	}
	o, store := newTestOrchestrator(t, func(d *Deps) { d.Provider = provider })

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	doc, err := store.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, doc.Status, "a cancelled ingestion is never left PROCESSING or COMPLETE")

	chunks, err := store.Chunks(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngest_RejectsConcurrentSameDocument(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	fallback := embedding.NewFallback(testDim)
	provider := &stubProvider{
		Fallback: fallback,
		embedBatch: func(ctx context.Context, texts []string) ([][]float32, error) {
			close(started)
			<-proceed
			return fallback.EmbedBatch(ctx, texts)
		},
	}
	o, _ := newTestOrchestrator(t, func(d *Deps) { d.Provider = provider })
	ctx := context.Background()

	var wg sync.WaitGroup
	var first *IngestResult
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: passportText})
	}()
	<-started

	_, err := o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: passportText})
	assert.ErrorIs(t, err, ErrIngestInProgress)
	assert.ErrorIs(t, o.Delete(ctx, "doc-1"), ErrIngestInProgress)

	close(proceed)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.True(t, first.Success)
	assert.Equal(t, "doc-1", first.DocumentID)
}

func TestIngest_ReplacesSameOrigin(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	old, err := o.Ingest(ctx, IngestRequest{Name: "guide", Origin: "/docs/guide.txt", Text: passportText})
	require.NoError(t, err)
	other, err := o.Ingest(ctx, IngestRequest{Name: "other", Origin: "/docs/other.txt", Text: passportText})
	require.NoError(t, err)
	updated, err := o.Ingest(ctx, IngestRequest{Name: "guide", Origin: "/docs/guide.txt", Text: passportText + " Updated."})
	require.NoError(t, err)

	_, err = store.GetDocument(ctx, old.DocumentID)
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
	_, err = store.GetDocument(ctx, other.DocumentID)
	assert.NoError(t, err)
	_, err = store.GetDocument(ctx, updated.DocumentID)
	assert.NoError(t, err)
}

func TestIngest_FailedReingestKeepsPriorVersion(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	prior, err := o.Ingest(ctx, IngestRequest{Name: "guide", Origin: "/docs/guide.txt", Text: passportText})
	require.NoError(t, err)

	_, err = o.Ingest(ctx, IngestRequest{Name: "guide", Origin: "/docs/guide.txt", Text: "short"})
	require.Error(t, err)

	doc, err := store.GetDocument(ctx, prior.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusComplete, doc.Status)
}

func TestIngest_FailedReingestByIDKeepsPriorVersion(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	prior, err := o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: passportText})
	require.NoError(t, err)
	before, err := o.Search(ctx, "passport renewal", 10, -1)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	res, err := o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: "short"})
	assert.ErrorIs(t, err, ErrNoChunks)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusComplete, doc.Status)
	assert.Equal(t, prior.ChunkCount, doc.ChunkCount)
	assert.Empty(t, doc.Error)

	after, err := o.Search(ctx, "passport renewal", 10, -1)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestIngest_ReingestByIDReplacesChunks(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	_, err := o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: passportText})
	require.NoError(t, err)

	replacement := "VISA:\nThe tourist visa allows a stay of ninety days and must be renewed at the consulate."
	res, err := o.Ingest(ctx, IngestRequest{ID: "doc-1", Name: "guide", Text: replacement})
	require.NoError(t, err)
	assert.True(t, res.Success)

	chunks, err := store.Chunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, res.ChunkCount)
	for _, c := range chunks {
		assert.NotContains(t, c.Text, "PASSPORT")
	}
}

func TestIngest_Describer(t *testing.T) {
	describer := &stubDescriber{}
	o, store := newTestOrchestrator(t, func(d *Deps) { d.Describer = describer })
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.NoError(t, err)
	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Description of guide", doc.Description)

	_, err = o.Ingest(ctx, IngestRequest{Name: "guide2", Description: "given", Text: passportText})
	require.NoError(t, err)
	assert.Equal(t, 1, describer.calls, "supplied descriptions are kept")
}

func TestIngest_DefaultName(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Origin: "/scans/pan-card.pdf", Text: passportText})
	require.NoError(t, err)
	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "pan-card.pdf", doc.Name)
}

func TestDelete_RemovesFromSearch(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.NoError(t, err)

	require.NoError(t, o.Delete(ctx, res.DocumentID))
	require.NoError(t, o.Delete(ctx, res.DocumentID), "deleting twice is a no-op")

	results, err := o.Search(ctx, "passport renewal fee", 10, -1)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, res.DocumentID, r.Document.ID)
	}
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("generator tag is arbitrated", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, func(d *Deps) {
			d.Generator = stubGenerator{answer: "The fee is 1500 rupees. [RESPONSE_TYPE: TEXT_ONLY]"}
		})
		_, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
		require.NoError(t, err)

		res, err := o.Answer(ctx, AnswerRequest{Query: "What is the renewal fee?", Threshold: -1})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Results)
		assert.LessOrEqual(t, len(res.Results), DefaultTopK)
		assert.Equal(t, arbiter.TextOnly, res.Decision.Classification)
		assert.Equal(t, "The fee is 1500 rupees.", res.Decision.Text)
		assert.Equal(t, 0.8, res.Decision.Confidence)
	})

	t.Run("generator failure degrades to extractive", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, func(d *Deps) {
			d.Generator = stubGenerator{err: errors.New("llm down")}
		})
		_, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
		require.NoError(t, err)

		res, err := o.Answer(ctx, AnswerRequest{Query: "renewal fee", K: 2, Threshold: -1})
		require.NoError(t, err)
		assert.Len(t, res.Results, 2)
		assert.Equal(t, arbiter.TextOnly, res.Decision.Classification)
		assert.Equal(t, strings.TrimSpace(res.Results[0].Chunk.Text), res.Decision.Text)
	})

	t.Run("full file resolves artifact", func(t *testing.T) {
		resolver := artifact.Chain{resolverFunc(func(doc *storage.Document) *artifact.Artifact {
			return &artifact.Artifact{DocumentID: doc.ID, Location: doc.Origin}
		})}
		o, _ := newTestOrchestrator(t, func(d *Deps) {
			d.Generator = stubGenerator{answer: "Here it is. [RESPONSE_TYPE: FULL_FILE]"}
			d.Arbiter = arbiter.New(resolver, nil)
		})
		ingested, err := o.Ingest(ctx, IngestRequest{Name: "guide", Origin: "/docs/guide.pdf", Text: passportText})
		require.NoError(t, err)

		res, err := o.Answer(ctx, AnswerRequest{Query: "show me the guide", Threshold: -1})
		require.NoError(t, err)
		assert.Equal(t, arbiter.FullArtifact, res.Decision.Classification)
		require.NotNil(t, res.Decision.Artifact)
		assert.Equal(t, ingested.DocumentID, res.Decision.Artifact.DocumentID)
	})

	t.Run("empty store", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, nil)
		res, err := o.Answer(ctx, AnswerRequest{Query: "anything"})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
		assert.Equal(t, arbiter.TextOnly, res.Decision.Classification)
	})
}

type resolverFunc func(*storage.Document) *artifact.Artifact

func (f resolverFunc) Resolve(_ context.Context, doc *storage.Document) (*artifact.Artifact, error) {
	return f(doc), nil
}

func TestStatus(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	ok, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.NoError(t, err)
	_, err = o.Ingest(ctx, IngestRequest{Name: "tiny", Text: "x"})
	require.Error(t, err)

	st, err := o.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Healthy)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, ok.ChunkCount, st.Chunks)
	assert.Equal(t, 1, st.ByStatus[storage.StatusComplete])
	assert.Equal(t, 1, st.ByStatus[storage.StatusFailed])
	assert.Equal(t, embedding.ProviderFallback, st.Provider)
	assert.Equal(t, testDim, st.Dimension)
}

func TestClear(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := o.Ingest(ctx, IngestRequest{Name: name, Text: passportText})
		require.NoError(t, err)
	}

	require.NoError(t, o.Clear(ctx))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	results, err := o.Search(ctx, "passport renewal", 5, -1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClear_RejectedDuringIngest(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	require.True(t, o.acquire("busy"))
	defer o.release("busy")

	assert.ErrorIs(t, o.Clear(context.Background()), ErrIngestInProgress)
}

// gatedStore blocks ListDocuments until released.
type gatedStore struct {
	*storage.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListDocuments(ctx context.Context) ([]*storage.Document, error) {
	close(g.entered)
	<-g.release
	return g.MemoryStore.ListDocuments(ctx)
}

func TestClear_RejectsIngestWhileRunning(t *testing.T) {
	store := &gatedStore{
		MemoryStore: storage.NewMemoryStore(testDim),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	o, err := New(Deps{Chunker: testChunker(t), Provider: embedding.NewFallback(testDim), Store: store})
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- o.Clear(ctx) }()
	<-store.entered

	_, err = o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	assert.ErrorIs(t, err, ErrIngestInProgress)
	assert.ErrorIs(t, o.Delete(ctx, "any"), ErrIngestInProgress)
	assert.ErrorIs(t, o.Clear(ctx), ErrIngestInProgress)

	close(store.release)
	require.NoError(t, <-done)

	res, err := o.Ingest(ctx, IngestRequest{Name: "guide", Text: passportText})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
