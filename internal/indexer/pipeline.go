// Package indexer ingests every document of a text source.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/source"
)

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Revision       string // Source revision, e.g. a commit SHA, when known
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Ingester is the part of the orchestrator the pipeline drives.
type Ingester interface {
	Ingest(ctx context.Context, req retrieval.IngestRequest) (*retrieval.IngestResult, error)
}

// revisioned sources can report the revision being indexed.
type revisioned interface {
	Revision(ctx context.Context) (string, error)
}

// Pipeline feeds every document of a source through an Ingester.
type Pipeline struct {
	source   source.Source
	ingester Ingester
	logger   *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(src source.Source, ingester Ingester, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   src,
		ingester: ingester,
		logger:   logger,
	}
}

// IndexAll lists the source and ingests each document in order.
// Per-document failures are collected in the result; only listing errors
// and cancellation abort the run.
func (p *Pipeline) IndexAll(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	if r, ok := p.source.(revisioned); ok {
		rev, err := r.Revision(ctx)
		if err != nil {
			return nil, fmt.Errorf("get revision: %w", err)
		}
		result.Revision = rev
	}
	p.logger.Info("Starting indexing", "revision", result.Revision)

	keys, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(keys)
	p.logger.Info("Found documents", "count", len(keys))

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		chunks, err := p.processDocument(ctx, key)
		if err != nil {
			p.logger.Warn("Failed to process document", "path", key, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   key,
				Reason: err.Error(),
			})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

// processDocument fetches and ingests one document, returning its chunk count.
func (p *Pipeline) processDocument(ctx context.Context, key string) (int, error) {
	item, err := p.source.Fetch(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched document", "path", key, "size", item.Size)

	res, err := p.ingester.Ingest(ctx, retrieval.IngestRequest{
		Name:        item.Name,
		Type:        item.Type,
		Size:        item.Size,
		Origin:      item.Origin,
		Description: item.Description,
		Text:        item.Text,
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	return res.ChunkCount, nil
}
