package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxResultsLimit = 50

// makeIngestHandler creates the ingest_document tool handler.
// A document that fails to chunk or embed is reported with Success false
// rather than as a tool error; only a rejected request is an error.
func makeIngestHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, IngestDocumentOutput, error,
	) {
		result, err := orch.Ingest(ctx, retrieval.IngestRequest{
			Name:        input.Name,
			Type:        input.Type,
			Size:        input.Size,
			Origin:      input.Origin,
			Description: input.Description,
			Text:        input.Text,
		})
		if result == nil {
			return nil, IngestDocumentOutput{}, fmt.Errorf("failed to ingest document: %w", err)
		}
		return nil, IngestDocumentOutput{
			DocumentID: result.DocumentID,
			Success:    result.Success,
			ChunkCount: result.ChunkCount,
			Reason:     result.Reason,
		}, nil
	}
}

// makeSearchHandler creates the search_chunks tool handler.
func makeSearchHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		results, err := orch.Search(ctx, input.Query, maxResults(input.MaxResults), minScore(input.MinScore))
		if err != nil {
			return nil, SearchChunksOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchChunksOutput{Results: toChunkResults(results)}
		if len(out.Results) == 0 {
			out.Message = "No matching chunks found. Try broader search terms or a lower min_score."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask tool handler.
// Retrieval, answer generation and arbitration all happen in the orchestrator;
// the handler only shapes the decision for the client.
func makeAskHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		qr, err := orch.Answer(ctx, retrieval.AnswerRequest{
			Query:     input.Question,
			K:         maxResults(input.MaxResults),
			Threshold: minScore(input.MinScore),
			TypeHint:  input.TypeHint,
		})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		d := qr.Decision
		out := AskOutput{
			Classification: string(d.Classification),
			Answer:         d.Text,
			Confidence:     d.Confidence,
			Artifact:       d.Artifact,
			Evidence:       toChunkResults(qr.Results),
		}
		if d.Document != nil {
			info := toDocumentInfo(d.Document)
			out.Document = &info
		}
		return nil, out, nil
	}
}

// makeGetDocumentHandler creates the get_document tool handler.
// Returns the document record and its chunks in ordinal order.
func makeGetDocumentHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		doc, err := orch.GetDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				return nil, GetDocumentOutput{Found: false, Chunks: []ChunkResult{}}, nil
			}
			return nil, GetDocumentOutput{}, fmt.Errorf("failed to get document: %w", err)
		}

		chunks, err := orch.DocumentChunks(ctx, input.DocumentID)
		if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
			return nil, GetDocumentOutput{}, fmt.Errorf("failed to get chunks: %w", err)
		}

		info := toDocumentInfo(doc)
		out := GetDocumentOutput{Found: true, Document: &info, Chunks: make([]ChunkResult, 0, len(chunks))}
		for _, c := range chunks {
			out.Chunks = append(out.Chunks, ChunkResult{
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				ChunkIndex:   c.Index,
				Text:         c.Text,
				Metadata:     c.Metadata,
			})
		}
		return nil, out, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
func makeDeleteHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		if input.DocumentID == "" {
			return nil, DeleteDocumentOutput{}, errors.New("document_id is required")
		}
		if err := orch.Delete(ctx, input.DocumentID); err != nil {
			return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
		}
		return nil, DeleteDocumentOutput{DocumentID: input.DocumentID, Deleted: true}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := orch.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, 0, len(docs))
		for _, d := range docs {
			infos = append(infos, toDocumentInfo(d))
		}
		return nil, ListDocumentsOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// An unhealthy store is reported in the output, not as a tool error.
func makeStatusHandler(orch *retrieval.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		st, err := orch.Status(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("store_error: %w", err)
		}

		byStatus := make(map[string]int, len(st.ByStatus))
		for s, n := range st.ByStatus {
			byStatus[string(s)] = n
		}
		return nil, StatusOutput{
			TotalDocs:   st.Documents,
			TotalChunks: st.Chunks,
			ByStatus:    byStatus,
			Provider:    st.Provider,
			Dimension:   st.Dimension,
			Healthy:     st.Healthy,
			Error:       st.Error,
		}, nil
	}
}

func maxResults(n int) int {
	switch {
	case n <= 0:
		return retrieval.DefaultTopK
	case n > maxResultsLimit:
		return maxResultsLimit
	default:
		return n
	}
}

func minScore(s *float64) float64 {
	if s == nil {
		return retrieval.DefaultThreshold
	}
	return *s
}

func toChunkResults(results []storage.SimilarityResult) []ChunkResult {
	out := make([]ChunkResult, 0, len(results))
	for _, r := range results {
		cr := ChunkResult{
			DocumentID: r.Chunk.DocumentID,
			ChunkIndex: r.Chunk.Index,
			Score:      r.Score,
			Text:       r.Chunk.Text,
			Metadata:   r.Chunk.Metadata,
		}
		if r.Document != nil {
			cr.DocumentName = r.Document.Name
		}
		out = append(out, cr)
	}
	return out
}

func toDocumentInfo(d *storage.Document) DocumentInfo {
	return DocumentInfo{
		ID:          d.ID,
		Name:        d.Name,
		Origin:      d.Origin,
		Type:        d.Type,
		Size:        d.Size,
		Status:      string(d.Status),
		ChunkCount:  d.ChunkCount,
		Description: d.Description,
		IngestedAt:  d.IngestedAt.UTC().Format(time.RFC3339),
		Error:       d.Error,
	}
}
