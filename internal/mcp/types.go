// Package mcp exposes the retrieval pipeline as Model Context Protocol tools.
package mcp

import "github.com/bull/docrag-mcp-server/internal/artifact"

// IngestDocumentInput defines the input parameters for the ingest_document tool.
type IngestDocumentInput struct {
	// Text is the extracted plain text of the document.
	Text string `json:"text" jsonschema:"The extracted plain text of the document"`
	// Name is the display name, e.g. "pan-card.pdf".
	Name string `json:"name" jsonschema:"Display name of the document, e.g. pan-card.pdf"`
	// Type is the declared document type.
	Type string `json:"type,omitempty" jsonschema:"Declared type such as PDF, IMAGE, AUDIO, TEXT or MARKDOWN"`
	// Origin locates the original artifact.
	Origin string `json:"origin,omitempty" jsonschema:"Path or URL of the original file; re-ingesting the same origin replaces the earlier version"`
	// Size is the original artifact size in bytes.
	Size int64 `json:"size,omitempty" jsonschema:"Size of the original file in bytes"`
	// Description is an optional free-text description.
	Description string `json:"description,omitempty" jsonschema:"Optional description of the document"`
}

// IngestDocumentOutput reports the ingestion outcome.
type IngestDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Reason     string `json:"reason,omitempty"`
}

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of chunks to return (default 5, at most 50)"`
	// MinScore is the minimum cosine similarity.
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"Minimum cosine similarity between -1 and 1"`
}

// ChunkResult is one retrieved chunk.
type ChunkResult struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
	Metadata     string  `json:"metadata,omitempty"`
}

// SearchChunksOutput contains the search results, best first.
type SearchChunksOutput struct {
	Results []ChunkResult `json:"results"`
	// Message provides informational context (e.g., "No matching chunks found").
	Message string `json:"message,omitempty"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Question is the natural-language question.
	Question string `json:"question" jsonschema:"The question to answer from the indexed documents"`
	// MaxResults is the number of evidence chunks retrieved.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Number of evidence chunks to retrieve (default 5)"`
	// MinScore is the minimum cosine similarity for evidence.
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"Minimum cosine similarity for evidence"`
	// TypeHint names the kind of document wanted.
	TypeHint string `json:"type_hint,omitempty" jsonschema:"Kind of document the user wants, e.g. passport, used to pick the file to return"`
}

// AskOutput is the arbitrated answer.
type AskOutput struct {
	// Classification is TEXT_ONLY, FULL_ARTIFACT or MIXED.
	Classification string             `json:"classification"`
	Answer         string             `json:"answer"`
	Confidence     float64            `json:"confidence"`
	Document       *DocumentInfo      `json:"document,omitempty"`
	Artifact       *artifact.Artifact `json:"artifact,omitempty"`
	Evidence       []ChunkResult      `json:"evidence"`
}

// DocumentInfo describes an indexed document.
type DocumentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Origin      string `json:"origin,omitempty"`
	Type        string `json:"type,omitempty"`
	Size        int64  `json:"size"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	Description string `json:"description,omitempty"`
	IngestedAt  string `json:"ingested_at"`
	Error       string `json:"error,omitempty"`
}

// GetDocumentInput defines the input parameters for the get_document tool.
type GetDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the document to retrieve"`
}

// GetDocumentOutput contains a document and its chunks in ordinal order.
type GetDocumentOutput struct {
	Found    bool          `json:"found"`
	Document *DocumentInfo `json:"document,omitempty"`
	Chunks   []ChunkResult `json:"chunks"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the document to delete"`
}

// DeleteDocumentOutput confirms a deletion. Deleting an unknown id succeeds.
type DeleteDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
// This tool takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains every indexed document.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct{}

// StatusOutput summarises the index.
type StatusOutput struct {
	TotalDocs   int            `json:"total_docs"`
	TotalChunks int            `json:"total_chunks"`
	ByStatus    map[string]int `json:"by_status"`
	Provider    string         `json:"provider"`
	Dimension   int            `json:"dimension"`
	Healthy     bool           `json:"healthy"`
	Error       string         `json:"error,omitempty"`
}
