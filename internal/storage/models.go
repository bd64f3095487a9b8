package storage

import "time"

// Status is the processing state of an ingested document.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// Document is one ingested source. Its chunks are only visible to queries
// once Status is StatusComplete.
type Document struct {
	ID          string    // UUID
	Name        string    // Display name: "pan-card.pdf"
	Origin      string    // Path or URL of the original artifact
	Size        int64     // Original size in bytes
	Type        string    // Declared type: "PDF", "IMAGE", "AUDIO", "TEXT", "MARKDOWN"
	IngestedAt  time.Time // When ingestion began
	Description string    // Free-text description, possibly LLM-generated
	ChunkCount  int       // Set once, when the document is committed
	Status      Status
	Error       string // Failure reason when Status is StatusFailed
}

// Chunk is one retrievable unit of a document.
// Start and End are rune offsets into the document's extracted text.
type Chunk struct {
	ID          string // UUID
	DocumentID  string // Links to Document.ID
	Index       int    // Ordinal within the document (0, 1, 2...)
	Start       int
	End         int
	Text        string    // Trimmed text of [Start, End)
	Metadata    string    // "heading: ..." and "keywords: ..." lines
	Length      int       // Rune length of Text
	ProcessedAt time.Time // When the chunk was embedded
	Embedding   []float32
}

// SimilarityResult pairs a chunk with its document and cosine score.
type SimilarityResult struct {
	Chunk    *Chunk
	Document *Document
	Score    float64
}

// DefaultCollectionName is the Qdrant collection used when none is configured.
const DefaultCollectionName = "docrag"

// DefaultDimension matches both embedding providers' default output size.
const DefaultDimension = 768

func cloneDocument(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	c := *doc
	return &c
}

func cloneChunk(c *Chunk) *Chunk {
	if c == nil {
		return nil
	}
	cc := *c
	cc.Embedding = append([]float32(nil), c.Embedding...)
	return &cc
}
