package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound   = errors.New("document not found")
	// ErrInvalidChunk is returned by Add when a chunk does not belong to the
	// document being committed.
	ErrInvalidChunk = errors.New("invalid chunk")
)
