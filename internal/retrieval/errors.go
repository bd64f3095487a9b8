package retrieval

import "errors"

var (
	ErrIngestInProgress = errors.New("document is already being ingested")
	ErrEmptyQuery       = errors.New("query text is empty")
	ErrNoChunks         = errors.New("document produced no chunks")
	ErrInvalidEmbedding = errors.New("embedding has the wrong dimension")
	ErrMissingComponent = errors.New("orchestrator component not configured")
)
