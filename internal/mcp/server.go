package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with its orchestrator.
type Server struct {
	server *mcp.Server
	orch   *retrieval.Orchestrator
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Orchestrator *retrieval.Orchestrator
	Version      string
	Logger       *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docrag-mcp-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Index the extracted text of a document so it can be searched. Re-ingesting the same origin replaces the earlier version.",
	}, makeIngestHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Semantic search over indexed documents. Returns the best matching chunks with their cosine scores.",
	}, makeSearchHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from indexed documents. The result is classified as TEXT_ONLY, FULL_ARTIFACT (the original file) or MIXED.",
	}, makeAskHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Retrieve an indexed document record and its chunks by document id.",
	}, makeGetDocumentHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its chunks. Deleting an unknown id succeeds.",
	}, makeDeleteHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every indexed document with its processing status.",
	}, makeListHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get document and chunk counts, the embedding provider and store health.",
	}, makeStatusHandler(cfg.Orchestrator))

	return &Server{server: server, orch: cfg.Orchestrator, logger: logger}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Default: false (stateful).
	Stateless bool
}

// NewHTTPHandler creates a Streamable HTTP handler for the server, to be
// mounted at a path such as "/mcp".
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: opts.Stateless})
}
