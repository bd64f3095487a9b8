// Package app builds every pipeline component once from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bull/docrag-mcp-server/internal/answer"
	"github.com/bull/docrag-mcp-server/internal/arbiter"
	"github.com/bull/docrag-mcp-server/internal/artifact"
	"github.com/bull/docrag-mcp-server/internal/chunker"
	"github.com/bull/docrag-mcp-server/internal/config"
	"github.com/bull/docrag-mcp-server/internal/embedding"
	"github.com/bull/docrag-mcp-server/internal/github"
	"github.com/bull/docrag-mcp-server/internal/markdown"
	"github.com/bull/docrag-mcp-server/internal/metadata"
	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        storage.Store
	Provider     embedding.Provider
	Orchestrator *retrieval.Orchestrator
	GitHub       *github.Client
	Converter    *markdown.Converter
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore opens the configured vector store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(cfg.Dimension), nil
	case config.BackendSQLite:
		return storage.NewSQLiteStore(cfg.SQLitePath, cfg.Dimension)
	case config.BackendQdrant:
		store, err := storage.NewQdrantStorage(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// New wires the pipeline. With an OpenAI API key configured, answers (and
// descriptions, when llm.describe is set) come from the chat model;
// otherwise answers are extractive.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, err
	}

	provider, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	gh, err := github.NewClient(cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	resolver := artifact.Chain{
		artifact.FileResolver{Root: cfg.Artifacts.Root},
		artifact.GitHubResolver{Client: gh},
	}

	deps := retrieval.Deps{
		Chunker:  ch,
		Provider: provider,
		Store:    store,
		Arbiter:  arbiter.New(resolver, logger),
		Logger:   logger,
	}

	if cfg.Embedding.APIKey != "" {
		client, err := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Generator = answer.NewOpenAI(client.Client(), cfg.LLM.ChatModel)
		if cfg.LLM.Describe {
			deps.Describer = metadata.NewGenerator(client.Client(), cfg.LLM.ChatModel, cfg.LLM.MaxTokens, logger)
		}
	}

	orch, err := retrieval.New(deps)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("Pipeline ready",
		"store", cfg.Store.Backend,
		"provider", provider.Name(),
		"dimension", provider.Dimension(),
		"llm", deps.Generator != nil,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Provider:     provider,
		Orchestrator: orch,
		GitHub:       gh,
		Converter:    markdown.NewConverter(0),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// IsConfigError reports whether err came from invalid configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, chunker.ErrInvalidConfig) ||
		errors.Is(err, storage.ErrDimensionMismatch)
}
