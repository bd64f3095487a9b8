// Package config loads docrag settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bull/docrag-mcp-server/internal/chunker"
	"github.com/bull/docrag-mcp-server/internal/embedding"
	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Backend    string       `yaml:"backend"`
	Dimension  int          `yaml:"dimension"` // 0 follows embedding.dimension
	SQLitePath string       `yaml:"sqlite_path"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// LLMConfig configures answer and description generation. Both need an
// OpenAI API key; without one answers are extractive.
type LLMConfig struct {
	ChatModel string `yaml:"chat_model"`
	Describe  bool   `yaml:"describe"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ServerConfig configures the MCP server binary.
type ServerConfig struct {
	Port string `yaml:"port"`
	HTTP bool   `yaml:"http"` // Serve MCP over HTTP instead of stdio
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// GitHubConfig configures the GitHub client used for syncing and artifacts.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// ArtifactConfig locates original files for relative document origins.
type ArtifactConfig struct {
	Root string `yaml:"root"`
}

// Config is the root application configuration.
type Config struct {
	Chunker   chunker.Config   `yaml:"chunker"`
	Embedding embedding.Config `yaml:"embedding"`
	Store     StoreConfig      `yaml:"store"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
	LLM       LLMConfig        `yaml:"llm"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	GitHub    GitHubConfig     `yaml:"github"`
	Artifacts ArtifactConfig   `yaml:"artifacts"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Chunker: chunker.DefaultConfig(),
		Embedding: embedding.Config{
			Provider:   embedding.ProviderFallback,
			Model:      embedding.DefaultModel,
			Dimension:  embedding.DefaultDimension,
			BatchSize:  embedding.DefaultBatchSize,
			BatchPause: embedding.DefaultBatchPause,
		},
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: "docrag.db",
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: storage.DefaultCollectionName,
			},
		},
		Retrieval: RetrievalConfig{
			TopK:      retrieval.DefaultTopK,
			Threshold: retrieval.DefaultThreshold,
		},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and environment overrides,
// then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if cfg.Store.Dimension == 0 {
		cfg.Store.Dimension = cfg.Embedding.Dimension
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvInt("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.APIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.BaseURL)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Store.Qdrant.Host)
	cfg.Store.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Store.Qdrant.Port)

	cfg.LLM.ChatModel = getEnv("CHAT_MODEL", cfg.LLM.ChatModel)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.HTTP = getEnv("SERVER_MODE", strconv.FormatBool(cfg.Server.HTTP)) == "true"

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("%w: chunker: %w", ErrInvalidConfig, err)
	}

	switch c.Embedding.Provider {
	case embedding.ProviderFallback:
	case embedding.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: embedding provider %q requires OPENAI_API_KEY", ErrInvalidConfig, c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalidConfig, c.Embedding.Dimension)
	}
	if c.Store.Dimension != 0 && c.Store.Dimension != c.Embedding.Dimension {
		return fmt.Errorf("%w: store dimension %d does not match embedding dimension %d: %w",
			ErrInvalidConfig, c.Store.Dimension, c.Embedding.Dimension, storage.ErrDimensionMismatch)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite backend requires store.sqlite_path", ErrInvalidConfig)
		}
	case BackendQdrant:
		if c.Store.Qdrant.Host == "" || c.Store.Qdrant.Port <= 0 {
			return fmt.Errorf("%w: qdrant backend requires host and port", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("%w: retrieval.threshold must be within [-1, 1]", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
