// Package embedding turns text into fixed-dimension vectors.
//
// Two providers share the Provider interface: OpenAI calls the embeddings
// endpoint and Fallback derives a deterministic vector from a hash of the
// text. OpenAI degrades to Fallback per text on any failure, so embedding
// never fails for reasons other than cancellation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	ProviderOpenAI   = "openai"
	ProviderFallback = "fallback"

	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is shared by both providers. text-embedding-3 models
	// are asked for this size through the dimensions parameter.
	DefaultDimension = 768

	// DefaultBatchSize is the number of texts embedded between pauses.
	DefaultBatchSize = 10

	// DefaultBatchPause spaces out batches to stay under provider rate limits.
	DefaultBatchPause = 200 * time.Millisecond
)

var (
	ErrUnknownProvider  = errors.New("unknown embedding provider")
	ErrMissingAPIKey    = errors.New("embedding provider requires an API key")
	ErrInvalidDimension = errors.New("embedding dimension must be positive")
)

// Provider embeds text into vectors of a fixed dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// IsValid reports whether v has the provider's dimension.
	IsValid(v []float32) bool
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimension  int           `yaml:"dimension"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	BatchSize  int           `yaml:"batch_size"`
	BatchPause time.Duration `yaml:"batch_pause"`
}

// New builds the provider named by cfg.Provider. The choice is made once;
// callers only see the Provider interface.
func New(cfg Config, logger *slog.Logger) (Provider, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimension, cfg.Dimension)
	}

	switch cfg.Provider {
	case ProviderFallback, "":
		return NewFallback(cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		client, err := NewClient(cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewOpenAI(client, cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func hasDimension(v []float32, dim int) bool {
	return len(v) == dim
}
