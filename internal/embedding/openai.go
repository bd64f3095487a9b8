package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/bull/docrag-mcp-server/internal/metrics"
)

var errEmptyResponse = errors.New("embedding response contained no data")

// OpenAI embeds each text with one request to the embeddings endpoint.
// Rate-limit responses are retried with exponential backoff; every other
// failure, and a retry budget running out, falls back to the
// deterministic vector for that text.
type OpenAI struct {
	client    *Client
	model     string
	dim       int
	batchSize int
	limiter   *rate.Limiter
	fallback  *Fallback
	logger    *slog.Logger

	newBackOff func() backoff.BackOff
}

// NewOpenAI creates an OpenAI provider. Zero config fields take package defaults.
func NewOpenAI(client *Client, cfg Config, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = DefaultBatchPause
	}

	// one batch per pause; the first batch goes out immediately
	limiter := rate.NewLimiter(rate.Every(cfg.BatchPause), 1)

	return &OpenAI{
		client:     client,
		model:      cfg.Model,
		dim:        cfg.Dimension,
		batchSize:  cfg.BatchSize,
		limiter:    limiter,
		fallback:   NewFallback(cfg.Dimension),
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

// defaultBackOff starts at 500ms, caps intervals at 10s and gives up after 30s.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Embed returns the provider's vector for text, or the fallback vector if
// the request fails. The only error returned is the context's.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		// the endpoint rejects empty input
		return o.fallback.Vector(text), nil
	}

	vec, err := o.embedWithRetry(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("embedding request failed, using fallback vector",
			"model", o.model,
			"error", err,
		)
		metrics.EmbeddingFallbacks.Inc()
		return o.fallback.Vector(text), nil
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially in groups of batchSize, waiting on
// the limiter before each group. A failing text only affects its own slot.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += o.batchSize {
		end := min(i+o.batchSize, len(texts))

		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}

		for _, text := range texts[i:end] {
			vec, err := o.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
			}
			out = append(out, vec)
		}
	}

	return out, nil
}

// embedWithRetry issues a single-text request, retrying only on HTTP 429.
func (o *OpenAI) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	operation := func() error {
		resp, err := o.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
			Model:      openai.EmbeddingModel(o.model),
			Dimensions: openai.Int(int64(o.dim)),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return backoff.Permanent(errEmptyResponse)
		}
		vec := toFloat32(resp.Data[0].Embedding)
		if !o.IsValid(vec) {
			return backoff.Permanent(fmt.Errorf("got %d dimensions, expected %d", len(vec), o.dim))
		}
		embedding = vec
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(o.newBackOff(), ctx))
	return embedding, err
}

func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) IsValid(v []float32) bool { return hasDimension(v, o.dim) }

func (o *OpenAI) Name() string { return ProviderOpenAI + ":" + o.model }

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
