package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Fallback derives a vector from the FNV-1a hash of the text. The output
// carries no meaning; it only guarantees the same text always maps to the
// same vector, across calls and process restarts, with no network access.
type Fallback struct {
	dim int
}

// NewFallback returns a Fallback producing vectors of the given dimension.
func NewFallback(dimension int) *Fallback {
	return &Fallback{dim: dimension}
}

// Vector computes the fallback vector for text. Coordinates lie in [-0.1, 0.1].
func (f *Fallback) Vector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := float64(h.Sum64() % 1_000_003)

	v := make([]float32, f.dim)
	for i := range v {
		x := seed*float64(i+1)/1000 + float64(i)
		v[i] = float32(0.1 * math.Sin(x))
	}
	return v
}

func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Vector(text), nil
}

func (f *Fallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = f.Vector(t)
	}
	return out, nil
}

func (f *Fallback) Dimension() int { return f.dim }

func (f *Fallback) IsValid(v []float32) bool { return hasDimension(v, f.dim) }

func (f *Fallback) Name() string { return ProviderFallback }
