package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-3, 0.5, 2}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-1, -2, -3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityBounds(t *testing.T) {
	vectors := [][]float32{
		{1e-20, 3e20, -7},
		{0.1, 0.1, 0.1},
		{-0.5, 0.25, 1e-3},
		{42, -42, 42},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			sim := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, sim, -1.0)
			assert.LessOrEqual(t, sim, 1.0)
		}
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	v := []float32{0, -0.0, 1, -1, 0.1, float32(math.Pi), math.SmallestNonzeroFloat32, math.MaxFloat32}

	got := DecodeVector(EncodeVector(v))

	assert.Len(t, got, len(v))
	for i := range v {
		assert.Equal(t, math.Float32bits(v[i]), math.Float32bits(got[i]), "coordinate %d", i)
	}
}
