package storage

import (
	"encoding/binary"
	"math"
)

// CosineSimilarity returns dot(a,b) / (|a| * |b|). It is 0 when the vectors
// differ in length or either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push parallel vectors just past the bounds
	return math.Max(-1, math.Min(1, sim))
}

// EncodeVector serializes a vector as little-endian float32 bits.
// DecodeVector(EncodeVector(v)) reproduces v bit for bit.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}
