package knowledge

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyVector       = errors.New("knowledge: vector is empty")
	ErrZeroVector        = errors.New("knowledge: vector has zero magnitude")
	ErrDimensionMismatch = errors.New("knowledge: vector dimensions differ")
)

// CosineSimilarity returns dot(a,b)/(|a||b|) in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors just past 1
	return math.Max(-1, math.Min(1, score)), nil
}
