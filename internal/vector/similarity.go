package vector

import (
	"fmt"
	"math"
	"sort"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
// Products are accumulated in float64 so every backend scores identically.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales x in place to unit L2 norm using the same float64 accumulation as
// L2Norm, so a normalized vector passes the query check. A zero vector is left unchanged.
func Normalize(x []float32) {
	n := L2Norm(x)
	if n == 0 {
		return
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / n)
	}
}

// checkQuery validates a query against an index of the given dimensionality.
func checkQuery(query []float32, dimensions int) error {
	if len(query) != dimensions {
		return fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), dimensions)
	}
	if norm := L2Norm(query); math.Abs(norm-1) > unitTolerance {
		return fmt.Errorf("%w: norm %.4f", ErrNotNormalized, norm)
	}
	return nil
}

// scored is a candidate before its metadata is attached.
type scored struct {
	pos   int
	score float64
}

// rankedBefore is the single ordering rule for search results:
// higher similarity first, then lower position.
func rankedBefore(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.pos < b.pos
}

func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool { return rankedBefore(s[i], s[j]) })
}

// mergeTopK merges per-partition top-k lists into one global top-k.
func mergeTopK(partials [][]scored, k int) []scored {
	total := 0
	for _, p := range partials {
		total += len(p)
	}
	merged := make([]scored, 0, total)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sortScored(merged)
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged
}
