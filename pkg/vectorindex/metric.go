// Package vectorindex implements the substrate's HNSW approximate
// nearest-neighbor index over six selectable similarity metrics, plus
// the warm decoded-vector cache that sits in front of it.
package vectorindex

import (
	"math"

	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// Distance returns how far apart a and b are under metric: smaller is
// closer. The HNSW distance computations (searchLayer,
// searchLayerSingle, selectNeighbors) go through this one function, so
// adding a metric never touches the graph-construction code.
func Distance(metric model.SimilarityMetric, a, b []float32) float64 {
	switch metric {
	case model.MetricCosine:
		return 1.0 - cosineSimilarity(a, b)
	case model.MetricL2:
		return euclideanDistance(a, b)
	case model.MetricL1:
		return manhattanDistance(a, b)
	case model.MetricDot:
		return -dotProduct(a, b)
	case model.MetricJaccard:
		return 1.0 - jaccardSimilarity(a, b)
	case model.MetricHamming:
		return hammingDistance(a, b)
	default:
		return 1.0 - cosineSimilarity(a, b)
	}
}

// Score maps a Distance value to a similarity score that is strictly
// decreasing in distance over the whole real line. Metrics whose
// distances are non-negative (cosine, L1, L2, Jaccard, Hamming) land
// in (0, 1]; dot-product distances go negative for aligned vectors
// (Distance is -dot), and those map above 1 rather than through the
// 1/(1+d) pole at d = -1.
func Score(d float64) float64 {
	if d < 0 {
		return 1.0 - d
	}
	return 1.0 / (1.0 + d)
}

// cosineSimilarity uses float64 accumulation even over float32 inputs
// for precision.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProd, normA, normB float64
	for i := range a {
		dotProd += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}

// dotProduct is DotProduct from similarity.go, unchanged.
func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i] * b[i])
	}
	return sum
}

// euclideanDistance is the plain (non-similarity-transformed)
// Euclidean distance that similarity.go's EuclideanSimilarity derives
// its 1/(1+d) score from; HNSW needs the raw distance, not the score.
func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// manhattanDistance (L1) sums absolute coordinate differences.
func manhattanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i] - b[i]))
	}
	return sum
}

// jaccardSimilarity treats each vector as a multiset of weighted
// dimensions, generalizing the set-Jaccard index
// (|A∩B|/|A∪B|) to real-valued vectors via min/max per dimension —
// the standard "weighted Jaccard" extension, appropriate for
// non-negative feature vectors like term-frequency embeddings.
func jaccardSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var minSum, maxSum float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		if x < y {
			minSum += x
			maxSum += y
		} else {
			minSum += y
			maxSum += x
		}
	}
	if maxSum == 0 {
		return 0
	}
	return minSum / maxSum
}

// hammingDistance counts differing dimensions after thresholding each
// value at zero, treating the vector as a binary sketch — the usual
// way Hamming distance is applied to continuous embeddings.
func hammingDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var diff float64
	for i := range a {
		if (a[i] > 0) != (b[i] > 0) {
			diff++
		}
	}
	return diff
}

// normalize returns a unit-length copy of vec, matching pkg/math/
// vector/similarity.go's Normalize. Only cosine similarity benefits
// from this; Index.shouldNormalize applies it for the cosine metric
// alone.
func normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v * v)
	}
	if sumSquares == 0 {
		return append([]float32(nil), vec...)
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
