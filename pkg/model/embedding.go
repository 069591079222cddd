package model

import "github.com/tabagent/nornicsubstrate/pkg/dberr"

// SimilarityMetric names the distance/similarity function a vector
// index evaluates embeddings under.
type SimilarityMetric string

const (
	MetricCosine   SimilarityMetric = "cosine"
	MetricL2       SimilarityMetric = "l2"
	MetricL1       SimilarityMetric = "l1"
	MetricDot      SimilarityMetric = "dot"
	MetricJaccard  SimilarityMetric = "jaccard"
	MetricHamming  SimilarityMetric = "hamming"
)

// Embedding is a dimensionality-tagged vector record, owned by the
// node that references it via its EmbeddingID field. Embeddings never
// reference their owning node back: ownership flows one direction,
// node -> embedding.
type Embedding struct {
	ID        EmbeddingID
	Dimension int
	Vector    []float32
	Metric    SimilarityMetric
	Model     string // name of the model that produced Vector
	Metadata  string // JSON-as-string
}

// Validate checks the embedding's vector length matches its declared
// dimension, and that its metric is one the vector index recognizes.
func (e *Embedding) Validate() error {
	if e.ID == "" {
		return dberr.NewValidation("id", "must not be empty")
	}
	if e.Dimension <= 0 {
		return dberr.NewValidation("dimension", "must be positive")
	}
	if len(e.Vector) != e.Dimension {
		return dberr.ErrDimensionMismatch
	}
	switch e.Metric {
	case MetricCosine, MetricL2, MetricL1, MetricDot, MetricJaccard, MetricHamming:
	default:
		return dberr.NewValidation("metric", "unrecognized similarity metric")
	}
	return nil
}
