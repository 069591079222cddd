package codec

import (
	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

const kindEmbedding byte = 0x60

// EncodeEmbedding renders an Embedding into its on-disk buffer. Field
// order: [0] ID, [1] Dimension, [2] Metric, [3] Vector, [4] Metadata,
// [5] Model.
func EncodeEmbedding(e *model.Embedding) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return NewEncoder(kindEmbedding).
		PutString(string(e.ID)).
		PutUint64(uint64(e.Dimension)).
		PutString(string(e.Metric)).
		PutFloat32Slice(e.Vector).
		PutString(e.Metadata).
		PutString(e.Model).
		Bytes(), nil
}

// DecodeEmbedding fully materializes an Embedding from its on-disk buffer.
func DecodeEmbedding(buf []byte) (*model.Embedding, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if rec.kind != kindEmbedding {
		return nil, dberr.ErrCorrupted
	}
	id, _ := rec.String(0)
	dim, _ := rec.Uint64(1)
	metric, _ := rec.String(2)
	vec, err := rec.Float32Slice(3)
	if err != nil {
		return nil, err
	}
	meta, _ := rec.String(4)
	modelName, _ := rec.String(5)
	return &model.Embedding{
		ID:        model.EmbeddingID(id),
		Dimension: int(dim),
		Metric:    model.SimilarityMetric(metric),
		Vector:    vec,
		Metadata:  meta,
		Model:     modelName,
	}, nil
}

// EmbeddingRef is a zero-copy view over an encoded Embedding buffer.
// Its Vector accessor still allocates a []float32 — Badger's value
// log stores the packed bytes little-endian, and Go has no safe way
// to alias a []byte as a []float32 without an unsafe cast this module
// avoids — but it allocates exactly one slice, not a field-by-field
// struct walk.
type EmbeddingRef struct {
	rec *Record
}

// NewEmbeddingRef decodes buf's field table.
func NewEmbeddingRef(buf []byte) (*EmbeddingRef, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if rec.kind != kindEmbedding {
		return nil, dberr.ErrCorrupted
	}
	return &EmbeddingRef{rec: rec}, nil
}

// Dimension returns the embedding's declared dimension.
func (r *EmbeddingRef) Dimension() (int, error) {
	d, err := r.rec.Uint64(1)
	return int(d), err
}

// Metric returns the embedding's similarity metric.
func (r *EmbeddingRef) Metric() (model.SimilarityMetric, error) {
	s, err := r.rec.String(2)
	return model.SimilarityMetric(s), err
}

// Vector decodes the packed vector field.
func (r *EmbeddingRef) Vector() ([]float32, error) {
	return r.rec.Float32Slice(3)
}

// Model returns the name of the model that produced this embedding.
func (r *EmbeddingRef) Model() (string, error) {
	return r.rec.String(5)
}

// Deserialize fully materializes the referenced embedding.
func (r *EmbeddingRef) Deserialize() (*model.Embedding, error) {
	return DecodeEmbedding(r.rec.buf)
}
