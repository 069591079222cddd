package mlbridge

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// Mock is a deterministic in-memory MlBridge test double. Vectors are
// derived from text by hashing, so the same text always embeds to the
// same vector without a real model.
type Mock struct {
	mu         sync.Mutex
	Dimension  int
	ModelName  string
	Entities   map[string][]ExtractedEntity // text -> entities to return
	Calls      []string                     // texts passed to GenerateEmbedding, in order
	Unhealthy  bool
}

// NewMock creates a Mock embedding into Dimension-length vectors
// tagged with ModelName.
func NewMock(dimension int, modelName string) *Mock {
	return &Mock{
		Dimension: dimension,
		ModelName: modelName,
		Entities:  make(map[string][]ExtractedEntity),
	}
}

// GenerateEmbedding hashes text into a deterministic Dimension-length
// vector. Two calls with the same text always return equal vectors;
// different texts are extremely unlikely to collide.
func (m *Mock) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	vec := make([]float32, m.Dimension)
	h := fnv.New64a()
	for i := range vec {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		vec[i] = float32(sum%2000)/1000.0 - 1.0 // range [-1, 1)
	}
	return vec, nil
}

// ExtractEntities returns whatever was registered for text via
// SetEntities, or none.
func (m *Mock) ExtractEntities(ctx context.Context, text string) ([]ExtractedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Entities[text], nil
}

// SetEntities registers the entities ExtractEntities(text) should
// return.
func (m *Mock) SetEntities(text string, entities []ExtractedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entities[text] = entities
}

// Summarize concatenates the first sentence of every text.
func (m *Mock) Summarize(ctx context.Context, texts []string) (string, error) {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if i := strings.IndexByte(t, '.'); i >= 0 {
			parts = append(parts, t[:i+1])
		} else {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// GetEmbeddingModelName returns ModelName.
func (m *Mock) GetEmbeddingModelName() string { return m.ModelName }

// HealthCheck returns !Unhealthy.
func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	return !m.Unhealthy, nil
}
