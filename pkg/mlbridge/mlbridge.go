// Package mlbridge defines the MlBridge capability the Weaver pipeline
// calls out to: embedding generation, entity extraction, and
// summarization. The storage core never performs inference itself:
// MlBridge is a collaborator capability, not part of the core.
//
// This is the one place in the substrate that gets an interface
// instead of a concrete struct, because the real implementation lives
// outside this module entirely (an ONNX/GGUF inference process) and
// every test here needs a swappable fake.
package mlbridge

import "context"

// ExtractedEntity is one entity the entity linker found in a piece of
// text, with its character span in the source text.
type ExtractedEntity struct {
	Text  string
	Label string
	Start int
	End   int
}

// MlBridge is the capability surface Weaver depends on. Implementations
// may serialize calls internally; the core treats every method as
// blocking with no re-entrancy guarantee.
type MlBridge interface {
	// GenerateEmbedding returns a vector for text, dimensioned per
	// GetEmbeddingModelName's model.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// ExtractEntities returns every entity mention found in text.
	ExtractEntities(ctx context.Context, text string) ([]ExtractedEntity, error)

	// Summarize condenses a set of texts into one summary string.
	Summarize(ctx context.Context, texts []string) (string, error)

	// GetEmbeddingModelName names the model GenerateEmbedding uses,
	// stored on each Embedding record it produces.
	GetEmbeddingModelName() string

	// HealthCheck reports whether the bridge is currently reachable.
	HealthCheck(ctx context.Context) (bool, error)
}
