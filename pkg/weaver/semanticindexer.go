package weaver

import (
	"strings"

	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// shouldIndexNodeType reports whether kind is one of the six
// text-bearing variants the semantic indexer embeds.
func shouldIndexNodeType(kind model.NodeKind) bool {
	switch kind {
	case model.KindMessage, model.KindSummary, model.KindEntity,
		model.KindScrapedPage, model.KindWebSearch, model.KindAudioTranscript:
		return true
	default:
		return false
	}
}

// indexSemantics generates and stores an embedding for n if it is a
// text-bearing variant that doesn't already have one, then patches n
// with the new embedding id.
func (w *Weaver) indexSemantics(n *model.Node) error {
	if !shouldIndexNodeType(n.Kind) {
		return nil
	}
	if _, ok := n.EmbeddingID(); ok {
		return nil
	}

	text, ok := n.TextContent()
	if !ok || strings.TrimSpace(text) == "" {
		return nil
	}

	vector, err := w.bridge.GenerateEmbedding(w.ctx, text)
	if err != nil {
		return err
	}

	emb := &model.Embedding{
		ID:        model.NewEmbeddingID(),
		Dimension: len(vector),
		Vector:    vector,
		Metric:    model.MetricCosine,
		Model:     w.bridge.GetEmbeddingModelName(),
	}
	if err := w.engine.InsertEmbedding(emb); err != nil {
		return err
	}

	n.SetEmbeddingID(emb.ID)
	return w.engine.UpdateNode(n)
}
