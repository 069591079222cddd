package weaver

import (
	"strings"

	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// shouldExtractEntities reports whether kind is one of the three
// variants the entity linker runs NER over.
func shouldExtractEntities(kind model.NodeKind) bool {
	switch kind {
	case model.KindMessage, model.KindSummary, model.KindScrapedPage:
		return true
	default:
		return false
	}
}

// linkEntities extracts named entities from n's text content and
// creates a MENTIONS edge from n to each one, creating the Entity node
// if no matching label+type pair already exists. MENTIONS always runs
// source -> entity, never the reverse.
func (w *Weaver) linkEntities(n *model.Node) error {
	if !shouldExtractEntities(n.Kind) {
		return nil
	}

	text, ok := n.TextContent()
	if !ok || strings.TrimSpace(text) == "" {
		return nil
	}

	entities, err := w.bridge.ExtractEntities(w.ctx, text)
	if err != nil {
		return err
	}

	for _, ent := range entities {
		entityID, err := w.createOrFindEntity(ent.Text, ent.Label)
		if err != nil {
			return err
		}
		if _, err := w.engine.AddEdge(n.ID, entityID, "MENTIONS", ""); err != nil {
			return err
		}
	}
	return nil
}

// createOrFindEntity returns the id of an existing Entity node sharing
// label+entityType, or creates one. Lookup goes through the property
// index on entity_label, which spans the knowledge domain's active and
// stable tiers alike, so one Lookup call covers both.
func (w *Weaver) createOrFindEntity(label, entityType string) (model.NodeID, error) {
	candidates, err := w.engine.PropertyLookup("entity_label", label)
	if err != nil {
		return "", err
	}
	for _, candidateID := range candidates {
		candidate, err := w.engine.GetNode(candidateID)
		if err != nil {
			continue
		}
		if candidate.Kind == model.KindEntity && candidate.Entity.EntityType == entityType {
			return candidate.ID, nil
		}
	}

	entity := &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindEntity,
		Entity: &model.EntityData{
			Label:      label,
			EntityType: entityType,
		},
	}
	if err := w.engine.InsertNode(entity); err != nil {
		return "", err
	}
	return entity.ID, nil
}
