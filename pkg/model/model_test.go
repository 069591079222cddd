package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDsAreDistinctAndPrefixed(t *testing.T) {
	n := NewNodeID()
	e := NewEdgeID()
	emb := NewEmbeddingID()

	assert.Contains(t, string(n), "node_")
	assert.Contains(t, string(e), "edge_")
	assert.Contains(t, string(emb), "emb_")
	assert.NotEqual(t, string(n), string(e))
}

func TestNodeValidateRequiresExactlyOnePayload(t *testing.T) {
	n := &Node{ID: NewNodeID(), Kind: KindMessage}
	assert.Error(t, n.Validate(), "no payload populated should fail")

	n.Message = &MessageData{TextContent: "hi"}
	n.Chat = &ChatData{Title: "oops"}
	assert.Error(t, n.Validate(), "two payloads populated should fail")

	n.Chat = nil
	require.NoError(t, n.Validate())
}

func TestNodeTextContentPerVariant(t *testing.T) {
	n := &Node{ID: NewNodeID(), Kind: KindEntity, Entity: &EntityData{Label: "Acme Corp", EntityType: "Organization"}}
	text, ok := n.TextContent()
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", text)

	attach := &Node{ID: NewNodeID(), Kind: KindAttachment, Attachment: &AttachmentData{Filename: "a.png"}}
	_, ok = attach.TextContent()
	assert.False(t, ok, "attachments carry no representative text")
}

func TestNodeSetAndGetEmbeddingID(t *testing.T) {
	n := &Node{ID: NewNodeID(), Kind: KindSummary, Summary: &SummaryData{Content: "x"}}
	_, ok := n.EmbeddingID()
	assert.False(t, ok)

	id := NewEmbeddingID()
	n.SetEmbeddingID(id)
	got, ok := n.EmbeddingID()
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestEdgeValidate(t *testing.T) {
	e := &Edge{ID: NewEdgeID(), FromID: NewNodeID(), ToID: NewNodeID(), EdgeType: "MENTIONS"}
	assert.NoError(t, e.Validate())

	e.EdgeType = ""
	assert.Error(t, e.Validate())
}

func TestEmbeddingValidateDimension(t *testing.T) {
	e := &Embedding{ID: NewEmbeddingID(), Dimension: 3, Vector: []float32{1, 2, 3}, Metric: MetricCosine}
	assert.NoError(t, e.Validate())

	e.Vector = []float32{1, 2}
	assert.Error(t, e.Validate())
}
