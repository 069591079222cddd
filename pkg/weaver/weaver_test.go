package weaver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/mlbridge"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
)

func newTestWeaver(t *testing.T) (*Weaver, *substrate.Engine, *mlbridge.Mock) {
	t.Helper()
	engine, err := substrate.Open(substrate.Options{InMemory: true, VectorDimension: 8, VectorMetric: model.MetricCosine, VectorCacheSize: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	bridge := mlbridge.NewMock(8, "mock-embed-v1")
	w := New(engine, bridge, Config{RescanInterval: time.Hour})
	t.Cleanup(w.Close)
	return w, engine, bridge
}

func newTestMessage(text string) *model.Node {
	return &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindMessage,
		Message: &model.MessageData{
			ChatID:      model.NewNodeID(),
			Sender:      "user",
			TimestampMs: 1,
			TextContent: text,
		},
	}
}

func TestShouldIndexNodeType(t *testing.T) {
	assert.True(t, shouldIndexNodeType(model.KindMessage))
	assert.True(t, shouldIndexNodeType(model.KindSummary))
	assert.True(t, shouldIndexNodeType(model.KindEntity))
	assert.False(t, shouldIndexNodeType(model.KindAttachment))
}

func TestShouldExtractEntities(t *testing.T) {
	assert.True(t, shouldExtractEntities(model.KindMessage))
	assert.True(t, shouldExtractEntities(model.KindSummary))
	assert.False(t, shouldExtractEntities(model.KindAttachment))
	assert.False(t, shouldExtractEntities(model.KindEntity))
}

func TestIndexSemanticsGeneratesAndPatchesEmbedding(t *testing.T) {
	w, engine, _ := newTestWeaver(t)
	n := newTestMessage("hello world")
	require.NoError(t, engine.InsertNode(n))

	require.NoError(t, w.indexSemantics(n))

	embID, ok := n.EmbeddingID()
	require.True(t, ok)

	got, err := engine.GetNode(n.ID)
	require.NoError(t, err)
	gotEmbID, ok := got.EmbeddingID()
	require.True(t, ok)
	assert.Equal(t, embID, gotEmbID)

	emb, err := engine.GetEmbedding(embID)
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 8)
}

func TestIndexSemanticsSkipsNodeAlreadyEmbedded(t *testing.T) {
	w, engine, bridge := newTestWeaver(t)
	n := newTestMessage("hello world")
	require.NoError(t, engine.InsertNode(n))
	require.NoError(t, w.indexSemantics(n))
	calls := len(bridge.Calls)

	require.NoError(t, w.indexSemantics(n))
	assert.Equal(t, calls, len(bridge.Calls), "a node that already has an embedding must not be re-embedded")
}

func TestIndexSemanticsSkipsNonTextVariant(t *testing.T) {
	w, engine, bridge := newTestWeaver(t)
	n := &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindAttachment,
		Attachment: &model.AttachmentData{
			MessageID: model.NewNodeID(),
			Filename:  "a.png",
			MimeType:  "image/png",
		},
	}
	require.NoError(t, engine.InsertNode(n))
	require.NoError(t, w.indexSemantics(n))
	assert.Empty(t, bridge.Calls)
}

func TestLinkEntitiesCreatesEntityAndMentionsEdge(t *testing.T) {
	w, engine, bridge := newTestWeaver(t)
	n := newTestMessage("Alice met Bob")
	require.NoError(t, engine.InsertNode(n))
	bridge.SetEntities("Alice met Bob", []mlbridge.ExtractedEntity{
		{Text: "Alice", Label: "PERSON", Start: 0, End: 5},
	})

	require.NoError(t, w.linkEntities(n))

	ids, err := engine.PropertyLookup("entity_label", "Alice")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	out, err := engine.GetOutgoing(n.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ids[0], out[0].NeighborID)
}

func TestLinkEntitiesReusesExistingEntity(t *testing.T) {
	w, engine, bridge := newTestWeaver(t)
	a := newTestMessage("Alice called")
	b := newTestMessage("Alice again")
	require.NoError(t, engine.InsertNode(a))
	require.NoError(t, engine.InsertNode(b))
	bridge.SetEntities("Alice called", []mlbridge.ExtractedEntity{{Text: "Alice", Label: "PERSON"}})
	bridge.SetEntities("Alice again", []mlbridge.ExtractedEntity{{Text: "Alice", Label: "PERSON"}})

	require.NoError(t, w.linkEntities(a))
	require.NoError(t, w.linkEntities(b))

	ids, err := engine.PropertyLookup("entity_label", "Alice")
	require.NoError(t, err)
	assert.Len(t, ids, 1, "linking the same entity twice must not create a duplicate node")
}

func TestOnNodeCreatedDrivesAsyncPipeline(t *testing.T) {
	w, engine, _ := newTestWeaver(t)
	n := newTestMessage("asynchronous hello")
	require.NoError(t, engine.InsertNode(n))

	w.OnNodeCreated(n.ID)

	require.Eventually(t, func() bool {
		return w.Stats().Processed == 1
	}, time.Second, 5*time.Millisecond)

	got, err := engine.GetNode(n.ID)
	require.NoError(t, err)
	_, ok := got.EmbeddingID()
	assert.True(t, ok)
}

func TestRecordFailureInvokesOnError(t *testing.T) {
	engine, err := substrate.Open(substrate.Options{InMemory: true, VectorDimension: 8, VectorMetric: model.MetricCosine, VectorCacheSize: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	var captured error
	w := New(engine, mlbridge.NewMock(8, "mock-embed-v1"), Config{
		RescanInterval: time.Hour,
		OnError:        func(err error) { captured = err },
	})
	t.Cleanup(w.Close)

	w.process(model.NewNodeID()) // node does not exist

	assert.Equal(t, 1, w.Stats().Failed)
	require.Error(t, captured)
	assert.Contains(t, captured.Error(), "load node")
}
