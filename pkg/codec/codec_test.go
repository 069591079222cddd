package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := NewEncoder(7).
		PutString("hello").
		PutInt64(-42).
		PutFloat32Slice([]float32{1.5, -2.25, 0}).
		Bytes()

	rec, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(7), rec.Kind())
	assert.Equal(t, 3, rec.NumFields())

	s, err := rec.String(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	n, err := rec.Int64(1)
	require.NoError(t, err)
	assert.EqualValues(t, -42, n)

	v, err := rec.Float32Slice(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2.25, 0}, v)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	buf := NewEncoder(1).PutString("abc").Bytes()
	_, err := Decode(buf[:len(buf)-1])
	assert.Error(t, err)
}

func TestNodeRoundTripMessage(t *testing.T) {
	emb := model.NewEmbeddingID()
	n := &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindMessage,
		Message: &model.MessageData{
			ChatID:      model.NewNodeID(),
			Sender:      "user",
			TimestampMs: 1234,
			TextContent: "hello world",
			EmbeddingID: &emb,
		},
	}
	buf, err := EncodeNode(n)
	require.NoError(t, err)

	got, err := DecodeNode(buf)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Kind, got.Kind)
	assert.Equal(t, n.Message.TextContent, got.Message.TextContent)
	require.NotNil(t, got.Message.EmbeddingID)
	assert.Equal(t, emb, *got.Message.EmbeddingID)
}

func TestNodeRefZeroCopyTextContent(t *testing.T) {
	n := &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindSummary,
		Summary: &model.SummaryData{
			Content: "a concise summary",
		},
	}
	buf, err := EncodeNode(n)
	require.NoError(t, err)

	ref, err := NewNodeRef(buf)
	require.NoError(t, err)
	assert.Equal(t, model.KindSummary, ref.Kind())

	text, ok := ref.TextContent()
	require.True(t, ok)
	assert.Equal(t, "a concise summary", text)

	full, err := ref.Deserialize()
	require.NoError(t, err)
	assert.Equal(t, n.ID, full.ID)
}

func TestEdgeRoundTrip(t *testing.T) {
	e := &model.Edge{
		ID:       model.NewEdgeID(),
		FromID:   model.NewNodeID(),
		ToID:     model.NewNodeID(),
		EdgeType: "MENTIONS",
	}
	buf, err := EncodeEdge(e)
	require.NoError(t, err)

	got, err := DecodeEdge(buf)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.EdgeType, got.EdgeType)

	ref, err := NewEdgeRef(buf)
	require.NoError(t, err)
	etype, err := ref.EdgeType()
	require.NoError(t, err)
	assert.Equal(t, "MENTIONS", etype)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	e := &model.Embedding{
		ID:        model.NewEmbeddingID(),
		Dimension: 3,
		Vector:    []float32{0.1, 0.2, 0.3},
		Metric:    model.MetricCosine,
		Model:     "mxbai-embed-large",
	}
	buf, err := EncodeEmbedding(e)
	require.NoError(t, err)

	got, err := DecodeEmbedding(buf)
	require.NoError(t, err)
	assert.Equal(t, e.Vector, got.Vector)
	assert.Equal(t, e.Metric, got.Metric)
	assert.Equal(t, e.Model, got.Model)
}

func TestEmbeddingValidateDimensionMismatch(t *testing.T) {
	e := &model.Embedding{
		ID:        model.NewEmbeddingID(),
		Dimension: 4,
		Vector:    []float32{0.1, 0.2},
		Metric:    model.MetricCosine,
	}
	_, err := EncodeEmbedding(e)
	assert.Error(t, err)
}
