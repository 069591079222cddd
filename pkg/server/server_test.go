package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/query"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
	"github.com/tabagent/nornicsubstrate/pkg/transport"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	engine, err := substrate.Open(substrate.Options{InMemory: true, VectorDimension: 4, VectorMetric: model.MetricCosine, VectorCacheSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return &Dispatcher{Engine: engine, Planner: query.NewPlanner(engine)}
}

func TestDispatchHealth(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), transport.RequestValue{RequestID: "r1", Kind: transport.KindHealth})
	assert.True(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
}

func TestDispatchInsertThenGetNode(t *testing.T) {
	d := newTestDispatcher(t)

	n := model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindMessage,
		Message: &model.MessageData{
			ChatID:      model.NewNodeID(),
			Sender:      "user",
			TimestampMs: 1000,
			TextContent: "hello",
		},
	}
	payload, err := json.Marshal(n)
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), transport.RequestValue{RequestID: "r1", Kind: transport.KindInsertNode, Payload: payload})
	require.True(t, resp.Success, "insert failed: %+v", resp.Error)

	getPayload, _ := json.Marshal(map[string]string{"id": string(n.ID)})
	resp = d.Dispatch(context.Background(), transport.RequestValue{RequestID: "r2", Kind: transport.KindGetNode, Payload: getPayload})
	require.True(t, resp.Success)

	var got model.Node
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "hello", got.Message.TextContent)
}

func TestDispatchGetNodeMissingFailsNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	payload, _ := json.Marshal(map[string]string{"id": string(model.NewNodeID())})
	resp := d.Dispatch(context.Background(), transport.RequestValue{RequestID: "r1", Kind: transport.KindGetNode, Payload: payload})
	require.False(t, resp.Success)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestDispatchUnservedKindReportsUnavailable(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), transport.RequestValue{RequestID: "r1", Kind: "Chat"})
	require.False(t, resp.Success)
	assert.Equal(t, "unavailable", resp.Error.Code)
}

func TestHTTPRequestRouteMapsErrorStatus(t *testing.T) {
	d := newTestDispatcher(t)
	srv := New(d, 1<<20)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	body, _ := json.Marshal(transport.RequestValue{
		RequestID: "r1",
		Kind:      transport.KindGetNode,
		Payload:   json.RawMessage(`{"id":"node_missing"}`),
	})
	resp, err := http.Post(ts.URL+"/v1/request", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPHealthRoute(t *testing.T) {
	d := newTestDispatcher(t)
	ts := httptest.NewServer(New(d, 0).Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
