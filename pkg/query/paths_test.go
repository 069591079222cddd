package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
)

func openPathTestEngine(t *testing.T) *substrate.Engine {
	t.Helper()
	e, err := substrate.Open(substrate.Options{InMemory: true, VectorDimension: 4, VectorMetric: model.MetricCosine, VectorCacheSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func pathNode(t *testing.T, e *substrate.Engine, text string) model.NodeID {
	t.Helper()
	n := &model.Node{
		ID:   model.NewNodeID(),
		Kind: model.KindMessage,
		Message: &model.MessageData{
			ChatID:      model.NewNodeID(),
			Sender:      "user",
			TimestampMs: 1,
			TextContent: text,
		},
	}
	require.NoError(t, e.InsertNode(n))
	return n.ID
}

// diamond builds a -> b -> d and a -> c -> d with distinct weights, so
// the cheaper path (a-b-d) is unambiguous.
func diamond(t *testing.T, e *substrate.Engine) (a, b, c, d model.NodeID, weight map[model.EdgeID]float64) {
	t.Helper()
	a = pathNode(t, e, "a")
	b = pathNode(t, e, "b")
	c = pathNode(t, e, "c")
	d = pathNode(t, e, "d")
	weight = map[model.EdgeID]float64{}

	ab, err := e.AddEdge(a, b, "RELATES_TO", "")
	require.NoError(t, err)
	weight[ab.ID] = 1

	bd, err := e.AddEdge(b, d, "RELATES_TO", "")
	require.NoError(t, err)
	weight[bd.ID] = 1

	ac, err := e.AddEdge(a, c, "RELATES_TO", "")
	require.NoError(t, err)
	weight[ac.ID] = 5

	cd, err := e.AddEdge(c, d, "RELATES_TO", "")
	require.NoError(t, err)
	weight[cd.ID] = 5

	return a, b, c, d, weight
}

func weightCost(weight map[model.EdgeID]float64) EdgeCost {
	return func(id model.EdgeID) float64 { return weight[id] }
}

func TestDijkstraFindsCheaperPath(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, _, d, weight := diamond(t, e)

	path, ok, err := Dijkstra(e, a, d, weightCost(weight))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []model.NodeID{a, b, d}, path.Nodes)
	assert.Equal(t, 2.0, path.Cost)
}

func TestDijkstraUnreachableReturnsNotOK(t *testing.T) {
	e := openPathTestEngine(t)
	a := pathNode(t, e, "a")
	isolated := pathNode(t, e, "isolated")

	_, ok, err := Dijkstra(e, a, isolated, func(model.EdgeID) float64 { return 1 })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBidirectionalDijkstraMatchesDijkstra(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, _, d, weight := diamond(t, e)

	path, ok, err := BidirectionalDijkstra(e, a, d, weightCost(weight))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, path.Cost)
	assert.Equal(t, a, path.Nodes[0])
	assert.Equal(t, d, path.Nodes[len(path.Nodes)-1])
	assert.Contains(t, path.Nodes, b)
}

func TestAStarWithZeroHeuristicMatchesDijkstra(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, _, d, weight := diamond(t, e)

	zero := func(model.NodeID) float64 { return 0 }
	path, ok, err := AStar(e, a, d, weightCost(weight), zero)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []model.NodeID{a, b, d}, path.Nodes)
	assert.Equal(t, 2.0, path.Cost)
}

func TestBellmanFordMatchesDijkstraOnNonNegativeWeights(t *testing.T) {
	e := openPathTestEngine(t)
	a, _, _, d, weight := diamond(t, e)
	all := []model.NodeID{a}

	// Gather every node touched by the diamond fixture.
	out, err := e.GetOutgoing(a)
	require.NoError(t, err)
	for _, adj := range out {
		all = append(all, adj.NeighborID)
		out2, err := e.GetOutgoing(adj.NeighborID)
		require.NoError(t, err)
		for _, adj2 := range out2 {
			all = append(all, adj2.NeighborID)
		}
	}

	dist, err := BellmanFord(e, dedupeNodeIDs(all), a, weightCost(weight))
	require.NoError(t, err)
	assert.Equal(t, 2.0, dist[d])
}

func dedupeNodeIDs(ids []model.NodeID) []model.NodeID {
	seen := map[model.NodeID]bool{}
	var out []model.NodeID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func TestStronglyConnectedComponentsSplitsAcyclicDiamond(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, c, d, _ := diamond(t, e)

	sccs, err := StronglyConnectedComponents(e, []model.NodeID{a, b, c, d})
	require.NoError(t, err)
	// A DAG has no nontrivial strongly connected components: every
	// node is its own singleton SCC.
	assert.Len(t, sccs, 4)
}

func TestBridgesFindsEveryEdgeInATree(t *testing.T) {
	e := openPathTestEngine(t)
	a := pathNode(t, e, "a")
	b := pathNode(t, e, "b")
	c := pathNode(t, e, "c")
	_, err := e.AddEdge(a, b, "RELATES_TO", "")
	require.NoError(t, err)
	_, err = e.AddEdge(b, c, "RELATES_TO", "")
	require.NoError(t, err)

	bridges, err := Bridges(e, []model.NodeID{a, b, c})
	require.NoError(t, err)
	// Every edge of a tree is a bridge.
	assert.Len(t, bridges, 2)
}

func TestArticulationPointsFindsCutVertex(t *testing.T) {
	e := openPathTestEngine(t)
	a := pathNode(t, e, "a")
	b := pathNode(t, e, "b")
	c := pathNode(t, e, "c")
	_, err := e.AddEdge(a, b, "RELATES_TO", "")
	require.NoError(t, err)
	_, err = e.AddEdge(b, c, "RELATES_TO", "")
	require.NoError(t, err)

	points, err := ArticulationPoints(e, []model.NodeID{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []model.NodeID{b}, points)
}

func TestPrimMSTCoversAllReachableNodes(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, c, d, weight := diamond(t, e)

	mst, err := PrimMST(e, []model.NodeID{a, b, c, d}, weightCost(weight))
	require.NoError(t, err)
	// A spanning tree over 4 nodes has exactly 3 edges.
	assert.Len(t, mst, 3)
}

func TestMaxFlowOnSingleCapacitatedPath(t *testing.T) {
	e := openPathTestEngine(t)
	a := pathNode(t, e, "a")
	b := pathNode(t, e, "b")
	c := pathNode(t, e, "c")
	ab, err := e.AddEdge(a, b, "RELATES_TO", "")
	require.NoError(t, err)
	bc, err := e.AddEdge(b, c, "RELATES_TO", "")
	require.NoError(t, err)

	capacity := map[model.EdgeID]float64{ab.ID: 3, bc.ID: 7}
	flow, err := MaxFlow(e, a, c, weightCost(capacity))
	require.NoError(t, err)
	// The narrowest edge on the only path bounds the max flow.
	assert.Equal(t, 3.0, flow)
}

func TestPageRankSumsToOne(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, c, d, _ := diamond(t, e)
	nodes := []model.NodeID{a, b, c, d}

	scores, err := PageRank(e, nodes, 50, 0.85)
	require.NoError(t, err)
	var total float64
	for _, id := range nodes {
		total += scores[id]
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestLouvainAssignsEveryNodeACommunity(t *testing.T) {
	e := openPathTestEngine(t)
	a, b, c, d, _ := diamond(t, e)
	nodes := []model.NodeID{a, b, c, d}

	communities, err := Louvain(e, nodes)
	require.NoError(t, err)
	assert.Len(t, communities, 4)
}

func TestKShortestPathsOrderedByCost(t *testing.T) {
	e := openPathTestEngine(t)
	a, _, _, d, weight := diamond(t, e)

	paths, err := KShortestPaths(e, a, d, 2, weightCost(weight))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.LessOrEqual(t, paths[0].Cost, paths[1].Cost)
}
