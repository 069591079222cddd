package csr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/graphindex"
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

func TestFromGraphIndexBuildsInducedSubgraph(t *testing.T) {
	env, err := kv.Open(kv.Options{Path: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	g := graphindex.New(env)

	a, b, c := model.NodeID("a"), model.NodeID("b"), model.NodeID("c")
	outside := model.NodeID("outside")

	edgeAB := &model.Edge{ID: model.NewEdgeID(), FromID: a, ToID: b, EdgeType: "T"}
	edgeAC := &model.Edge{ID: model.NewEdgeID(), FromID: a, ToID: c, EdgeType: "T"}
	edgeAOut := &model.Edge{ID: model.NewEdgeID(), FromID: a, ToID: outside, EdgeType: "T"}

	targets := map[model.EdgeID]model.NodeID{
		edgeAB.ID:   b,
		edgeAC.ID:   c,
		edgeAOut.ID: outside,
	}
	resolve := func(id model.EdgeID) (model.NodeID, error) { return targets[id], nil }

	require.NoError(t, env.Update(func(txn *kv.Txn) error {
		for _, e := range []*model.Edge{edgeAB, edgeAC, edgeAOut} {
			if err := g.AddEdge(txn, e); err != nil {
				return err
			}
		}
		return nil
	}))

	var tree *CSR
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		tree, err = FromGraphIndex(txn, g, []model.NodeID{a, b, c}, resolve)
		return err
	}))

	require.Equal(t, 3, tree.NodeCount())
	require.Equal(t, 2, tree.EdgeCount(), "the edge to 'outside' must be dropped from the induced subgraph")

	cols, edges, err := tree.Outgoing(a)
	require.NoError(t, err)
	require.ElementsMatch(t, []model.NodeID{b, c}, cols)
	require.Len(t, edges, 2)

	has, err := tree.HasEdge(a, b)
	require.NoError(t, err)
	require.True(t, has)

	has, err = tree.HasEdge(a, outside)
	require.NoError(t, err)
	require.False(t, has)
}
