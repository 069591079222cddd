package graphindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

func openTestEnv(t *testing.T) *kv.Env {
	t.Helper()
	env, err := kv.Open(kv.Options{Path: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestAddEdgeIndexesBothDirections(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	from := model.NewNodeID()
	to := model.NewNodeID()
	e := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: to, EdgeType: "MENTIONS"}

	require.NoError(t, env.Update(func(txn *kv.Txn) error {
		return g.AddEdge(txn, e)
	}))

	var out, in []AdjacentEdge
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		out, err = g.GetOutgoing(txn, from)
		if err != nil {
			return err
		}
		in, err = g.GetIncoming(txn, to)
		return err
	}))

	require.Len(t, out, 1)
	require.Len(t, in, 1)
	require.Equal(t, e.ID, out[0].EdgeID)
	require.Equal(t, e.ID, in[0].EdgeID)
	require.Equal(t, to, out[0].NeighborID, "outgoing neighbor must be the edge's target, not the start node")
	require.Equal(t, from, in[0].NeighborID, "incoming neighbor must be the edge's source")
}

func TestHasEdgeScansOutgoingNeighbors(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	from := model.NewNodeID()
	to := model.NewNodeID()
	other := model.NewNodeID()
	e := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: to, EdgeType: "T"}

	require.NoError(t, env.Update(func(txn *kv.Txn) error { return g.AddEdge(txn, e) }))

	require.NoError(t, env.View(func(txn *kv.Txn) error {
		has, err := g.HasEdge(txn, from, to)
		require.NoError(t, err)
		require.True(t, has)

		has, err = g.HasEdge(txn, from, other)
		require.NoError(t, err)
		require.False(t, has)
		return nil
	}))
}

func TestGetOutgoingDoesNotCrossMatchSimilarNodeIDs(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	e1 := &model.Edge{ID: model.NewEdgeID(), FromID: "n1", ToID: "x", EdgeType: "T"}
	e2 := &model.Edge{ID: model.NewEdgeID(), FromID: "n10", ToID: "y", EdgeType: "T"}

	require.NoError(t, env.Update(func(txn *kv.Txn) error {
		if err := g.AddEdge(txn, e1); err != nil {
			return err
		}
		return g.AddEdge(txn, e2)
	}))

	var out []AdjacentEdge
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		out, err = g.GetOutgoing(txn, "n1")
		return err
	}))
	require.Len(t, out, 1, "n1's scan must not pick up n10's edge")
	require.Equal(t, e1.ID, out[0].EdgeID)
}

func TestRemoveEdgeDeletesBothDirections(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	from := model.NewNodeID()
	to := model.NewNodeID()
	e := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: to, EdgeType: "T"}

	require.NoError(t, env.Update(func(txn *kv.Txn) error { return g.AddEdge(txn, e) }))
	require.NoError(t, env.Update(func(txn *kv.Txn) error { return g.RemoveEdge(txn, from, to, e.ID) }))

	var out []AdjacentEdge
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		out, err = g.GetOutgoing(txn, from)
		return err
	}))
	require.Empty(t, out)
}

func TestIterOutgoingYieldsBorrowedPairs(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	from := model.NewNodeID()
	to := model.NewNodeID()
	e := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: to, EdgeType: "T"}
	require.NoError(t, env.Update(func(txn *kv.Txn) error { return g.AddEdge(txn, e) }))

	var seen int
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		return g.IterOutgoing(txn, from, func(edgeID, target []byte) error {
			seen++
			require.Equal(t, string(e.ID), string(edgeID))
			require.Equal(t, string(to), string(target))
			return nil
		})
	}))
	require.Equal(t, 1, seen)
}

func TestIterOutgoingDoesNotAllocatePerEdge(t *testing.T) {
	env := openTestEnv(t)
	g := New(env)

	from := model.NewNodeID()
	const edgeCount = 10_000
	require.NoError(t, env.Update(func(txn *kv.Txn) error {
		for i := 0; i < edgeCount; i++ {
			e := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: model.NewNodeID(), EdgeType: "T"}
			if err := g.AddEdge(txn, e); err != nil {
				return err
			}
		}
		return nil
	}))

	var seen int
	allocs := testing.AllocsPerRun(3, func() {
		seen = 0
		_ = env.View(func(txn *kv.Txn) error {
			return g.IterOutgoing(txn, from, func(edgeID, target []byte) error {
				if len(edgeID) > 0 && len(target) > 0 {
					seen++
				}
				return nil
			})
		})
	})
	require.Equal(t, edgeCount, seen)

	// Iterator setup costs a fixed handful of allocations; what must
	// never happen is one per neighbor.
	require.Less(t, allocs, float64(edgeCount)/100,
		"iterating %d edges allocated %.0f times — per-neighbor allocation has crept in", edgeCount, allocs)
}
