// Package graphindex maintains the hot-tier adjacency index: two key
// namespaces over the shared KV store, outgoing and incoming (key =
// prefix + nodeID + 0x00 + edgeID + 0x00, valued by the opposite
// endpoint).
// The edge's own record lives under pkg/kv.DBIEdge, keyed by edge id,
// so the adjacency entry here is pure structure: "this edge exists
// between these two nodes".
package graphindex

import (
	"bytes"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// GraphIndex is the adjacency index over a shared *kv.Env.
type GraphIndex struct {
	env *kv.Env
}

// New wraps env as a GraphIndex. The same env also backs nodes, edges,
// and every other DBI — GraphIndex only ever touches DBIOutgoing and
// DBIIncoming.
func New(env *kv.Env) *GraphIndex {
	return &GraphIndex{env: env}
}

// AddEdge records both directions of adjacency for e inside txn. The
// edge's own record must already exist (or be written in the same
// transaction) under DBIEdge; AddEdge only maintains the structural
// index. The outgoing entry is keyed by (from, edge) and
// valued by to (and the incoming entry is the mirror), so a neighbor
// scan never has to resolve the edge record just to learn the target.
func (g *GraphIndex) AddEdge(txn *kv.Txn, e *model.Edge) error {
	outKey := kv.Join([]byte(e.FromID), []byte(e.ID))
	inKey := kv.Join([]byte(e.ToID), []byte(e.ID))
	if err := txn.Put(kv.DBIOutgoing, outKey, []byte(e.ToID)); err != nil {
		return err
	}
	return txn.Put(kv.DBIIncoming, inKey, []byte(e.FromID))
}

// RemoveEdge deletes both directions of adjacency for the edge
// described by from/to/id.
func (g *GraphIndex) RemoveEdge(txn *kv.Txn, from, to model.NodeID, id model.EdgeID) error {
	outKey := kv.Join([]byte(from), []byte(id))
	inKey := kv.Join([]byte(to), []byte(id))
	if err := txn.Delete(kv.DBIOutgoing, outKey); err != nil {
		return err
	}
	return txn.Delete(kv.DBIIncoming, inKey)
}

// AdjacentEdge pairs an edge id with the neighbor node id it touches.
type AdjacentEdge struct {
	NeighborID model.NodeID
	EdgeID     model.EdgeID
}

// GetOutgoing returns every edge leaving nodeID, reading inside txn.
func (g *GraphIndex) GetOutgoing(txn *kv.Txn, nodeID model.NodeID) ([]AdjacentEdge, error) {
	return g.scan(txn, kv.DBIOutgoing, nodeID)
}

// GetIncoming returns every edge arriving at nodeID.
func (g *GraphIndex) GetIncoming(txn *kv.Txn, nodeID model.NodeID) ([]AdjacentEdge, error) {
	return g.scan(txn, kv.DBIIncoming, nodeID)
}

func (g *GraphIndex) scan(txn *kv.Txn, dbi kv.DBI, nodeID model.NodeID) ([]AdjacentEdge, error) {
	var out []AdjacentEdge
	err := g.iter(txn, dbi, nodeID, func(edgeID, target []byte) error {
		out = append(out, AdjacentEdge{NeighborID: model.NodeID(target), EdgeID: model.EdgeID(edgeID)})
		return nil
	})
	return out, err
}

// IterOutgoing invokes fn with each (edge id, target node id) pair
// leaving nodeID, in edge-id order. Both slices are borrowed from the
// transaction's mapped memory and valid only until fn returns; the
// iteration performs no allocation per neighbor, so walking a node
// with tens of thousands of edges costs only the iterator setup.
func (g *GraphIndex) IterOutgoing(txn *kv.Txn, nodeID model.NodeID, fn func(edgeID, target []byte) error) error {
	return g.iter(txn, kv.DBIOutgoing, nodeID, fn)
}

// IterIncoming is IterOutgoing's mirror: fn receives (edge id, source
// node id) pairs arriving at nodeID.
func (g *GraphIndex) IterIncoming(txn *kv.Txn, nodeID model.NodeID, fn func(edgeID, source []byte) error) error {
	return g.iter(txn, kv.DBIIncoming, nodeID, fn)
}

func (g *GraphIndex) iter(txn *kv.Txn, dbi kv.DBI, nodeID model.NodeID, fn func(edgeID, neighbor []byte) error) error {
	return txn.PrefixIter(dbi, kv.Join([]byte(nodeID)), func(key, value []byte) error {
		edgeID, ok := splitAdjacencyKey(key, len(nodeID))
		if !ok {
			return dberr.ErrCorrupted
		}
		return fn(edgeID, value)
	})
}

// HasEdge reports whether any edge links from -> to, linearly scanning
// from's outgoing edges without materializing them. Callers needing
// O(log deg) lookups use the compressed form in pkg/csr instead.
func (g *GraphIndex) HasEdge(txn *kv.Txn, from, to model.NodeID) (bool, error) {
	found := false
	target := []byte(to)
	err := g.IterOutgoing(txn, from, func(_, neighbor []byte) error {
		if bytes.Equal(neighbor, target) {
			found = true
		}
		return nil
	})
	return found, err
}

// splitAdjacencyKey extracts the edge-id slice from an adjacency key
// built as nodeID + 0x00 + edgeID + 0x00 (via kv.Join). The returned
// slice borrows from key.
func splitAdjacencyKey(key []byte, nodeIDLen int) ([]byte, bool) {
	prefixLen := nodeIDLen + 1
	if len(key) < prefixLen+1 {
		return nil, false
	}
	return key[prefixLen : len(key)-1], true // trim Join's trailing separator
}
