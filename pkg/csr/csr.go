// Package csr implements the Compressed Sparse Row cold-archive view
// of a graph: three contiguous arrays (row offsets, columns, edge
// ids) instead of per-node adjacency entries.
//
// A CSR is built once from a graphindex.GraphIndex snapshot and a
// fixed node list, then queried read-only, trading update flexibility
// for O(V+E) space and O(1) (or O(log degree) for HasEdge) lookups.
// Tier promotion in pkg/tiered does not build one; a CSR exists only
// when a caller builds it with FromGraphIndex.
package csr

import (
	"sort"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/graphindex"
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// CSR is an immutable, induced-subgraph adjacency view over a fixed
// node list.
type CSR struct {
	rowOffsets []int
	columns    []model.NodeID
	edgeIDs    []model.EdgeID

	nodeToIndex map[model.NodeID]int
	indexToNode []model.NodeID
}

// FromGraphIndex builds a CSR covering exactly nodes, reading each
// node's outgoing edges from graph inside txn and dropping any whose
// target isn't itself in nodes (induced subgraph semantics).
func FromGraphIndex(txn *kv.Txn, graph *graphindex.GraphIndex, nodes []model.NodeID, resolveTarget func(model.EdgeID) (model.NodeID, error)) (*CSR, error) {
	nodeToIndex := make(map[model.NodeID]int, len(nodes))
	indexToNode := make([]model.NodeID, len(nodes))
	for i, id := range nodes {
		nodeToIndex[id] = i
		indexToNode[i] = id
	}

	rowOffsets := make([]int, 0, len(nodes)+1)
	var columns []model.NodeID
	var edgeIDs []model.EdgeID

	offset := 0
	for _, nodeID := range nodes {
		rowOffsets = append(rowOffsets, offset)

		adj, err := graph.GetOutgoing(txn, nodeID)
		if err != nil {
			return nil, err
		}

		type pair struct {
			target model.NodeID
			edge   model.EdgeID
		}
		row := make([]pair, 0, len(adj))
		for _, a := range adj {
			target, err := resolveTarget(a.EdgeID)
			if err != nil {
				return nil, err
			}
			if _, ok := nodeToIndex[target]; ok {
				row = append(row, pair{target: target, edge: a.EdgeID})
			}
		}
		sort.Slice(row, func(i, j int) bool { return row[i].target < row[j].target })

		for _, p := range row {
			columns = append(columns, p.target)
			edgeIDs = append(edgeIDs, p.edge)
			offset++
		}
	}
	rowOffsets = append(rowOffsets, offset)

	return &CSR{
		rowOffsets:  rowOffsets,
		columns:     columns,
		edgeIDs:     edgeIDs,
		nodeToIndex: nodeToIndex,
		indexToNode: indexToNode,
	}, nil
}

// Outgoing returns the target node ids and edge ids leaving nodeID,
// as parallel slices sliced directly out of the CSR's backing arrays
// (no copy beyond the slice header).
func (c *CSR) Outgoing(nodeID model.NodeID) ([]model.NodeID, []model.EdgeID, error) {
	idx, ok := c.nodeToIndex[nodeID]
	if !ok {
		return nil, nil, dberr.ErrNotFound
	}
	start, end := c.rowOffsets[idx], c.rowOffsets[idx+1]
	return c.columns[start:end], c.edgeIDs[start:end], nil
}

// HasEdge reports whether from -> to exists, via binary search over
// from's sorted column slice: O(log deg(from)).
func (c *CSR) HasEdge(from, to model.NodeID) (bool, error) {
	idx, ok := c.nodeToIndex[from]
	if !ok {
		return false, dberr.ErrNotFound
	}
	start, end := c.rowOffsets[idx], c.rowOffsets[idx+1]
	cols := c.columns[start:end]
	i := sort.Search(len(cols), func(i int) bool { return cols[i] >= to })
	return i < len(cols) && cols[i] == to, nil
}

// NodeCount returns the number of nodes covered by this CSR.
func (c *CSR) NodeCount() int { return len(c.indexToNode) }

// EdgeCount returns the number of edges included in this induced
// subgraph (edges whose target fell outside the node list are not
// counted: they were dropped at build time).
func (c *CSR) EdgeCount() int { return len(c.columns) }

// MemoryUsage estimates the CSR's resident memory with O(V+E)
// accounting.
func (c *CSR) MemoryUsage() int {
	const wordSize = 8
	perNode := wordSize // rowOffsets entry
	perEdge := 0
	for _, id := range c.columns {
		perEdge += len(id)
	}
	for _, id := range c.edgeIDs {
		perEdge += len(id)
	}
	return len(c.rowOffsets)*perNode + perEdge
}
