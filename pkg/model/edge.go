package model

import "github.com/tabagent/nornicsubstrate/pkg/dberr"

// Edge is a directed, typed relationship between two nodes. Edges are
// never embedded: they are pure structure, consumed by the graph
// adjacency index and the CSR cold-archive view.
type Edge struct {
	ID       EdgeID
	FromID   NodeID
	ToID     NodeID
	EdgeType string
	Metadata string // JSON-as-string
}

// Validate checks the edge's required fields are populated. It does
// not check that FromID/ToID name nodes that actually exist —
// substrate.Engine.AddEdge checks that at insert time against the KV
// store, not here.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return dberr.NewValidation("id", "must not be empty")
	}
	if e.FromID == "" {
		return dberr.NewValidation("from_id", "must not be empty")
	}
	if e.ToID == "" {
		return dberr.NewValidation("to_id", "must not be empty")
	}
	if e.EdgeType == "" {
		return dberr.NewValidation("edge_type", "must not be empty")
	}
	return nil
}
