// Package query implements the converged query planner and executor:
// one call combining a structural filter set, an optional graph
// traversal, and an optional semantic (vector) search into a single
// ranked result list.
//
// The plan intersects structural, graph, and semantic candidate
// sets, cost-ordered by property-index cardinality first.
package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/graphindex"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
)

// Direction bounds which adjacency a GraphFilter walks.
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Both
)

// Operator names a StructuralFilter's comparison.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpLt
	OpContains
)

// StructuralFilter constrains candidate nodes by one indexed property.
// Only OpEq is backed directly by the property index (pkg/propindex
// only answers equality lookups); the other operators are evaluated
// by fetching candidate nodes and comparing in process, so a
// ConvergedQuery that pairs a non-equality filter with no other
// bounding facet falls back to scanning whatever candidate set the
// rest of the plan produced.
type StructuralFilter struct {
	PropertyName string
	Operator     Operator
	Value        string
}

// GraphFilter bounds results to nodes reachable from StartNodeID.
type GraphFilter struct {
	StartNodeID model.NodeID
	Direction   Direction
	EdgeType    string // empty matches every edge type
	Depth       uint32
}

// SemanticQuery ranks (and optionally filters) candidates by vector
// similarity against Vector.
type SemanticQuery struct {
	Vector              []float32
	SimilarityThreshold *float64
}

// ConvergedQuery combines every facet. Structural filters are
// AND-combined; Graph and Semantic are each optional.
type ConvergedQuery struct {
	Structural []StructuralFilter
	Graph      *GraphFilter
	Semantic   *SemanticQuery
	Limit      int
	Offset     int
}

// QueryResult is one ranked hit. SimilarityScore is present iff the
// query carried a SemanticQuery.
type QueryResult struct {
	Node            *model.Node
	SimilarityScore *float64
}

// Planner executes ConvergedQuery values against one substrate.Engine.
type Planner struct {
	engine *substrate.Engine

	// StructuralCountThreshold bounds how large an equality filter's
	// property-index count may be before the planner materializes it
	// eagerly as the seed candidate set. Above the threshold, the filter is
	// applied as a per-node post-filter instead of a full Lookup, so a
	// high-cardinality predicate (e.g. node_type == "Message" in a
	// million-message store) never forces a full materialization up
	// front.
	StructuralCountThreshold int
}

// DefaultStructuralCountThreshold is the default cutoff for eager
// structural-filter materialization.
const DefaultStructuralCountThreshold = 10_000

// NewPlanner builds a Planner over engine with the default threshold.
func NewPlanner(engine *substrate.Engine) *Planner {
	return &Planner{engine: engine, StructuralCountThreshold: DefaultStructuralCountThreshold}
}

type nodeSet map[model.NodeID]struct{}

func (s nodeSet) intersect(other nodeSet) nodeSet {
	out := make(nodeSet, len(s))
	for id := range s {
		if _, ok := other[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Execute runs q's plan: structural candidate narrowing, then graph
// traversal (intersected with the structural set), then semantic
// search (pushed down against whatever candidate set survives).
func (p *Planner) Execute(ctx context.Context, q ConvergedQuery) ([]QueryResult, error) {
	eqFilters, postFilters := partitionFilters(q.Structural)

	var candidates nodeSet // nil means "unconstrained so far"
	bounded := false
	if len(eqFilters) > 0 {
		set, ok, err := p.seedFromEquality(eqFilters)
		if err != nil {
			return nil, err
		}
		if ok {
			candidates = set
			bounded = true
		} else {
			// Cardinality too high to materialize eagerly: fold the
			// equality filters into the post-filter set instead.
			postFilters = append(postFilters, eqFilters...)
		}
	}

	var order []model.NodeID // preserves BFS/traversal order when meaningful
	if q.Graph != nil {
		reached, seq, err := p.bfs(q.Graph)
		if err != nil {
			return nil, err
		}
		if bounded {
			reached = reached.intersect(candidates)
			filtered := seq[:0]
			for _, id := range seq {
				if _, ok := reached[id]; ok {
					filtered = append(filtered, id)
				}
			}
			seq = filtered
		}
		candidates = reached
		order = seq
		bounded = true
	}

	if len(postFilters) > 0 && bounded {
		set, seq, err := p.applyPostFilters(candidates, bounded, order, postFilters)
		if err != nil {
			return nil, err
		}
		candidates = set
		order = seq
		postFilters = nil
	}

	var results []QueryResult
	var err error
	if q.Semantic != nil {
		results, err = p.executeSemantic(ctx, q, candidates, bounded)
		if err == nil && len(postFilters) > 0 {
			// Nothing bounded the search, so the remaining filters are
			// checked against the top-k hits it returned.
			kept := results[:0]
			for _, r := range results {
				if matchesAll(r.Node, postFilters) {
					kept = append(kept, r)
				}
			}
			results = kept
		}
	} else {
		if !bounded {
			return nil, dberr.NewValidation("query", "a ConvergedQuery with no structural, graph, or semantic facet cannot be executed without a full scan")
		}
		results, err = p.hydrate(candidates, order)
	}
	if err != nil {
		return nil, err
	}

	return paginate(results, q.Offset, q.Limit), nil
}

func partitionFilters(filters []StructuralFilter) (eq, other []StructuralFilter) {
	for _, f := range filters {
		if f.Operator == OpEq {
			eq = append(eq, f)
		} else {
			other = append(other, f)
		}
	}
	return eq, other
}

// seedFromEquality cost-orders eqFilters by property-index
// cardinality, materializes the smallest via Lookup, and intersects
// the rest. Returns ok=false if even the smallest filter's count
// exceeds the planner's threshold.
func (p *Planner) seedFromEquality(eqFilters []StructuralFilter) (nodeSet, bool, error) {
	type counted struct {
		filter StructuralFilter
		count  int
	}
	counts := make([]counted, 0, len(eqFilters))
	for _, f := range eqFilters {
		n, err := p.engine.PropertyCount(f.PropertyName, f.Value)
		if err != nil {
			return nil, false, err
		}
		counts = append(counts, counted{f, n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count < counts[j].count })

	if counts[0].count > p.StructuralCountThreshold {
		return nil, false, nil
	}

	ids, err := p.engine.PropertyLookup(counts[0].filter.PropertyName, counts[0].filter.Value)
	if err != nil {
		return nil, false, err
	}
	set := make(nodeSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	for _, c := range counts[1:] {
		ids, err := p.engine.PropertyLookup(c.filter.PropertyName, c.filter.Value)
		if err != nil {
			return nil, false, err
		}
		next := make(nodeSet, len(ids))
		for _, id := range ids {
			next[id] = struct{}{}
		}
		set = set.intersect(next)
	}
	return set, true, nil
}

// bfs walks the graph from f.StartNodeID honoring Direction and
// EdgeType, bounded by Depth. Depth 0 returns just the start node;
// any deeper walk returns the reached nodes without the start.
func (p *Planner) bfs(f *GraphFilter) (nodeSet, []model.NodeID, error) {
	if f.Depth == 0 {
		return nodeSet{f.StartNodeID: struct{}{}}, []model.NodeID{f.StartNodeID}, nil
	}
	visited := nodeSet{f.StartNodeID: struct{}{}}
	reached := make(nodeSet)
	var order []model.NodeID

	frontier := []model.NodeID{f.StartNodeID}
	for depth := uint32(0); depth < f.Depth && len(frontier) > 0; depth++ {
		var next []model.NodeID
		for _, id := range frontier {
			neighbors, err := p.neighborsOf(id, f.Direction)
			if err != nil {
				return nil, nil, err
			}
			for _, adj := range neighbors {
				if f.EdgeType != "" && adj.EdgeType != f.EdgeType {
					continue
				}
				if _, seen := visited[adj.NeighborID]; seen {
					continue
				}
				visited[adj.NeighborID] = struct{}{}
				reached[adj.NeighborID] = struct{}{}
				order = append(order, adj.NeighborID)
				next = append(next, adj.NeighborID)
			}
		}
		frontier = next
	}
	return reached, order, nil
}

// typedAdjacentEdge pairs graphindex.AdjacentEdge with the edge's type,
// since direction-aware BFS needs to filter on EdgeType but the
// adjacency index itself is untyped (the type lives on the edge
// record, resolved via Engine.GetEdge).
type typedAdjacentEdge struct {
	NeighborID model.NodeID
	EdgeType   string
}

func (p *Planner) neighborsOf(id model.NodeID, dir Direction) ([]typedAdjacentEdge, error) {
	var raw []graphindex.AdjacentEdge
	switch dir {
	case Outbound:
		out, err := p.engine.GetOutgoing(id)
		if err != nil {
			return nil, err
		}
		raw = out
	case Inbound:
		in, err := p.engine.GetIncoming(id)
		if err != nil {
			return nil, err
		}
		raw = in
	case Both:
		out, err := p.engine.GetOutgoing(id)
		if err != nil {
			return nil, err
		}
		in, err := p.engine.GetIncoming(id)
		if err != nil {
			return nil, err
		}
		raw = append(out, in...)
		// Each adjacency scan is already edge-id-sorted; re-sort the
		// union so traversal order stays deterministic.
		sort.Slice(raw, func(i, j int) bool { return raw[i].EdgeID < raw[j].EdgeID })
	}

	typed := make([]typedAdjacentEdge, 0, len(raw))
	for _, adj := range raw {
		edge, err := p.engine.GetEdge(adj.EdgeID)
		if err != nil {
			return nil, err
		}
		typed = append(typed, typedAdjacentEdge{NeighborID: adj.NeighborID, EdgeType: edge.EdgeType})
	}
	return typed, nil
}

// applyPostFilters evaluates filters that aren't index-backed against
// the bounded set produced by equality lookup/graph traversal so far.
// With bounded=false it returns an empty set, since there is no
// full-table-scan primitive; Execute only calls it with a bounded set.
func (p *Planner) applyPostFilters(candidates nodeSet, bounded bool, order []model.NodeID, filters []StructuralFilter) (nodeSet, []model.NodeID, error) {
	if !bounded {
		return nodeSet{}, nil, nil
	}
	out := make(nodeSet, len(candidates))
	var seq []model.NodeID
	ids := order
	if ids == nil {
		ids = make([]model.NodeID, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		n, err := p.engine.GetNode(id)
		if err != nil {
			continue
		}
		if matchesAll(n, filters) {
			out[id] = struct{}{}
			seq = append(seq, id)
		}
	}
	return out, seq, nil
}

func matchesAll(n *model.Node, filters []StructuralFilter) bool {
	props := n.IndexedProperties()
	for _, f := range filters {
		actual, ok := props[f.PropertyName]
		if !ok {
			return false
		}
		if !matches(actual, f.Operator, f.Value) {
			return false
		}
	}
	return true
}

func matches(actual string, op Operator, value string) bool {
	switch op {
	case OpEq:
		return actual == value
	case OpNe:
		return actual != value
	case OpContains:
		return strings.Contains(actual, value)
	case OpGt, OpLt:
		af, aerr := strconv.ParseFloat(actual, 64)
		vf, verr := strconv.ParseFloat(value, 64)
		if aerr == nil && verr == nil {
			if op == OpGt {
				return af > vf
			}
			return af < vf
		}
		if op == OpGt {
			return actual > value
		}
		return actual < value
	default:
		return false
	}
}

// executeSemantic runs the vector facet, pushing the current candidate
// set down as Engine.Search's filter. When no prior facet bounded the
// query, the search runs unfiltered across the whole vector index —
// the common "top-k nearest neighbors" case.
func (p *Planner) executeSemantic(ctx context.Context, q ConvergedQuery, candidates nodeSet, bounded bool) ([]QueryResult, error) {
	minScore := 0.0
	if q.Semantic.SimilarityThreshold != nil {
		minScore = *q.Semantic.SimilarityThreshold
	}

	k := q.Limit + q.Offset
	if k <= 0 {
		k = 50
	}

	var filter map[model.EmbeddingID]struct{}
	if bounded {
		filter = make(map[model.EmbeddingID]struct{}, len(candidates))
		for id := range candidates {
			n, err := p.engine.GetNode(id)
			if err != nil {
				continue
			}
			if embID, ok := n.EmbeddingID(); ok {
				filter[embID] = struct{}{}
			}
		}
		// k must cover the entire bounded set — search can't return
		// more than this many meaningful hits, and a smaller k would
		// silently truncate the candidate set before scoring.
		if len(filter) > k {
			k = len(filter)
		}
	}

	hits, err := p.engine.Search(ctx, q.Semantic.Vector, k, minScore, filter)
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(hits))
	for _, hit := range hits {
		ids, err := p.engine.PropertyLookup("embedding_id", string(hit.ID))
		if err != nil || len(ids) == 0 {
			continue
		}
		n, err := p.engine.GetNode(ids[0])
		if err != nil {
			continue
		}
		score := hit.Score
		results = append(results, QueryResult{Node: n, SimilarityScore: &score})
	}
	return results, nil
}

// hydrate resolves a bounded candidate set with no semantic facet,
// ordering by timestamp descending when every candidate carries one,
// else preserving traversal/seed order.
func (p *Planner) hydrate(candidates nodeSet, order []model.NodeID) ([]QueryResult, error) {
	ids := order
	if ids == nil {
		ids = make([]model.NodeID, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
	}

	type withTime struct {
		node *model.Node
		ts   int64
		has  bool
	}
	nodes := make([]withTime, 0, len(ids))
	allTimed := true
	for _, id := range ids {
		n, err := p.engine.GetNode(id)
		if err != nil {
			continue
		}
		ts, ok := int64(0), false
		if raw, present := n.IndexedProperties()["timestamp"]; present {
			if parsed, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				ts, ok = parsed, true
			}
		}
		if !ok {
			allTimed = false
		}
		nodes = append(nodes, withTime{node: n, ts: ts, has: ok})
	}

	if allTimed && len(nodes) > 0 {
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ts > nodes[j].ts })
	}

	results := make([]QueryResult, 0, len(nodes))
	for _, w := range nodes {
		results = append(results, QueryResult{Node: w.node})
	}
	return results, nil
}

func paginate(results []QueryResult, offset, limit int) []QueryResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
