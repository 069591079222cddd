// Path algorithms: a catalog of classic graph algorithms (Dijkstra,
// A*, Bellman-Ford, bridges, articulation points, SCC, MST, max-flow,
// PageRank, community detection, k-shortest-paths) exposed as pure
// functions over a *substrate.Engine plus an EdgeCost closure. Each
// function reads adjacency through Engine.GetOutgoing/GetIncoming,
// which materialize each visited node's adjacency list (a slice plus
// one id string per neighbor); the zero-copy IterOutgoing/IterIncoming
// guards are not used here. Priority queues ride container/heap;
// working state is plain maps keyed by model.NodeID.
package query

import (
	"container/heap"
	"math"
	"sort"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
)

// EdgeCost assigns a non-negative weight to an edge. Callers that only
// care about hop count pass a closure returning 1 for every edge.
type EdgeCost func(model.EdgeID) float64

// Heuristic estimates remaining cost from a node to a fixed goal, for
// A*. It must never overestimate the true cost or the returned path
// is not guaranteed shortest.
type Heuristic func(model.NodeID) float64

// Path is an ordered walk through the graph: Nodes has one more entry
// than Edges, Nodes[0] is the start and Nodes[len-1] the end.
type Path struct {
	Nodes []model.NodeID
	Edges []model.EdgeID
	Cost  float64
}

// neighbor pairs an adjacent node with the edge that reaches it.
type neighbor struct {
	node model.NodeID
	edge model.EdgeID
}

func outNeighbors(e *substrate.Engine, id model.NodeID) ([]neighbor, error) {
	adj, err := e.GetOutgoing(id)
	if err != nil {
		return nil, err
	}
	out := make([]neighbor, len(adj))
	for i, a := range adj {
		out[i] = neighbor{node: a.NeighborID, edge: a.EdgeID}
	}
	return out, nil
}

// undirectedNeighbors unions outgoing and incoming adjacency, used by
// the algorithms (bridges, articulation points, MST) that are only
// meaningful on an undirected view of the graph.
func undirectedNeighbors(e *substrate.Engine, id model.NodeID) ([]neighbor, error) {
	out, err := e.GetOutgoing(id)
	if err != nil {
		return nil, err
	}
	in, err := e.GetIncoming(id)
	if err != nil {
		return nil, err
	}
	all := make([]neighbor, 0, len(out)+len(in))
	for _, a := range out {
		all = append(all, neighbor{node: a.NeighborID, edge: a.EdgeID})
	}
	for _, a := range in {
		all = append(all, neighbor{node: a.NeighborID, edge: a.EdgeID})
	}
	return all, nil
}

// --- Dijkstra --------------------------------------------------------

type pqItem struct {
	node model.NodeID
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// Dijkstra finds the shortest-cost path from start to end. Reports
// ok=false if end is unreachable. cost must return non-negative
// weights; use BellmanFord if edges may be negative.
func Dijkstra(e *substrate.Engine, start, end model.NodeID, cost EdgeCost) (Path, bool, error) {
	dist := map[model.NodeID]float64{start: 0}
	prevNode := map[model.NodeID]model.NodeID{}
	prevEdge := map[model.NodeID]model.EdgeID{}
	visited := map[model.NodeID]bool{}

	pq := &priorityQueue{{node: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == end {
			break
		}
		neighbors, err := outNeighbors(e, cur.node)
		if err != nil {
			return Path{}, false, err
		}
		for _, nb := range neighbors {
			if visited[nb.node] {
				continue
			}
			nd := cur.dist + cost(nb.edge)
			if existing, ok := dist[nb.node]; !ok || nd < existing {
				dist[nb.node] = nd
				prevNode[nb.node] = cur.node
				prevEdge[nb.node] = nb.edge
				heap.Push(pq, pqItem{node: nb.node, dist: nd})
			}
		}
	}

	if _, ok := dist[end]; !ok {
		return Path{}, false, nil
	}
	return reconstructPath(start, end, prevNode, prevEdge, dist[end]), true, nil
}

func reconstructPath(start, end model.NodeID, prevNode map[model.NodeID]model.NodeID, prevEdge map[model.NodeID]model.EdgeID, cost float64) Path {
	var nodes []model.NodeID
	var edges []model.EdgeID
	cur := end
	for cur != start {
		nodes = append([]model.NodeID{cur}, nodes...)
		edges = append([]model.EdgeID{prevEdge[cur]}, edges...)
		cur = prevNode[cur]
	}
	nodes = append([]model.NodeID{start}, nodes...)
	return Path{Nodes: nodes, Edges: edges, Cost: cost}
}

// BidirectionalDijkstra runs Dijkstra simultaneously forward from
// start and backward from end (over incoming adjacency), stopping as
// soon as the two frontiers meet. Reports ok=false when they never
// meet.
func BidirectionalDijkstra(e *substrate.Engine, start, end model.NodeID, cost EdgeCost) (Path, bool, error) {
	if start == end {
		return Path{Nodes: []model.NodeID{start}}, true, nil
	}

	distF := map[model.NodeID]float64{start: 0}
	distB := map[model.NodeID]float64{end: 0}
	prevNodeF, prevEdgeF := map[model.NodeID]model.NodeID{}, map[model.NodeID]model.EdgeID{}
	prevNodeB, prevEdgeB := map[model.NodeID]model.NodeID{}, map[model.NodeID]model.EdgeID{}
	visitedF, visitedB := map[model.NodeID]bool{}, map[model.NodeID]bool{}

	pqF := &priorityQueue{{node: start, dist: 0}}
	pqB := &priorityQueue{{node: end, dist: 0}}
	heap.Init(pqF)
	heap.Init(pqB)

	best := math.Inf(1)
	var meet model.NodeID
	found := false

	step := func(pq *priorityQueue, dist map[model.NodeID]float64, visited map[model.NodeID]bool,
		prevNode map[model.NodeID]model.NodeID, prevEdge map[model.NodeID]model.EdgeID,
		otherDist map[model.NodeID]float64, forward bool) error {
		if pq.Len() == 0 {
			return nil
		}
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			return nil
		}
		visited[cur.node] = true
		if od, ok := otherDist[cur.node]; ok && cur.dist+od < best {
			best = cur.dist + od
			meet = cur.node
			found = true
		}
		var neighbors []neighbor
		var err error
		if forward {
			neighbors, err = outNeighbors(e, cur.node)
		} else {
			adj, ierr := e.GetIncoming(cur.node)
			err = ierr
			if ierr == nil {
				neighbors = make([]neighbor, len(adj))
				for i, a := range adj {
					neighbors[i] = neighbor{node: a.NeighborID, edge: a.EdgeID}
				}
			}
		}
		if err != nil {
			return err
		}
		for _, nb := range neighbors {
			if visited[nb.node] {
				continue
			}
			nd := cur.dist + cost(nb.edge)
			if existing, ok := dist[nb.node]; !ok || nd < existing {
				dist[nb.node] = nd
				prevNode[nb.node] = cur.node
				prevEdge[nb.node] = nb.edge
				heap.Push(pq, pqItem{node: nb.node, dist: nd})
			}
		}
		return nil
	}

	for pqF.Len() > 0 || pqB.Len() > 0 {
		if found && pqF.Len() > 0 && pqB.Len() > 0 && (*pqF)[0].dist+(*pqB)[0].dist >= best {
			break
		}
		if pqF.Len() > 0 {
			if err := step(pqF, distF, visitedF, prevNodeF, prevEdgeF, distB, true); err != nil {
				return Path{}, false, err
			}
		}
		if pqB.Len() > 0 {
			if err := step(pqB, distB, visitedB, prevNodeB, prevEdgeB, distF, false); err != nil {
				return Path{}, false, err
			}
		}
	}

	if !found {
		return Path{}, false, nil
	}

	fwd := reconstructPath(start, meet, prevNodeF, prevEdgeF, distF[meet])
	var bwdNodes []model.NodeID
	var bwdEdges []model.EdgeID
	cur := meet
	for cur != end {
		next := prevNodeB[cur]
		bwdNodes = append(bwdNodes, next)
		bwdEdges = append(bwdEdges, prevEdgeB[cur])
		cur = next
	}
	return Path{
		Nodes: append(fwd.Nodes, bwdNodes...),
		Edges: append(fwd.Edges, bwdEdges...),
		Cost:  best,
	}, true, nil
}

// AStar is Dijkstra with a goal-directed heuristic folded into the
// priority. With h returning 0 for every node it degenerates to plain
// Dijkstra.
func AStar(e *substrate.Engine, start, end model.NodeID, cost EdgeCost, h Heuristic) (Path, bool, error) {
	dist := map[model.NodeID]float64{start: 0}
	prevNode := map[model.NodeID]model.NodeID{}
	prevEdge := map[model.NodeID]model.EdgeID{}
	visited := map[model.NodeID]bool{}

	pq := &priorityQueue{{node: start, dist: h(start)}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == end {
			break
		}
		neighbors, err := outNeighbors(e, cur.node)
		if err != nil {
			return Path{}, false, err
		}
		for _, nb := range neighbors {
			if visited[nb.node] {
				continue
			}
			nd := dist[cur.node] + cost(nb.edge)
			if existing, ok := dist[nb.node]; !ok || nd < existing {
				dist[nb.node] = nd
				prevNode[nb.node] = cur.node
				prevEdge[nb.node] = nb.edge
				heap.Push(pq, pqItem{node: nb.node, dist: nd + h(nb.node)})
			}
		}
	}

	if _, ok := dist[end]; !ok {
		return Path{}, false, nil
	}
	return reconstructPath(start, end, prevNode, prevEdge, dist[end]), true, nil
}

// --- Bellman-Ford -----------------------------------------------------

// ErrNegativeCycle is returned by BellmanFord when a negative-weight
// cycle is reachable from start, in which case shortest distances are
// undefined.
var ErrNegativeCycle = dberr.ErrInvalidOperation

// BellmanFord computes single-source shortest distances over nodeIDs,
// tolerating negative edge weights. relax iterates |V|-1 times over
// every edge touching the given node set; a further relaxable edge on
// pass |V| indicates a negative cycle.
func BellmanFord(e *substrate.Engine, nodeIDs []model.NodeID, start model.NodeID, cost EdgeCost) (map[model.NodeID]float64, error) {
	dist := make(map[model.NodeID]float64, len(nodeIDs))
	for _, id := range nodeIDs {
		dist[id] = math.Inf(1)
	}
	dist[start] = 0

	edgesOf := make(map[model.NodeID][]neighbor, len(nodeIDs))
	for _, id := range nodeIDs {
		nb, err := outNeighbors(e, id)
		if err != nil {
			return nil, err
		}
		edgesOf[id] = nb
	}

	for i := 0; i < len(nodeIDs)-1; i++ {
		changed := false
		for _, id := range nodeIDs {
			if math.IsInf(dist[id], 1) {
				continue
			}
			for _, nb := range edgesOf[id] {
				if _, ok := dist[nb.node]; !ok {
					continue
				}
				nd := dist[id] + cost(nb.edge)
				if nd < dist[nb.node] {
					dist[nb.node] = nd
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	for _, id := range nodeIDs {
		if math.IsInf(dist[id], 1) {
			continue
		}
		for _, nb := range edgesOf[id] {
			if _, ok := dist[nb.node]; !ok {
				continue
			}
			if dist[id]+cost(nb.edge) < dist[nb.node] {
				return nil, ErrNegativeCycle
			}
		}
	}
	return dist, nil
}

// --- Tarjan's SCC -----------------------------------------------------

type tarjanState struct {
	e        *substrate.Engine
	index    map[model.NodeID]int
	lowlink  map[model.NodeID]int
	onStack  map[model.NodeID]bool
	stack    []model.NodeID
	counter  int
	out      [][]model.NodeID
	firstErr error
}

// StronglyConnectedComponents partitions nodeIDs into maximal sets
// where every node can reach every other node in the same set,
// following only outgoing edges.
func StronglyConnectedComponents(e *substrate.Engine, nodeIDs []model.NodeID) ([][]model.NodeID, error) {
	st := &tarjanState{
		e:       e,
		index:   map[model.NodeID]int{},
		lowlink: map[model.NodeID]int{},
		onStack: map[model.NodeID]bool{},
	}
	for _, id := range nodeIDs {
		if _, seen := st.index[id]; !seen {
			st.strongConnect(id)
			if st.firstErr != nil {
				return nil, st.firstErr
			}
		}
	}
	return st.out, nil
}

func (st *tarjanState) strongConnect(v model.NodeID) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	neighbors, err := outNeighbors(st.e, v)
	if err != nil {
		st.firstErr = err
		return
	}
	for _, nb := range neighbors {
		if _, seen := st.index[nb.node]; !seen {
			st.strongConnect(nb.node)
			if st.firstErr != nil {
				return
			}
			if st.lowlink[nb.node] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[nb.node]
			}
		} else if st.onStack[nb.node] {
			if st.index[nb.node] < st.lowlink[v] {
				st.lowlink[v] = st.index[nb.node]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var component []model.NodeID
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		st.out = append(st.out, component)
	}
}

// --- Bridges and articulation points (undirected view) ---------------

// EdgeEndpoints names both sides of an edge.
type EdgeEndpoints struct {
	A, B model.NodeID
	Edge model.EdgeID
}

type bridgeState struct {
	e        *substrate.Engine
	disc     map[model.NodeID]int
	low      map[model.NodeID]int
	parent   map[model.NodeID]model.NodeID
	timer    int
	bridges  []EdgeEndpoints
	artic    map[model.NodeID]bool
	firstErr error
}

// Bridges finds every edge whose removal disconnects the undirected
// view of the graph induced by nodeIDs.
func Bridges(e *substrate.Engine, nodeIDs []model.NodeID) ([]EdgeEndpoints, error) {
	st := &bridgeState{
		e:      e,
		disc:   map[model.NodeID]int{},
		low:    map[model.NodeID]int{},
		parent: map[model.NodeID]model.NodeID{},
		artic:  map[model.NodeID]bool{},
	}
	for _, id := range nodeIDs {
		if _, seen := st.disc[id]; !seen {
			st.dfs(id, true)
			if st.firstErr != nil {
				return nil, st.firstErr
			}
		}
	}
	return st.bridges, nil
}

// ArticulationPoints finds every node whose removal disconnects the
// undirected view of the graph induced by nodeIDs. Shares the same
// DFS low-link traversal as Bridges.
func ArticulationPoints(e *substrate.Engine, nodeIDs []model.NodeID) ([]model.NodeID, error) {
	st := &bridgeState{
		e:      e,
		disc:   map[model.NodeID]int{},
		low:    map[model.NodeID]int{},
		parent: map[model.NodeID]model.NodeID{},
		artic:  map[model.NodeID]bool{},
	}
	for _, id := range nodeIDs {
		if _, seen := st.disc[id]; !seen {
			st.dfs(id, true)
			if st.firstErr != nil {
				return nil, st.firstErr
			}
		}
	}
	out := make([]model.NodeID, 0, len(st.artic))
	for id := range st.artic {
		out = append(out, id)
	}
	return out, nil
}

func (st *bridgeState) dfs(u model.NodeID, isRoot bool) {
	st.disc[u] = st.timer
	st.low[u] = st.timer
	st.timer++
	children := 0

	neighbors, err := undirectedNeighbors(st.e, u)
	if err != nil {
		st.firstErr = err
		return
	}
	for _, nb := range neighbors {
		v := nb.node
		if _, seen := st.disc[v]; !seen {
			children++
			st.parent[v] = u
			st.dfs(v, false)
			if st.firstErr != nil {
				return
			}
			if st.low[v] < st.low[u] {
				st.low[u] = st.low[v]
			}
			if !isRoot && st.low[v] >= st.disc[u] {
				st.artic[u] = true
			}
			if st.low[v] > st.disc[u] {
				st.bridges = append(st.bridges, EdgeEndpoints{A: u, B: v, Edge: nb.edge})
			}
		} else if v != st.parent[u] {
			if st.disc[v] < st.low[u] {
				st.low[u] = st.disc[v]
			}
		}
	}
	if isRoot && children > 1 {
		st.artic[u] = true
	}
}

// --- Prim's MST (undirected view) -------------------------------------

// MSTEdge is one edge retained by PrimMST.
type MSTEdge struct {
	From, To model.NodeID
	Edge     model.EdgeID
	Weight   float64
}

// PrimMST grows a minimum spanning tree from an arbitrary root in
// nodeIDs, over the undirected view of the graph. Nodes unreachable
// from the root are simply absent from the result — the forest case.
func PrimMST(e *substrate.Engine, nodeIDs []model.NodeID, cost EdgeCost) ([]MSTEdge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	inTree := map[model.NodeID]bool{}
	var result []MSTEdge

	type frontierEdge = struct {
		from, to model.NodeID
		edge     model.EdgeID
		weight   float64
	}
	frontier := &mstHeap{}
	heap.Init(frontier)

	visit := func(n model.NodeID) error {
		inTree[n] = true
		neighbors, err := undirectedNeighbors(e, n)
		if err != nil {
			return err
		}
		for _, nb := range neighbors {
			if !inTree[nb.node] {
				heap.Push(frontier, frontierEdge{from: n, to: nb.node, edge: nb.edge, weight: cost(nb.edge)})
			}
		}
		return nil
	}

	for _, root := range nodeIDs {
		if inTree[root] {
			continue
		}
		if err := visit(root); err != nil {
			return nil, err
		}
		for frontier.Len() > 0 {
			fe := heap.Pop(frontier).(frontierEdge)
			if inTree[fe.to] {
				continue
			}
			result = append(result, MSTEdge{From: fe.from, To: fe.to, Edge: fe.edge, Weight: fe.weight})
			if err := visit(fe.to); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

type mstHeap []struct {
	from, to model.NodeID
	edge     model.EdgeID
	weight   float64
}

func (h mstHeap) Len() int           { return len(h) }
func (h mstHeap) Less(i, j int) bool { return h[i].weight < h[j].weight }
func (h mstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mstHeap) Push(x interface{}) {
	*h = append(*h, x.(struct {
		from, to model.NodeID
		edge     model.EdgeID
		weight   float64
	}))
}
func (h *mstHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// --- Edmonds-Karp max-flow ---------------------------------------------

// MaxFlow computes the maximum flow from source to sink over the
// directed graph, with capacity assigning each edge's flow ceiling.
// It is a plain Edmonds-Karp (BFS-augmenting-path) implementation,
// adequate for the catalog-completeness use case here rather than
// performance on large flow networks.
func MaxFlow(e *substrate.Engine, source, sink model.NodeID, capacity EdgeCost) (float64, error) {
	residual := map[model.NodeID]map[model.NodeID]float64{}

	ensure := func(n model.NodeID) {
		if residual[n] == nil {
			residual[n] = map[model.NodeID]float64{}
		}
	}

	visitedNodes := map[model.NodeID]bool{source: true}
	queue := []model.NodeID{source}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ensure(n)
		neighbors, err := outNeighbors(e, n)
		if err != nil {
			return 0, err
		}
		for _, nb := range neighbors {
			ensure(nb.node)
			cap := capacity(nb.edge)
			residual[n][nb.node] += cap
			if residual[nb.node][n] == 0 {
				residual[nb.node][n] = 0
			}
			if !visitedNodes[nb.node] {
				visitedNodes[nb.node] = true
				queue = append(queue, nb.node)
			}
		}
	}

	var total float64
	for {
		parent := map[model.NodeID]model.NodeID{source: source}
		bfsQueue := []model.NodeID{source}
		for len(bfsQueue) > 0 && parent[sink] == "" {
			n := bfsQueue[0]
			bfsQueue = bfsQueue[1:]
			for to, cap := range residual[n] {
				if cap > 0 {
					if _, seen := parent[to]; !seen {
						parent[to] = n
						bfsQueue = append(bfsQueue, to)
					}
				}
			}
		}
		if _, reached := parent[sink]; !reached || sink == source {
			break
		}

		bottleneck := math.Inf(1)
		for v := sink; v != source; {
			u := parent[v]
			if residual[u][v] < bottleneck {
				bottleneck = residual[u][v]
			}
			v = u
		}
		for v := sink; v != source; {
			u := parent[v]
			residual[u][v] -= bottleneck
			residual[v][u] += bottleneck
			v = u
		}
		total += bottleneck
	}
	return total, nil
}

// --- PageRank -----------------------------------------------------------

// PageRank scores every node in nodeIDs by the standard power-iteration
// formula over outgoing edges, damping dangling mass uniformly.
func PageRank(e *substrate.Engine, nodeIDs []model.NodeID, iterations int, damping float64) (map[model.NodeID]float64, error) {
	n := len(nodeIDs)
	if n == 0 {
		return map[model.NodeID]float64{}, nil
	}
	out := make(map[model.NodeID][]model.NodeID, n)
	outDegree := make(map[model.NodeID]int, n)
	index := map[model.NodeID]bool{}
	for _, id := range nodeIDs {
		index[id] = true
	}
	for _, id := range nodeIDs {
		neighbors, err := outNeighbors(e, id)
		if err != nil {
			return nil, err
		}
		var targets []model.NodeID
		for _, nb := range neighbors {
			if index[nb.node] {
				targets = append(targets, nb.node)
			}
		}
		out[id] = targets
		outDegree[id] = len(targets)
	}

	scores := make(map[model.NodeID]float64, n)
	for _, id := range nodeIDs {
		scores[id] = 1.0 / float64(n)
	}

	for iter := 0; iter < iterations; iter++ {
		var dangling float64
		for _, id := range nodeIDs {
			if outDegree[id] == 0 {
				dangling += scores[id]
			}
		}
		next := make(map[model.NodeID]float64, n)
		base := (1-damping)/float64(n) + damping*dangling/float64(n)
		for _, id := range nodeIDs {
			next[id] = base
		}
		for _, id := range nodeIDs {
			if outDegree[id] == 0 {
				continue
			}
			share := damping * scores[id] / float64(outDegree[id])
			for _, to := range out[id] {
				next[to] += share
			}
		}
		scores = next
	}
	return scores, nil
}

// --- Louvain community detection (single-level approximation) ----------

// Louvain assigns each node in nodeIDs a community id by one pass of
// greedy modularity optimization over the undirected view of the
// graph: every node starts in its own community and repeatedly moves
// to the neighboring community that most increases modularity, until
// no move improves it. This is the single-level approximation of the
// full multi-level Louvain method, sufficient for the catalog's
// auxiliary-query use case.
func Louvain(e *substrate.Engine, nodeIDs []model.NodeID) (map[model.NodeID]int, error) {
	community := make(map[model.NodeID]int, len(nodeIDs))
	neighbors := make(map[model.NodeID][]neighbor, len(nodeIDs))
	degree := make(map[model.NodeID]float64, len(nodeIDs))
	var totalWeight float64

	for i, id := range nodeIDs {
		community[id] = i
		nb, err := undirectedNeighbors(e, id)
		if err != nil {
			return nil, err
		}
		neighbors[id] = nb
		degree[id] = float64(len(nb))
		totalWeight += float64(len(nb))
	}
	if totalWeight == 0 {
		return community, nil
	}
	m2 := totalWeight

	communityDegree := make(map[int]float64, len(nodeIDs))
	for _, id := range nodeIDs {
		communityDegree[community[id]] += degree[id]
	}

	improved := true
	for improved {
		improved = false
		for _, id := range nodeIDs {
			currentComm := community[id]
			neighborComms := map[int]float64{}
			for _, nb := range neighbors[id] {
				neighborComms[community[nb.node]]++
			}

			communityDegree[currentComm] -= degree[id]
			bestComm := currentComm
			bestGain := neighborComms[currentComm] - degree[id]*communityDegree[currentComm]/m2

			for comm, edgesToComm := range neighborComms {
				if comm == currentComm {
					continue
				}
				gain := edgesToComm - degree[id]*communityDegree[comm]/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}
			communityDegree[bestComm] += degree[id]
			if bestComm != currentComm {
				community[id] = bestComm
				improved = true
			}
		}
	}
	return community, nil
}

// --- k-shortest-paths (Yen's algorithm) ---------------------------------

// KShortestPaths returns up to k loopless shortest paths from start to
// end in ascending cost order, via Yen's algorithm layered on
// Dijkstra.
func KShortestPaths(e *substrate.Engine, start, end model.NodeID, k int, cost EdgeCost) ([]Path, error) {
	first, ok, err := Dijkstra(e, start, end, cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	paths := []Path{first}
	var candidates []Path

	for len(paths) < k {
		prev := paths[len(paths)-1]
		for i := 0; i < len(prev.Nodes)-1; i++ {
			spurNode := prev.Nodes[i]
			rootNodes := append([]model.NodeID{}, prev.Nodes[:i+1]...)
			rootEdges := append([]model.EdgeID{}, prev.Edges[:i]...)

			removedEdges := map[model.EdgeID]bool{}
			for _, p := range paths {
				if len(p.Edges) > i && sameRoot(p.Nodes[:i+1], rootNodes) {
					removedEdges[p.Edges[i]] = true
				}
			}

			spurCost := func(edgeID model.EdgeID) float64 {
				if removedEdges[edgeID] {
					return math.Inf(1)
				}
				return cost(edgeID)
			}
			spurPath, ok, err := Dijkstra(e, spurNode, end, spurCost)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			totalNodes := append(append([]model.NodeID{}, rootNodes[:len(rootNodes)-1]...), spurPath.Nodes...)
			totalEdges := append(append([]model.EdgeID{}, rootEdges...), spurPath.Edges...)
			rootCost := pathCost(rootEdges, cost)
			candidate := Path{Nodes: totalNodes, Edges: totalEdges, Cost: rootCost + spurPath.Cost}
			if !containsPath(paths, candidate) && !containsPath(candidates, candidate) {
				candidates = append(candidates, candidate)
			}
		}
		if len(candidates) == 0 {
			break
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Cost < candidates[j].Cost })
		paths = append(paths, candidates[0])
		candidates = candidates[1:]
	}
	return paths, nil
}

func pathCost(edges []model.EdgeID, cost EdgeCost) float64 {
	var total float64
	for _, id := range edges {
		total += cost(id)
	}
	return total
}

func sameRoot(a, b []model.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsPath(paths []Path, p Path) bool {
	for _, existing := range paths {
		if sameRoot(existing.Nodes, p.Nodes) {
			return true
		}
	}
	return false
}
