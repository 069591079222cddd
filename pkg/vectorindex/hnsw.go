package vectorindex

import (
	"container/heap"
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// Config holds the HNSW tuning knobs. They don't depend on which
// distance metric the graph is built with.
type Config struct {
	M               int     // max connections per node per layer
	EfConstruction  int     // candidate list size during construction
	EfSearch        int     // candidate list size during search
	LevelMultiplier float64 // 1/ln(M)
}

// DefaultConfig mirrors DefaultHNSWConfig.
func DefaultConfig() Config {
	return Config{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16.0),
	}
}

type hnswNode struct {
	id        model.EmbeddingID
	vector    []float32
	level     int
	neighbors [][]model.EmbeddingID
	mu        sync.RWMutex
}

// Index is an HNSW approximate nearest-neighbor index parameterized
// over model.SimilarityMetric: every distance computation dispatches
// through Distance(metric, ...), so one graph implementation serves
// all six metrics.
type Index struct {
	config     Config
	dimension  int
	metric     model.SimilarityMetric
	mu         sync.RWMutex
	nodes      map[model.EmbeddingID]*hnswNode
	entryPoint model.EmbeddingID
	maxLevel   int
}

// New creates an empty index for vectors of the given dimension and metric.
func New(dimension int, metric model.SimilarityMetric, config Config) *Index {
	if config.M == 0 {
		config = DefaultConfig()
	}
	return &Index{
		config:    config,
		dimension: dimension,
		metric:    metric,
		nodes:     make(map[model.EmbeddingID]*hnswNode),
	}
}

// shouldNormalize reports whether vectors should be unit-normalized
// before insertion. Only cosine qualifies: its similarity is
// magnitude-invariant, so pre-normalizing just cheapens each distance
// call. Dot product must keep magnitudes (normalizing would collapse
// it into cosine), and normalizing an L2 or Hamming vector would
// corrupt its distance semantics outright.
func (ix *Index) shouldNormalize() bool {
	return ix.metric == model.MetricCosine
}

// Add inserts vec under id.
func (ix *Index) Add(id model.EmbeddingID, vec []float32) error {
	if len(vec) != ix.dimension {
		return dberr.ErrDimensionMismatch
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	stored := vec
	if ix.shouldNormalize() {
		stored = normalize(vec)
	}
	level := ix.randomLevel()

	node := &hnswNode{
		id:        id,
		vector:    stored,
		level:     level,
		neighbors: make([][]model.EmbeddingID, level+1),
	}
	for i := range node.neighbors {
		node.neighbors[i] = make([]model.EmbeddingID, 0, ix.config.M)
	}
	ix.nodes[id] = node

	if ix.entryPoint == "" {
		ix.entryPoint = id
		ix.maxLevel = level
		return nil
	}

	ep := ix.entryPoint
	epLevel := ix.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = ix.searchLayerSingle(stored, ep, l)
	}

	top := level
	if epLevel < top {
		top = epLevel
	}
	for l := top; l >= 0; l-- {
		candidates := ix.searchLayer(stored, ep, ix.config.EfConstruction, l)
		neighbors := ix.selectNeighbors(stored, candidates, ix.config.M)
		node.neighbors[l] = neighbors

		for _, neighborID := range neighbors {
			neighbor := ix.nodes[neighborID]
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				if len(neighbor.neighbors[l]) < ix.config.M {
					neighbor.neighbors[l] = append(neighbor.neighbors[l], id)
				} else {
					all := append(append([]model.EmbeddingID{}, neighbor.neighbors[l]...), id)
					neighbor.neighbors[l] = ix.selectNeighbors(neighbor.vector, all, ix.config.M)
				}
			}
			neighbor.mu.Unlock()
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > ix.maxLevel {
		ix.entryPoint = id
		ix.maxLevel = level
	}
	return nil
}

// Remove deletes id from the index, unlinking it from every neighbor
// that referenced it.
func (ix *Index) Remove(id model.EmbeddingID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	node, ok := ix.nodes[id]
	if !ok {
		return
	}
	for l := 0; l <= node.level; l++ {
		for _, neighborID := range node.neighbors[l] {
			neighbor, ok := ix.nodes[neighborID]
			if !ok {
				continue
			}
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				filtered := make([]model.EmbeddingID, 0, len(neighbor.neighbors[l]))
				for _, nid := range neighbor.neighbors[l] {
					if nid != id {
						filtered = append(filtered, nid)
					}
				}
				neighbor.neighbors[l] = filtered
			}
			neighbor.mu.Unlock()
		}
	}
	delete(ix.nodes, id)

	if ix.entryPoint == id {
		ix.entryPoint = ""
		ix.maxLevel = 0
		for nid, n := range ix.nodes {
			if ix.entryPoint == "" || n.level > ix.maxLevel {
				ix.maxLevel = n.level
				ix.entryPoint = nid
			}
		}
	}
}

// Result is one nearest-neighbor hit.
type Result struct {
	ID    model.EmbeddingID
	Score float64 // higher is closer, regardless of metric
}

// Search returns up to k nearest neighbors to query, filtering out
// any whose score falls below minScore. Score is always
// "higher is closer" even though Distance is "lower is closer", so
// callers never need to know which metric is in effect.
//
// A nil filter considers every indexed embedding. A non-nil filter
// restricts results to ids present in it — the query planner's
// structural/graph pushdown.
func (ix *Index) Search(ctx context.Context, query []float32, k int, minScore float64, filter map[model.EmbeddingID]struct{}) ([]Result, error) {
	if len(query) != ix.dimension {
		return nil, dberr.ErrDimensionMismatch
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 0 {
		return []Result{}, nil
	}

	q := query
	if ix.shouldNormalize() {
		q = normalize(query)
	}
	ep := ix.entryPoint

	// A narrow filter can exclude the HNSW entry point's neighborhood
	// entirely; widen ef so the graph walk still surfaces enough
	// in-filter candidates instead of returning early with too few.
	ef := ix.config.EfSearch
	if filter != nil && len(filter) < ef {
		ef = len(ix.nodes)
	}
	for l := ix.maxLevel; l > 0; l-- {
		ep = ix.searchLayerSingle(q, ep, l)
	}

	candidates := ix.searchLayer(q, ep, ef, 0)

	results := make([]Result, 0, k)
	for _, candidateID := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if filter != nil {
			if _, ok := filter[candidateID]; !ok {
				continue
			}
		}
		node := ix.nodes[candidateID]
		score := Score(Distance(ix.metric, q, node.vector))
		if score >= minScore {
			results = append(results, Result{ID: candidateID, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

func (ix *Index) searchLayerSingle(query []float32, entryID model.EmbeddingID, level int) model.EmbeddingID {
	current := entryID
	currentDist := Distance(ix.metric, query, ix.nodes[current].vector)

	for {
		changed := false
		node := ix.nodes[current]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			neighbor := ix.nodes[neighborID]
			dist := Distance(ix.metric, query, neighbor.vector)
			if dist < currentDist {
				current = neighborID
				currentDist = dist
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

func (ix *Index) searchLayer(query []float32, entryID model.EmbeddingID, ef, level int) []model.EmbeddingID {
	visited := map[model.EmbeddingID]bool{entryID: true}

	candidates := &distHeap{}
	heap.Init(candidates)
	results := &distHeap{}
	heap.Init(results)

	entryDist := Distance(ix.metric, query, ix.nodes[entryID].vector)
	heap.Push(candidates, distItem{id: entryID, dist: entryDist, isMax: false})
	heap.Push(results, distItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)

		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}

		node := ix.nodes[closest.id]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor := ix.nodes[neighborID]
			dist := Distance(ix.metric, query, neighbor.vector)

			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, distItem{id: neighborID, dist: dist, isMax: false})
				heap.Push(results, distItem{id: neighborID, dist: dist, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]model.EmbeddingID, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item := heap.Pop(results).(distItem)
		out[i] = item.id
	}
	return out
}

func (ix *Index) selectNeighbors(query []float32, candidates []model.EmbeddingID, m int) []model.EmbeddingID {
	if len(candidates) <= m {
		return candidates
	}
	type dn struct {
		id   model.EmbeddingID
		dist float64
	}
	dists := make([]dn, len(candidates))
	for i, cid := range candidates {
		dists[i] = dn{id: cid, dist: Distance(ix.metric, query, ix.nodes[cid].vector)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	out := make([]model.EmbeddingID, m)
	for i := 0; i < m; i++ {
		out[i] = dists[i].id
	}
	return out
}

func (ix *Index) randomLevel() int {
	r := rand.Float64()
	return int(-math.Log(r) * ix.config.LevelMultiplier)
}

type distItem struct {
	id    model.EmbeddingID
	dist  float64
	isMax bool
}

type distHeap []distItem

func (dh distHeap) Len() int { return len(dh) }
func (dh distHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh distHeap) Swap(i, j int) { dh[i], dh[j] = dh[j], dh[i] }

func (dh *distHeap) Push(x interface{}) { *dh = append(*dh, x.(distItem)) }

func (dh *distHeap) Pop() interface{} {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[:n-1]
	return x
}
