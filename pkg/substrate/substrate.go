// Package substrate wires the KV engine, typed codec, tiered storage
// coordinator, and the three auxiliary indexes (graph adjacency,
// structural property, vector) into the single `Engine` the rest of
// the system — Weaver, the task scheduler, the converged query
// planner — is built against.
//
// Architecture:
//   - Storage: pkg/kv + pkg/tiered (tier-aware node/embedding records)
//   - Graph: pkg/graphindex (outgoing/incoming adjacency)
//   - Schema: pkg/propindex (structural property lookups)
//   - Search: pkg/vectorindex (HNSW + warm cache)
//
// Engine is the one place that knows how to keep all four consistent
// across a single node/edge mutation — no index entry may exist
// without its backing record, and that invariant is enforced here,
// not scattered across callers.
package substrate

import (
	"context"
	"time"

	"github.com/tabagent/nornicsubstrate/pkg/codec"
	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/graphindex"
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/propindex"
	"github.com/tabagent/nornicsubstrate/pkg/tiered"
	"github.com/tabagent/nornicsubstrate/pkg/vectorindex"
)

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory runs the KV engine with no disk backing, for tests.
	InMemory bool

	// VectorDimension and VectorMetric configure the embedding space
	// this Engine serves. Dimensionality is fixed per embedding model
	// and never coerced, so one Engine instance serves one model's
	// dimensionality; a deployment needing multiple concurrent
	// embedding models runs one Engine (one data directory) per model.
	VectorDimension int
	VectorMetric    model.SimilarityMetric

	// VectorCacheSize and VectorCacheTTL bound the warm vector cache.
	VectorCacheSize int
	VectorCacheTTL  time.Duration // 0 disables expiration

	// EncryptionKey enables at-rest encryption of the underlying
	// store when set. See pkg/encryption.DeriveKey.
	EncryptionKey []byte
}

// Engine is the composed storage core.
type Engine struct {
	env    *kv.Env
	tiered *tiered.Coordinator
	graph  *graphindex.GraphIndex
	prop   *propindex.PropertyIndex
	vector *vectorindex.Index
	cache  *vectorindex.Cache
}

// Open creates or re-opens the on-disk store at opts.Path and builds
// every index on top of it, replaying persisted embeddings into a
// fresh in-memory vector index (the HNSW graph itself is not
// persisted — only the embedding records that back it are — so Open
// must rebuild it from the embeddings domain).
func Open(opts Options) (*Engine, error) {
	env, err := kv.Open(kv.Options{Path: opts.Path, InMemory: opts.InMemory, EncryptionKey: opts.EncryptionKey})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		env:    env,
		tiered: tiered.New(env),
		graph:  graphindex.New(env),
		prop:   propindex.New(env),
		vector: vectorindex.New(opts.VectorDimension, opts.VectorMetric, vectorindex.DefaultConfig()),
		cache:  vectorindex.NewCache(opts.VectorCacheSize, opts.VectorCacheTTL),
	}

	if err := e.rebuildVectorIndex(); err != nil {
		_ = env.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error { return e.env.Close() }

// InsertNode writes n and indexes its structural properties, as one
// write transaction: a node is never visible to GetNode without its
// property-index entries also having been committed.
func (e *Engine) InsertNode(n *model.Node) error {
	return e.env.Update(func(txn *kv.Txn) error {
		if err := e.tiered.InsertNode(txn, n); err != nil {
			return err
		}
		return e.prop.IndexNode(txn, n)
	})
}

// GetNode resolves id via the tiered coordinator's hot->warm->cold
// fallback search.
func (e *Engine) GetNode(id model.NodeID) (*model.Node, error) {
	var n *model.Node
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		n, err = e.tiered.GetNode(txn, id)
		return err
	})
	return n, err
}

// GetNodeWithHint resolves id, consulting the quarter implied by
// timestampHintMs before scanning other tiers.
func (e *Engine) GetNodeWithHint(id model.NodeID, domain tiered.Domain, timestampHintMs int64) (*model.Node, error) {
	var n *model.Node
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		n, err = e.tiered.GetNodeWithHint(txn, id, domain, timestampHintMs)
		return err
	})
	return n, err
}

// UpdateNode re-writes n in place (last-writer-wins) and
// re-indexes its structural properties against the previous version's
// property-index entries, so stale entries never accumulate.
func (e *Engine) UpdateNode(n *model.Node) error {
	return e.env.Update(func(txn *kv.Txn) error {
		old, err := e.tiered.GetNode(txn, n.ID)
		if err != nil && err != dberr.ErrNotFound {
			return err
		}
		if old != nil {
			if err := e.prop.UnindexNode(txn, old); err != nil {
				return err
			}
		}
		if err := e.tiered.InsertNode(txn, n); err != nil {
			return err
		}
		return e.prop.IndexNode(txn, n)
	})
}

// DeleteNode removes n and every index entry that refers to it: its
// property-index entries, and both adjacency-index entries for every
// edge it touches (incoming and outgoing), atomically. Node deletion
// is the only path that may orphan an edge, so the incident-edge
// cleanup lives here.
func (e *Engine) DeleteNode(id model.NodeID) error {
	return e.env.Update(func(txn *kv.Txn) error {
		n, err := e.tiered.GetNode(txn, id)
		if err != nil {
			return err
		}

		out, err := e.graph.GetOutgoing(txn, id)
		if err != nil {
			return err
		}
		for _, adj := range out {
			if err := e.graph.RemoveEdge(txn, id, adj.NeighborID, adj.EdgeID); err != nil {
				return err
			}
			if err := txn.Delete(kv.DBIEdge, kv.Key([]byte(adj.EdgeID))); err != nil {
				return err
			}
		}

		in, err := e.graph.GetIncoming(txn, id)
		if err != nil {
			return err
		}
		for _, adj := range in {
			if err := e.graph.RemoveEdge(txn, adj.NeighborID, id, adj.EdgeID); err != nil {
				return err
			}
			if err := txn.Delete(kv.DBIEdge, kv.Key([]byte(adj.EdgeID))); err != nil {
				return err
			}
		}

		if err := e.prop.UnindexNode(txn, n); err != nil {
			return err
		}
		return e.tiered.DeleteNode(txn, id)
	})
}

// AddEdge validates that both endpoints exist, then writes the edge
// record and both adjacency-index entries in one write transaction
// (a missing source or target node is a validation error, not
// silently tolerated).
func (e *Engine) AddEdge(from, to model.NodeID, edgeType, metadata string) (*model.Edge, error) {
	edge := &model.Edge{ID: model.NewEdgeID(), FromID: from, ToID: to, EdgeType: edgeType, Metadata: metadata}
	if err := edge.Validate(); err != nil {
		return nil, err
	}

	err := e.env.Update(func(txn *kv.Txn) error {
		if _, err := e.tiered.GetNode(txn, from); err != nil {
			return dberr.NewValidation("from_node", "does not exist: "+string(from))
		}
		if _, err := e.tiered.GetNode(txn, to); err != nil {
			return dberr.NewValidation("to_node", "does not exist: "+string(to))
		}
		buf, err := codec.EncodeEdge(edge)
		if err != nil {
			return err
		}
		if err := txn.Put(kv.DBIEdge, kv.Key([]byte(edge.ID)), buf); err != nil {
			return err
		}
		return e.graph.AddEdge(txn, edge)
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// GetEdge reads an edge record by id.
func (e *Engine) GetEdge(id model.EdgeID) (*model.Edge, error) {
	var edge *model.Edge
	err := e.env.View(func(txn *kv.Txn) error {
		buf, err := txn.Get(kv.DBIEdge, kv.Key([]byte(id)))
		if err != nil {
			return err
		}
		edge, err = codec.DecodeEdge(buf)
		return err
	})
	return edge, err
}

// RemoveEdge deletes an edge's record and both adjacency entries.
func (e *Engine) RemoveEdge(id model.EdgeID) error {
	return e.env.Update(func(txn *kv.Txn) error {
		buf, err := txn.Get(kv.DBIEdge, kv.Key([]byte(id)))
		if err != nil {
			return err
		}
		edge, err := codec.DecodeEdge(buf)
		if err != nil {
			return err
		}
		if err := e.graph.RemoveEdge(txn, edge.FromID, edge.ToID, edge.ID); err != nil {
			return err
		}
		return txn.Delete(kv.DBIEdge, kv.Key([]byte(id)))
	})
}

// GetOutgoing returns every edge leaving nodeID.
func (e *Engine) GetOutgoing(nodeID model.NodeID) ([]graphindex.AdjacentEdge, error) {
	var out []graphindex.AdjacentEdge
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		out, err = e.graph.GetOutgoing(txn, nodeID)
		return err
	})
	return out, err
}

// GetIncoming returns every edge arriving at nodeID.
func (e *Engine) GetIncoming(nodeID model.NodeID) ([]graphindex.AdjacentEdge, error) {
	var in []graphindex.AdjacentEdge
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		in, err = e.graph.GetIncoming(txn, nodeID)
		return err
	})
	return in, err
}

// IterOutgoing walks nodeID's outgoing edges inside one read
// transaction, handing fn (edge id, target id) slices borrowed from
// mapped memory — the allocation-free path for large adjacency runs.
// fn must not retain either slice beyond its own return.
func (e *Engine) IterOutgoing(nodeID model.NodeID, fn func(edgeID, target []byte) error) error {
	return e.env.View(func(txn *kv.Txn) error {
		return e.graph.IterOutgoing(txn, nodeID, fn)
	})
}

// IterIncoming is IterOutgoing's mirror over incoming edges.
func (e *Engine) IterIncoming(nodeID model.NodeID, fn func(edgeID, source []byte) error) error {
	return e.env.View(func(txn *kv.Txn) error {
		return e.graph.IterIncoming(txn, nodeID, fn)
	})
}

// InsertEmbedding persists e and adds it to the in-memory vector
// index, keeping exactly one index entry per persisted embedding.
func (e *Engine) InsertEmbedding(emb *model.Embedding) error {
	if err := e.env.Update(func(txn *kv.Txn) error {
		return e.tiered.InsertEmbedding(txn, emb)
	}); err != nil {
		return err
	}
	if err := e.vector.Add(emb.ID, emb.Vector); err != nil {
		return err
	}
	e.cache.Put(emb.ID, emb.Vector)
	return nil
}

// GetEmbedding resolves an embedding, preferring the warm cache.
func (e *Engine) GetEmbedding(id model.EmbeddingID) (*model.Embedding, error) {
	if vec, ok := e.cache.Get(id); ok {
		// The cache only stores the vector; the full record (model
		// name, metric) still needs resolving, but the common caller
		// (Search result hydration) only needs the vector — return a
		// minimal Embedding instead of paying a KV read.
		return &model.Embedding{ID: id, Vector: vec, Dimension: len(vec)}, nil
	}
	var emb *model.Embedding
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		emb, err = e.tiered.GetEmbedding(txn, id)
		return err
	})
	if err == nil && emb != nil {
		e.cache.Put(emb.ID, emb.Vector)
	}
	return emb, err
}

// Search runs a k-nearest-neighbor search over the vector index, with
// an optional candidate-set filter (the query planner's structural/
// graph pushdown).
func (e *Engine) Search(ctx context.Context, query []float32, k int, minScore float64, filter map[model.EmbeddingID]struct{}) ([]vectorindex.Result, error) {
	return e.vector.Search(ctx, query, k, minScore, filter)
}

// PropertyLookup returns every NodeID indexed under property == value.
func (e *Engine) PropertyLookup(property, value string) ([]model.NodeID, error) {
	var ids []model.NodeID
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		ids, err = e.prop.Lookup(txn, property, value)
		return err
	})
	return ids, err
}

// PropertyCount returns the cardinality of property == value without
// materializing the id list, used by the query planner to cost-order
// structural predicates.
func (e *Engine) PropertyCount(property, value string) (int, error) {
	var n int
	err := e.env.View(func(txn *kv.Txn) error {
		var err error
		n, err = e.prop.Count(txn, property, value)
		return err
	})
	return n, err
}

// Promote moves id to dest within its domain (maintenance/Weaver
// driven). Index entries referencing id (adjacency, property) are
// unaffected: they key on NodeID, not on tier location.
func (e *Engine) Promote(id model.NodeID, dest tiered.Tier, quarter string) error {
	return e.env.Update(func(txn *kv.Txn) error {
		return e.tiered.Promote(txn, id, dest, quarter)
	})
}

// VectorCacheStats exposes the warm vector cache's hit/eviction
// counters for observability.
func (e *Engine) VectorCacheStats() vectorindex.Stats {
	return e.cache.Stats()
}

// rebuildVectorIndex scans every tier of the embeddings domain and
// re-inserts each record into the in-memory HNSW index.
func (e *Engine) rebuildVectorIndex() error {
	return e.env.View(func(txn *kv.Txn) error {
		return txn.PrefixScan(kv.DBINode, e.tiered.EmbeddingsDomainPrefix(), func(_ []byte, value []byte) error {
			emb, err := codec.DecodeEmbedding(value)
			if err != nil {
				return err
			}
			return e.vector.Add(emb.ID, emb.Vector)
		})
	})
}
