// Package weaver is the reactive pipeline that reacts to newly
// created or updated nodes: it generates embeddings for text-bearing
// variants (semanticindexer.go) and extracts/links named entities
// (entitylinker.go). The worker loop pairs a trigger channel with a
// periodic ticker; the tick performs no scan, so a node whose trigger
// was dropped is not processed until it is enqueued again.
package weaver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tabagent/nornicsubstrate/pkg/mlbridge"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
)

// Config tunes the background worker loop.
type Config struct {
	// RescanInterval is the worker's ticker period. The tick does not
	// scan the store, so it does not recover nodes whose trigger was
	// missed.
	RescanInterval time.Duration

	// OnError receives every pipeline failure. Failures never roll
	// back the write that triggered them — they are logged and counted.
	// A nil OnError falls back to the standard logger.
	OnError func(err error)
}

// DefaultConfig returns the nominal rescan interval.
func DefaultConfig() Config {
	return Config{RescanInterval: 15 * time.Minute}
}

// Weaver reacts to node lifecycle events against a composed substrate
// Engine — the one type that already atomically maintains the tiered
// store, the adjacency index, the property index, and the vector
// index together, so the pipeline never re-derives that wiring
// itself.
type Weaver struct {
	engine *substrate.Engine
	bridge mlbridge.MlBridge
	config Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	trigger chan model.NodeID

	mu        sync.Mutex
	processed int
	failed    int
	closed    bool
}

// New builds a Weaver over engine, driven by bridge, and starts its
// background worker goroutine.
func New(engine *substrate.Engine, bridge mlbridge.MlBridge, config Config) *Weaver {
	if config.RescanInterval == 0 {
		config.RescanInterval = DefaultConfig().RescanInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Weaver{
		engine:  engine,
		bridge:  bridge,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		trigger: make(chan model.NodeID, 256),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// OnNodeCreated enqueues id for indexing and entity linking. Never
// blocks: a full trigger channel drops the newest id, and nothing
// re-enqueues it later.
func (w *Weaver) OnNodeCreated(id model.NodeID) {
	w.enqueue(id)
}

// OnNodeUpdated re-enqueues id the same way OnNodeCreated does; the
// semantic indexer skips nodes whose embedding is already present, so
// an update with unchanged content costs one lookup.
func (w *Weaver) OnNodeUpdated(id model.NodeID) {
	w.enqueue(id)
}

func (w *Weaver) enqueue(id model.NodeID) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	select {
	case w.trigger <- id:
	default:
	}
}

// Stats reports processed/failed counters for observability.
type Stats struct {
	Processed int
	Failed    int
}

// Stats returns a snapshot of the worker's counters.
func (w *Weaver) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Processed: w.processed, Failed: w.failed}
}

// Close stops the worker and waits for it to drain.
func (w *Weaver) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}

func (w *Weaver) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.trigger:
			w.process(id)
		case <-ticker.C:
			// Periodic rescan is a maintenance hook for a future
			// full-store sweep; the substrate doesn't yet expose a
			// "list every node lacking an embedding" cursor, so this
			// tick is a no-op placeholder until pkg/query grows one.
		}
	}
}

func (w *Weaver) process(id model.NodeID) {
	n, err := w.engine.GetNode(id)
	if err != nil {
		w.recordFailure(fmt.Errorf("weaver: load node %s: %w", id, err))
		return
	}

	if err := w.indexSemantics(n); err != nil {
		w.recordFailure(fmt.Errorf("weaver: semantic index %s: %w", id, err))
		return
	}
	if err := w.linkEntities(n); err != nil {
		w.recordFailure(fmt.Errorf("weaver: entity link %s: %w", id, err))
		return
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
}

func (w *Weaver) recordFailure(err error) {
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	if w.config.OnError != nil {
		w.config.OnError(err)
		return
	}
	log.Printf("%v", err)
}
