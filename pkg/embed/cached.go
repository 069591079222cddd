package embed

import (
	"container/list"
	"context"
	"hash/fnv"
	"strconv"
	"sync"
)

// CachedEmbedder memoizes another Embedder behind an LRU keyed by an
// FNV-1a hash of the input text, so the Weaver's re-index checks and
// repeated queries never pay for the same embedding twice. Caching is
// transparent: a hit returns exactly what the base embedder returned.
type CachedEmbedder struct {
	base Embedder

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   uint64
	misses uint64
}

type cachedVector struct {
	key    string
	vector []float32
}

// NewCachedEmbedder wraps base with an LRU of at most maxSize vectors.
func NewCachedEmbedder(base Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &CachedEmbedder{
		base:    base,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func textKey(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 16)
}

func (c *CachedEmbedder) lookup(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*cachedVector).vector, true
}

func (c *CachedEmbedder) store(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cachedVector).vector = vector
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&cachedVector{key: key, vector: vector})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedVector).key)
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}
	vec, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(key, vec)
	return vec, nil
}

// EmbedBatch serves what it can from the cache and forwards only the
// misses to the base embedder's batch call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.lookup(textKey(text)); ok {
			vectors[i] = vec
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	}
	if len(missTexts) > 0 {
		fetched, err := c.base.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range fetched {
			vectors[missIdx[j]] = vec
			c.store(textKey(missTexts[j]), vec)
		}
	}
	return vectors, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.base.Dimensions() }

func (c *CachedEmbedder) Model() string { return c.base.Model() }

// CacheStats reports the memoization counters.
type CacheStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Stats snapshots the cache counters.
func (c *CachedEmbedder) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}

// Clear drops every cached vector, keeping the counters.
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}
