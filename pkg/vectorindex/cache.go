package vectorindex

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// Cache is the warm decoded-vector cache in front of the cold HNSW
// index: an LRU list bounded by count and TTL, caching decoded
// []float32 vectors keyed by EmbeddingID, with hit/miss/eviction
// accounting.
type Cache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration

	list  *list.List
	items map[model.EmbeddingID]*list.Element

	hits         uint64
	misses       uint64
	evictionsCap uint64
	evictionsTTL uint64
}

type cacheEntry struct {
	key       model.EmbeddingID
	vector    []float32
	expiresAt time.Time
}

// NewCache creates a warm cache holding at most maxSize vectors, each
// expiring ttl after insertion (ttl == 0 disables expiration).
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		list:    list.New(),
		items:   make(map[model.EmbeddingID]*list.Element, maxSize),
	}
}

// Get returns the cached vector for id, if present and unexpired,
// promoting it to most-recently-used.
func (c *Cache) Get(id model.EmbeddingID) ([]float32, bool) {
	c.mu.RLock()
	elem, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		atomic.AddUint64(&c.evictionsTTL, 1)
		return nil, false
	}

	c.mu.Lock()
	c.list.MoveToFront(elem)
	c.mu.Unlock()

	atomic.AddUint64(&c.hits, 1)
	return entry.vector, true
}

// Put inserts or refreshes id's cached vector, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(id model.EmbeddingID, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.vector = vector
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: id, vector: vector}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	elem := c.list.PushFront(entry)
	c.items[id] = elem
}

// Remove evicts id from the cache, if present.
func (c *Cache) Remove(id model.EmbeddingID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.removeElement(elem)
	}
}

func (c *Cache) evictOldest() {
	elem := c.list.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	atomic.AddUint64(&c.evictionsCap, 1)
}

// removeElement assumes c.mu is already held.
func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.list.Remove(elem)
	delete(c.items, entry.key)
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// Stats reports hit/miss counters and per-cause eviction counters
// (capacity, TTL) for observability.
type Stats struct {
	Size           int
	MaxSize        int
	Hits           uint64
	Misses         uint64
	EvictionsCap   uint64 // evicted to stay within maxSize
	EvictionsTTL   uint64 // evicted because the entry expired
	HitRate        float64
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	evictionsCap := atomic.LoadUint64(&c.evictionsCap)
	evictionsTTL := atomic.LoadUint64(&c.evictionsTTL)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Size:         size,
		MaxSize:      c.maxSize,
		Hits:         hits,
		Misses:       misses,
		EvictionsCap: evictionsCap,
		EvictionsTTL: evictionsTTL,
		HitRate:      hitRate,
	}
}
