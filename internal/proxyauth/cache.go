package proxyauth

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedIdentity struct {
	identity Identity
	cachedAt time.Time
}

// Cache is an LRU of resolved keys with a TTL, keyed by key hash.
type Cache struct {
	cache *lru.Cache[string, *cachedIdentity]
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is exposed on the health endpoint.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func NewCache(maxSize int, ttl time.Duration, now func() time.Time) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}

	cache, err := lru.New[string, *cachedIdentity](maxSize)
	if err != nil {
		return nil, fmt.Errorf("proxyauth: failed to create cache: %w", err)
	}
	return &Cache{cache: cache, ttl: ttl, now: now}, nil
}

// Get returns a cached identity that has not outlived the TTL.
func (c *Cache) Get(hash string) (Identity, bool) {
	c.mu.RLock()
	cached, ok := c.cache.Get(hash)
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return Identity{}, false
	}

	if c.now().Sub(cached.cachedAt) > c.ttl {
		// Re-check under the write lock so a fresh Set is not evicted.
		c.mu.Lock()
		current, stillExists := c.cache.Get(hash)
		if stillExists && c.now().Sub(current.cachedAt) > c.ttl {
			c.cache.Remove(hash)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return Identity{}, false
	}

	c.hits.Add(1)
	return cached.identity, true
}

func (c *Cache) Set(hash string, identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(hash, &cachedIdentity{identity: identity, cachedAt: c.now()})
}

func (c *Cache) Invalidate(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(hash)
}

func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := c.cache.Len()
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return CacheStats{Size: size, Hits: hits, Misses: misses, HitRate: hitRate}
}
