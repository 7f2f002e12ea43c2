package launchpad

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Metadata cache
// Name/symbol rarely change, so don't refetch every cycle
// ---------------------------------------------------------------------------

const (
	defaultCacheTTL     = 300 * time.Second
	defaultCacheMaxSize = 1000
)

type metaEntry struct {
	meta     TokenMeta
	cachedAt time.Time
}

// MetaCache is a TTL + max-size bounded cache of token metadata.
type MetaCache struct {
	mu      sync.Mutex
	entries map[string]*metaEntry
	ttl     time.Duration
	maxSize int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMetaCache creates a cache. Zero ttl or maxSize fall back to defaults.
func NewMetaCache(ttl time.Duration, maxSize int) *MetaCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	return &MetaCache{
		entries: make(map[string]*metaEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns cached metadata if present and fresh.
func (c *MetaCache) Get(mint string) (TokenMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[mint]
	if !ok {
		c.misses.Add(1)
		return TokenMeta{}, false
	}
	if time.Since(entry.cachedAt) > c.ttl {
		delete(c.entries, mint)
		c.misses.Add(1)
		return TokenMeta{}, false
	}

	c.hits.Add(1)
	return entry.meta, true
}

// Put stores metadata, evicting the oldest entry when at capacity.
func (c *MetaCache) Put(mint string, meta TokenMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[mint]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[mint] = &metaEntry{
		meta:     meta,
		cachedAt: time.Now(),
	}
}

// evictOldest removes the entry with the earliest cache time.
// Caller must hold mu.
func (c *MetaCache) evictOldest() {
	var oldestMint string
	var oldestTime time.Time

	for mint, entry := range c.entries {
		if oldestMint == "" || entry.cachedAt.Before(oldestTime) {
			oldestMint = mint
			oldestTime = entry.cachedAt
		}
	}
	if oldestMint != "" {
		delete(c.entries, oldestMint)
		c.evictions.Add(1)
	}
}

// Len returns the number of cached entries.
func (c *MetaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats returns metadata cache statistics.
type CacheStats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

func (c *MetaCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return CacheStats{
		Size:      c.Len(),
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
