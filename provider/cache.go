package provider

import (
	"container/list"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// resultCacheEntry represents a cached transaction result
type resultCacheEntry struct {
	key         string
	result      TransactionResult
	createdAt   time.Time
	listElement *list.Element
}

// ResultCache holds finalized transaction results keyed by idempotency key
type ResultCache interface {
	// Get returns the cached result for key, if present and not expired
	Get(key string) (TransactionResult, bool)

	// Set stores a result for key
	Set(key string, result TransactionResult)

	// Delete removes a key
	Delete(key string)

	// Size returns the current number of cached entries
	Size() int

	// Stats returns cache statistics
	Stats() CacheStats

	// Cleanup removes expired entries
	Cleanup()
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

// InMemoryResultCache is an LRU cache with a fixed TTL per entry
type InMemoryResultCache struct {
	entries     map[string]*resultCacheEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	ttl         time.Duration
	clock       clockz.Clock
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewResultCache creates an in-memory result cache
func NewResultCache(maxSize int, ttl time.Duration, clock clockz.Clock) *InMemoryResultCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &InMemoryResultCache{
		entries:     make(map[string]*resultCacheEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
		clock:       clock,
	}
}

// Get retrieves a result from cache
func (c *InMemoryResultCache) Get(key string) (TransactionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return TransactionResult{}, false
	}

	if c.expired(entry, c.clock.Now()) {
		c.deleteEntryUnsafe(entry)
		c.ttlExpiries++
		c.misses++
		return TransactionResult{}, false
	}

	c.accessOrder.MoveToFront(entry.listElement)
	c.hits++
	return entry.result, true
}

// Set stores a result in cache
func (c *InMemoryResultCache) Set(key string, result TransactionResult) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		existing.result = result
		existing.createdAt = now
		c.accessOrder.MoveToFront(existing.listElement)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRUUnsafe()
	}

	entry := &resultCacheEntry{key: key, result: result, createdAt: now}
	entry.listElement = c.accessOrder.PushFront(entry)
	c.entries[key] = entry
}

// Delete removes a result from cache
func (c *InMemoryResultCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.deleteEntryUnsafe(entry)
	}
}

// Size returns the current number of cached entries
func (c *InMemoryResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *InMemoryResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
		TTL:         c.ttl,
	}
}

// Cleanup removes expired entries
func (c *InMemoryResultCache) Cleanup() {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			c.deleteEntryUnsafe(entry)
			c.ttlExpiries++
		}
	}
}

func (c *InMemoryResultCache) expired(entry *resultCacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.createdAt) > c.ttl
}

// evictLRUUnsafe removes the least recently used entry (must be called with lock held)
func (c *InMemoryResultCache) evictLRUUnsafe() {
	lruElement := c.accessOrder.Back()
	if lruElement == nil {
		return
	}
	c.deleteEntryUnsafe(lruElement.Value.(*resultCacheEntry))
	c.evictions++
}

// deleteEntryUnsafe removes an entry from both map and list (must be called with lock held)
func (c *InMemoryResultCache) deleteEntryUnsafe(entry *resultCacheEntry) {
	delete(c.entries, entry.key)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}
