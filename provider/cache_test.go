package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
)

func TestResultCache_SetGet(t *testing.T) {
	cache := NewResultCache(10, time.Minute, nil)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k1", TransactionResult{GatewayName: "stripe", Status: StatusSucceeded})
	result, ok := cache.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "stripe", result.GatewayName)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.001)
}

func TestResultCache_TTL(t *testing.T) {
	clock := clockz.NewFakeClock()
	cache := NewResultCache(10, time.Minute, clock)

	cache.Set("k1", TransactionResult{Status: StatusFailed})
	clock.Advance(30 * time.Second)
	_, ok := cache.Get("k1")
	assert.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = cache.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().TTLExpiries)
}

func TestResultCache_LRUEviction(t *testing.T) {
	cache := NewResultCache(2, time.Minute, nil)

	cache.Set("a", TransactionResult{})
	cache.Set("b", TransactionResult{})
	cache.Get("a") // b is now least recently used
	cache.Set("c", TransactionResult{})

	_, okA := cache.Get("a")
	_, okB := cache.Get("b")
	_, okC := cache.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestResultCache_Cleanup(t *testing.T) {
	clock := clockz.NewFakeClock()
	cache := NewResultCache(10, time.Minute, clock)

	cache.Set("old", TransactionResult{})
	clock.Advance(2 * time.Minute)
	cache.Set("new", TransactionResult{})

	cache.Cleanup()
	assert.Equal(t, 1, cache.Size())

	cache.Delete("new")
	assert.Equal(t, 0, cache.Size())
}
