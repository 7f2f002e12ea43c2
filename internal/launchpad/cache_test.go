package launchpad

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetaCache_PutGet(t *testing.T) {
	cache := NewMetaCache(time.Minute, 10)

	meta := TokenMeta{Mint: "MintA", Name: "Pulse Cat", Symbol: "PCAT"}
	cache.Put("MintA", meta)

	got, ok := cache.Get("MintA")
	assert.True(t, ok)
	assert.Equal(t, meta, got)

	_, ok = cache.Get("MintB")
	assert.False(t, ok)
}

func TestMetaCache_TTLExpiry(t *testing.T) {
	cache := NewMetaCache(10*time.Millisecond, 10)

	cache.Put("MintA", TokenMeta{Mint: "MintA", Symbol: "PCAT"})

	_, ok := cache.Get("MintA")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("MintA")
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, 0, cache.Len(), "expired entry is removed on read")
}

func TestMetaCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := NewMetaCache(time.Minute, 3)

	for i := 0; i < 3; i++ {
		cache.Put(fmt.Sprintf("Mint%d", i), TokenMeta{Mint: fmt.Sprintf("Mint%d", i)})
		time.Sleep(time.Millisecond)
	}
	cache.Put("MintNew", TokenMeta{Mint: "MintNew"})

	assert.Equal(t, 3, cache.Len())

	_, ok := cache.Get("Mint0")
	assert.False(t, ok, "oldest entry evicted")

	_, ok = cache.Get("MintNew")
	assert.True(t, ok)
}

func TestMetaCache_OverwriteDoesNotEvict(t *testing.T) {
	cache := NewMetaCache(time.Minute, 2)

	cache.Put("MintA", TokenMeta{Mint: "MintA", Name: "First"})
	cache.Put("MintB", TokenMeta{Mint: "MintB"})
	cache.Put("MintA", TokenMeta{Mint: "MintA", Name: "Second"})

	assert.Equal(t, 2, cache.Len())

	got, ok := cache.Get("MintA")
	assert.True(t, ok)
	assert.Equal(t, "Second", got.Name)

	_, ok = cache.Get("MintB")
	assert.True(t, ok)
}

func TestMetaCache_Stats(t *testing.T) {
	cache := NewMetaCache(time.Minute, 10)

	cache.Put("MintA", TokenMeta{Mint: "MintA"})
	cache.Get("MintA")
	cache.Get("MintA")
	cache.Get("MintMissing")

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.667, stats.HitRate, 0.01)
}
