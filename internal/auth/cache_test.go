package auth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a cache whose time only moves when advance is called.
func fakeClock(ttl time.Duration) (*CallerCache, func(time.Duration)) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCallerCache(ttl)
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return c, func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
}

func TestCallerCache_Lookup(t *testing.T) {
	cache, advance := fakeClock(time.Minute)

	assert.Equal(t, Lookup{}, cache.Get("tsk_missing"), "miss")

	cache.Set("tsk_abc123", &Caller{ID: "caller_1"})
	fresh := cache.Get("tsk_abc123")
	require.True(t, fresh.Hit)
	assert.False(t, fresh.NeedsRefresh)
	assert.Equal(t, "caller_1", fresh.Caller.ID)

	advance(time.Minute)
	stale := cache.Get("tsk_abc123")
	require.True(t, stale.Hit, "expired entries are still served")
	assert.True(t, stale.NeedsRefresh)
	assert.Equal(t, "caller_1", stale.Caller.ID)

	again := cache.Get("tsk_abc123")
	assert.True(t, again.Hit)
	assert.False(t, again.NeedsRefresh, "refresh already claimed")
}

func TestCallerCache_SetAfterStaleResetsFreshness(t *testing.T) {
	cache, advance := fakeClock(time.Second)
	cache.Set("tsk_abc123", &Caller{ID: "caller_1"})
	advance(2 * time.Second)
	require.True(t, cache.Get("tsk_abc123").NeedsRefresh)

	cache.Set("tsk_abc123", &Caller{ID: "caller_1_updated"})

	r := cache.Get("tsk_abc123")
	require.True(t, r.Hit)
	assert.False(t, r.NeedsRefresh)
	assert.Equal(t, "caller_1_updated", r.Caller.ID)
}

func TestCallerCache_Delete(t *testing.T) {
	cache := NewCallerCache(time.Minute)
	cache.Set("tsk_abc123", &Caller{ID: "caller_1"})
	cache.Delete("tsk_abc123")
	assert.False(t, cache.Get("tsk_abc123").Hit)
}

func TestCallerCache_KeysAreDistinct(t *testing.T) {
	cache := NewCallerCache(time.Minute)
	cache.Set("tsk_a", &Caller{ID: "a"})
	cache.Set("tsk_b", &Caller{ID: "b"})

	assert.Equal(t, "a", cache.Get("tsk_a").Caller.ID)
	assert.Equal(t, "b", cache.Get("tsk_b").Caller.ID)

	cache.entries.Range(func(k, _ any) bool {
		_, isDigest := k.([32]byte)
		assert.True(t, isDigest, "raw keys are not stored")
		return true
	})
}

func TestCallerCache_ConcurrentStaleRefresh(t *testing.T) {
	cache, advance := fakeClock(time.Second)
	cache.Set("tsk_key", &Caller{ID: "caller_1"})
	advance(2 * time.Second)

	var wg sync.WaitGroup
	var refreshes, misses atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := cache.Get("tsk_key")
			if !r.Hit {
				misses.Add(1)
			}
			if r.NeedsRefresh {
				refreshes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, misses.Load())
	assert.Equal(t, int32(1), refreshes.Load(), "exactly one reader refreshes")
}

func BenchmarkCallerCache_GetFreshHit(b *testing.B) {
	cache := NewCallerCache(5 * time.Minute)
	cache.Set("tsk_bench_key", &Caller{ID: "caller_bench"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !cache.Get("tsk_bench_key").Hit {
				b.Fatal("expected hit")
			}
		}
	})
}
