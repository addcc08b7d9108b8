package auth

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// CallerCache keeps authenticated callers in memory, keyed by the SHA-256
// digest of the bearer key so raw keys never sit in the map.
//
// Expired entries are served stale: Get still returns the caller and hands
// exactly one reader the job of refreshing it in the background, so after
// the first lookup of a key no request waits on Postgres and bcrypt.
type CallerCache struct {
	entries sync.Map // map[[32]byte]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	caller     *Caller
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCallerCache creates a cache with the given TTL.
func NewCallerCache(ttl time.Duration) *CallerCache {
	return &CallerCache{ttl: ttl, now: time.Now}
}

// Lookup is the outcome of CallerCache.Get.
type Lookup struct {
	Caller       *Caller
	Hit          bool // fresh or stale entry found
	NeedsRefresh bool // stale, and this reader owns the refresh
}

// Get looks up apiKey. A stale hit sets NeedsRefresh for one reader only
// until the entry is replaced by Set.
func (c *CallerCache) Get(apiKey string) Lookup {
	val, ok := c.entries.Load(digest(apiKey))
	if !ok {
		return Lookup{}
	}
	entry := val.(*cacheEntry)

	if c.now().Before(entry.expiresAt) {
		return Lookup{Caller: entry.caller, Hit: true}
	}
	return Lookup{
		Caller:       entry.caller,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores caller under apiKey with a fresh TTL.
func (c *CallerCache) Set(apiKey string, caller *Caller) {
	c.entries.Store(digest(apiKey), &cacheEntry{
		caller:    caller,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Delete drops apiKey, e.g. after its caller was disabled.
func (c *CallerCache) Delete(apiKey string) {
	c.entries.Delete(digest(apiKey))
}

func digest(apiKey string) [32]byte {
	return sha256.Sum256([]byte(apiKey))
}
