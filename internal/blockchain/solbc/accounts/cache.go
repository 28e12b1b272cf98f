package accounts

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	value    []KeyedAccount
	storedAt time.Time
}

// resultCache is an LRU of scan results whose entries expire after ttl.
// A nil *resultCache caches nothing.
type resultCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	store *lru.Cache[string, cacheEntry]
}

func newResultCache(maxEntries int, ttl time.Duration) *resultCache {
	if maxEntries <= 0 || ttl <= 0 {
		return nil
	}
	store, err := lru.New[string, cacheEntry](maxEntries)
	if err != nil {
		return nil
	}
	return &resultCache{ttl: ttl, store: store}
}

func (c *resultCache) get(key string) ([]KeyedAccount, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.store.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (c *resultCache) add(key string, value []KeyedAccount) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Add(key, cacheEntry{value: value, storedAt: time.Now()})
}
