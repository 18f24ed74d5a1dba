package receipts

import "sync"

// keyCache is a best-effort in-memory index of already-used receipt keys.
// It only short-circuits the duplicate response; admission is decided by
// the database's unique index, so a stale or empty cache is always safe.
type keyCache struct {
	mu   sync.RWMutex
	keys map[ReceiptKey]struct{}
}

func newKeyCache() *keyCache {
	return &keyCache{keys: make(map[ReceiptKey]struct{})}
}

func (c *keyCache) Contains(key ReceiptKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.keys[key]
	return ok
}

func (c *keyCache) Add(key ReceiptKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = struct{}{}
}

func (c *keyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
