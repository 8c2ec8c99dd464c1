package querycache

import (
	"sync"

	"github.com/resyncio/querysync/pkg/querykey"
)

// bucketEntry pairs a stored key with its entry so lookups inside a hash
// bucket can disambiguate collisions via querykey.Key.Equal, rather than
// trusting the hash alone or falling back to Key.String (which is a
// debug format, not a safe equality surrogate — two unequal keys can
// render identically).
type bucketEntry struct {
	key   querykey.Key
	entry *CacheEntry
}

// Cache is the process-wide keyed store: a hash-bucketed map guarded by a
// global mutex for structural changes (insert/delete), with each entry
// carrying its own mutex for the frequent data/err/fetchTime/observer
// mutations that don't need to block unrelated keys. This mirrors the
// two-level locking shape of a striped buffer cache: one lock to find or
// create the record, a per-record lock to mutate it.
type Cache struct {
	mu      sync.RWMutex
	buckets map[uint64][]bucketEntry
	count   int
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{buckets: make(map[uint64][]bucketEntry)}
}

// Get returns the entry for key if one already exists.
func (c *Cache) Get(key querykey.Key) (*CacheEntry, bool) {
	h := key.Hash()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, be := range c.buckets[h] {
		if be.key.Equal(key) {
			return be.entry, true
		}
	}
	return nil, false
}

// GetOrCreate returns the entry for key, creating and inserting an empty
// one if none exists yet. Double-checked: the fast path only takes the
// read lock; only a genuine miss escalates to the write lock, and the
// bucket is re-scanned under it in case another goroutine raced in.
func (c *Cache) GetOrCreate(key querykey.Key) *CacheEntry {
	if e, ok := c.Get(key); ok {
		return e
	}

	h := key.Hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, be := range c.buckets[h] {
		if be.key.Equal(key) {
			return be.entry
		}
	}

	e := &CacheEntry{regs: make(map[ActiveObserver]struct{})}
	c.buckets[h] = append(c.buckets[h], bucketEntry{key: key, entry: e})
	c.count++
	return e
}

// Delete removes the entry for key, if present. Reports whether anything
// was removed.
func (c *Cache) Delete(key querykey.Key) bool {
	h := key.Hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.buckets[h]
	for i, be := range bucket {
		if be.key.Equal(key) {
			c.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			c.count--
			return true
		}
	}
	return false
}

// Len reports the number of distinct keys currently stored.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// entryRef pairs a key with its entry, returned by snapshot enumeration
// so callers of ForEach don't need to re-derive the key from the entry
// (CacheEntry itself is key-agnostic).
type entryRef struct {
	Key   querykey.Key
	Entry *CacheEntry
}

// forEach calls fn for a consistent snapshot of every (key, entry) pair
// currently stored. fn must not call back into Delete/GetOrCreate.
func (c *Cache) forEach(fn func(entryRef)) {
	c.mu.RLock()
	refs := make([]entryRef, 0, c.count)
	for _, bucket := range c.buckets {
		for _, be := range bucket {
			refs = append(refs, entryRef{Key: be.key, Entry: be.entry})
		}
	}
	c.mu.RUnlock()

	for _, r := range refs {
		fn(r)
	}
}
