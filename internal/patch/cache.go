package patch

import (
	lru "github.com/hashicorp/golang-lru"
)

// cacheEntry holds preserved source bytes plus the number of pending
// Copy operations still waiting to consume them.
type cacheEntry struct {
	data     []byte
	refcount int
}

// blockCache is the refcounted block-eviction cache of spec.md §4.5.3. It
// is backed by hashicorp/golang-lru, used purely as a large, plain keyed
// store (Add/Get/Remove) — eviction here is driven entirely by refcount
// reaching zero, not by the LRU's own recency policy, so the underlying
// cache is sized large enough that its automatic eviction never triggers
// ahead of our own explicit Remove calls.
type blockCache struct {
	lru *lru.Cache
}

// newBlockCache creates a cache sized generously against maxEntries (the
// number of blocks in the delta map) so LRU eviction never preempts our
// refcount-driven removal.
func newBlockCache(maxEntries int) (*blockCache, error) {
	size := maxEntries*2 + 16
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &blockCache{lru: c}, nil
}

func (c *blockCache) get(offset int64) (*cacheEntry, bool) {
	v, ok := c.lru.Get(offset)
	if !ok {
		return nil, false
	}
	return v.(*cacheEntry), true
}

func (c *blockCache) store(offset int64, data []byte) *cacheEntry {
	e := &cacheEntry{data: data}
	c.lru.Add(offset, e)
	return e
}

// release decrements the entry's refcount and evicts it once no pending
// Copy still needs it.
func (c *blockCache) release(offset int64) {
	e, ok := c.get(offset)
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		c.lru.Remove(offset)
	}
}
