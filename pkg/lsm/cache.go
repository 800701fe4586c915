package lsm

import (
	"container/list"
	"sync"
)

// LRUCache caches Get results keyed by user key, invalidated per key
// on every write and cleared wholesale on flush and compaction, using
// a single-mutex,
// doubly-linked list design (Go's container/list).
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	entry Entry
	found bool
}

// NewLRUCache returns a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached (entry, found) for key, promoting it to the
// front of the eviction order, and ok reports whether key was in the
// cache at all.
func (c *LRUCache) Get(key []byte) (entry Entry, found bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, present := c.items[string(key)]
	if !present {
		return Entry{}, false, false
	}
	c.ll.MoveToFront(elem)
	ce := elem.Value.(*cacheEntry)
	return ce.entry, ce.found, true
}

// Put records key's lookup result, evicting the least recently used
// entry if the cache is at capacity.
func (c *LRUCache) Put(key []byte, entry Entry, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := string(key)
	if elem, present := c.items[k]; present {
		c.ll.MoveToFront(elem)
		elem.Value.(*cacheEntry).entry = entry
		elem.Value.(*cacheEntry).found = found
		return
	}

	elem := c.ll.PushFront(&cacheEntry{key: k, entry: entry, found: found})
	c.items[k] = elem

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Invalidate drops key from the cache, called whenever key is
// written so a stale negative or positive lookup never survives a
// mutation.
func (c *LRUCache) Invalidate(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, present := c.items[string(key)]; present {
		c.ll.Remove(elem)
		delete(c.items, string(key))
	}
}

// Clear empties the cache, used after a full data wipe or a
// compaction/flush that could invalidate any cached result.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[string]*list.Element)
}

// Size returns the current entry count.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
