package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecfs/internal/resource"
)

// LRUBlockCache is a BlockCache evicting the least recently used block once
// the byte capacity is reached.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[Key]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value []byte
}

// NewLRUBlockCache creates an LRU cache holding at most capacity bytes.
// If rc is non-nil, cached bytes are reserved through it.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches a block, replacing any previous image of the same key.
func (c *LRUBlockCache) Set(_ context.Context, key Key, b []byte) {
	size := int64(len(b))
	if size > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	for c.size+size > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
	// The process-wide limit wins over local capacity: skip caching when
	// the controller refuses the reservation.
	if !c.rc.TryAcquireMemory(size) {
		return
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: b})
	c.size += size
}

// Remove drops key from the cache.
func (c *LRUBlockCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Invalidate removes entries matching the predicate.
func (c *LRUBlockCache) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if predicate(key) {
			c.removeElement(el)
		}
	}
}

// Close drops all entries and returns their memory.
func (c *LRUBlockCache) Close() error {
	c.Invalidate(func(Key) bool { return true })
	return nil
}

// Stats returns hit and miss counters.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUBlockCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.key)
	size := int64(len(e.value))
	c.size -= size
	c.rc.ReleaseMemory(size)
}
