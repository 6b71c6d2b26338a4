// Package dedup provides a bounded, time-aware cache of recently seen
// inbound message identifiers. It suppresses double processing of retried
// webhook deliveries. The cache is process-local and may be empty after a
// restart, so downstream effects must themselves be safe to repeat.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the default maximum number of tracked ids.
	DefaultCapacity = 1000

	// DefaultMaxAge is the default retention used by Cleanup.
	DefaultMaxAge = 30 * time.Minute
)

type entry struct {
	id   string
	seen time.Time
}

// Cache is an insertion-ordered record of message ids with
// least-recently-touched eviction. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = least recently touched
	index    map[string]*list.Element // id -> element holding *entry
	now      func() time.Time
}

// New creates a cache capped at capacity entries. A capacity <= 0 falls
// back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Admit records a message id. It returns true if the id was not previously
// seen, false for a duplicate. Re-admitting a present id refreshes its
// recency but still reports duplicate.
func (c *Cache) Admit(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[messageID]; ok {
		el.Value.(*entry).seen = c.now()
		c.order.MoveToBack(el)
		return false
	}

	el := c.order.PushBack(&entry{id: messageID, seen: c.now()})
	c.index[messageID] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).id)
	}

	return true
}

// Cleanup removes entries older than maxAge, independent of capacity
// pressure. A maxAge <= 0 falls back to DefaultMaxAge.
func (c *Cache) Cleanup(maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge)
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.seen.Before(cutoff) {
			c.order.Remove(el)
			delete(c.index, e.id)
		}
		el = next
	}
}

// Len returns the number of tracked ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
