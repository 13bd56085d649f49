// Package cache holds the short-term context the relay needs to make quoted
// replies coherent: a bounded store of recent message text keyed by message
// id, and the quote links between messages.
package cache

import (
	"container/list"
	"sync"
)

const DefaultCapacity = 1000

type entry struct {
	id   string
	text string
}

// MessageCache is a fixed-capacity store of message text with strict FIFO
// eviction: the oldest *inserted* entry goes first, regardless of reads.
// Overwriting an existing id updates its text in place and does not move it
// in the eviction order.
type MessageCache struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List               // oldest at front
	items    map[string]*list.Element // id -> element holding *entry
}

func NewMessageCache(capacity int) *MessageCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Put inserts or overwrites the text for id. Inserting a new id at capacity
// first evicts the oldest-inserted entry. Put never fails.
func (c *MessageCache) Put(id, text string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		el.Value.(*entry).text = text
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).id)
	}

	c.items[id] = c.order.PushBack(&entry{id: id, text: text})
}

// Get returns the cached text for id. Absence is not an error: callers treat
// a miss as "no context available".
func (c *MessageCache) Get(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, ok := c.items[id]
	if !ok {
		return "", false
	}
	return el.Value.(*entry).text, true
}

func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
