package cache

import (
	"container/list"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/line"
)

// QuoteResolver maps a message id to the text of the message it replies to.
// Two incompatible upstream shapes declare "this replies to that": a quoted
// id recorded at ingestion time, and an inline reference object still present
// on the event itself. Resolve honors both without knowing which one a given
// payload uses.
type QuoteResolver struct {
	cache *MessageCache

	mu       sync.Mutex
	capacity int
	order    *list.List
	links    map[string]*list.Element // childID -> element holding *quoteLink
}

type quoteLink struct {
	childID  string
	parentID string
}

func NewQuoteResolver(cache *MessageCache) *QuoteResolver {
	capacity := cache.capacity
	return &QuoteResolver{
		cache:    cache,
		capacity: capacity,
		order:    list.New(),
		links:    make(map[string]*list.Element, capacity),
	}
}

// RecordQuote stores a child -> parent link. A child has at most one parent;
// re-recording overwrites (last write wins). The link table is bounded the
// same way the message cache is, so it cannot grow without bound.
func (r *QuoteResolver) RecordQuote(childID, parentID string) {
	if childID == "" || parentID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.links[childID]; ok {
		el.Value.(*quoteLink).parentID = parentID
		return
	}

	if r.order.Len() >= r.capacity {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.links, oldest.Value.(*quoteLink).childID)
	}

	r.links[childID] = r.order.PushBack(&quoteLink{childID: childID, parentID: parentID})
}

// Resolve returns the cached text of the message msg replies to. A recorded
// link takes precedence; the inline reference on the event is the fallback.
// A parent id that was evicted (or never cached) resolves to "no prior
// context", not an error.
func (r *QuoteResolver) Resolve(msg *line.Message) (string, bool) {
	if msg == nil {
		return "", false
	}

	r.mu.Lock()
	el, ok := r.links[msg.ID]
	var parentID string
	if ok {
		parentID = el.Value.(*quoteLink).parentID
	}
	r.mu.Unlock()

	if parentID == "" {
		parentID = msg.QuotedID()
	}
	if parentID == "" {
		return "", false
	}
	return r.cache.Get(parentID)
}
