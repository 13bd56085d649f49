package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/pkg/line"
)

func TestMessageCache_PutGet(t *testing.T) {
	c := NewMessageCache(10)
	c.Put("m1", "hello")

	text, ok := c.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMessageCache_FIFOEviction(t *testing.T) {
	c := NewMessageCache(3)
	c.Put("m1", "a")
	c.Put("m2", "b")
	c.Put("m3", "c")

	// Reading m1 must not save it from eviction: the bound is FIFO, not LRU.
	c.Get("m1")

	c.Put("m4", "d")
	assert.Equal(t, 3, c.Len())

	_, ok := c.Get("m1")
	assert.False(t, ok, "oldest-inserted entry should have been evicted")
	for _, id := range []string{"m2", "m3", "m4"} {
		_, ok := c.Get(id)
		assert.True(t, ok, "entry %s should survive", id)
	}
}

func TestMessageCache_NeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	c := NewMessageCache(capacity)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("m%d", i), "text")
		assert.LessOrEqual(t, c.Len(), capacity)
	}
	// Exactly the last `capacity` insertions survive.
	for i := 95; i < 100; i++ {
		_, ok := c.Get(fmt.Sprintf("m%d", i))
		assert.True(t, ok)
	}
	_, ok := c.Get("m94")
	assert.False(t, ok)
}

func TestMessageCache_OverwriteKeepsEvictionOrder(t *testing.T) {
	c := NewMessageCache(2)
	c.Put("m1", "a")
	c.Put("m2", "b")

	// Overwriting m1 updates text but does not make it fresher.
	c.Put("m1", "a2")
	text, _ := c.Get("m1")
	assert.Equal(t, "a2", text)

	c.Put("m3", "c")
	_, ok := c.Get("m1")
	assert.False(t, ok, "m1 is still the oldest insertion and must evict first")
	_, ok = c.Get("m2")
	assert.True(t, ok)
}

func TestMessageCache_ConcurrentAccess(t *testing.T) {
	c := NewMessageCache(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := fmt.Sprintf("g%d-m%d", g, i)
				c.Put(id, "text")
				c.Get(id)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}

func TestQuoteResolver_RecordedLink(t *testing.T) {
	c := NewMessageCache(10)
	r := NewQuoteResolver(c)

	c.Put("parent", "weather today?")
	r.RecordQuote("child", "parent")

	text, ok := r.Resolve(&line.Message{ID: "child"})
	require.True(t, ok)
	assert.Equal(t, "weather today?", text)
}

func TestQuoteResolver_InlineShapes(t *testing.T) {
	c := NewMessageCache(10)
	r := NewQuoteResolver(c)
	c.Put("parent", "weather today?")

	testcases := []struct {
		name string
		msg  *line.Message
	}{
		{"quoted message id", &line.Message{ID: "c1", QuotedMessageID: "parent"}},
		{"legacy reference", &line.Message{ID: "c2", Reference: &line.Reference{MessageID: "parent"}}},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			text, ok := r.Resolve(tc.msg)
			require.True(t, ok)
			assert.Equal(t, "weather today?", text)
		})
	}
}

func TestQuoteResolver_MissingParentIsNotAnError(t *testing.T) {
	c := NewMessageCache(2)
	r := NewQuoteResolver(c)

	// Parent never cached.
	_, ok := r.Resolve(&line.Message{ID: "c1", QuotedMessageID: "ghost"})
	assert.False(t, ok)

	// Parent cached, then evicted.
	c.Put("parent", "old text")
	r.RecordQuote("child", "parent")
	c.Put("m2", "b")
	c.Put("m3", "c") // evicts parent

	_, ok = r.Resolve(&line.Message{ID: "child"})
	assert.False(t, ok)
}

func TestQuoteResolver_LastWriteWins(t *testing.T) {
	c := NewMessageCache(10)
	r := NewQuoteResolver(c)
	c.Put("p1", "first")
	c.Put("p2", "second")

	r.RecordQuote("child", "p1")
	r.RecordQuote("child", "p2")

	text, ok := r.Resolve(&line.Message{ID: "child"})
	require.True(t, ok)
	assert.Equal(t, "second", text)
}

func TestQuoteResolver_NoQuote(t *testing.T) {
	r := NewQuoteResolver(NewMessageCache(10))
	_, ok := r.Resolve(&line.Message{ID: "plain", Text: "hello"})
	assert.False(t, ok)
	_, ok = r.Resolve(nil)
	assert.False(t, ok)
}

func TestIngest_CachesEveryTextMessage(t *testing.T) {
	c := NewMessageCache(10)
	r := NewQuoteResolver(c)

	body := &line.WebhookBody{Events: []line.Event{
		{Type: "message", Message: &line.Message{ID: "m1", Type: "text", Text: "  weather today?  "}},
		{Type: "message", Message: &line.Message{ID: "m2", Type: "audio"}},
		{Type: "follow"},
		{Type: "message", Message: &line.Message{Type: "text", Text: "no id"}},
		{Type: "message", Message: &line.Message{ID: "m3", Type: "text", Text: "and tomorrow?", QuotedMessageID: "m1"}},
	}}

	Ingest(c, r, body)

	text, ok := c.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "weather today?", text, "ingested text is trimmed")

	_, ok = c.Get("m2")
	assert.False(t, ok, "audio messages are not cached")

	merged, ok := r.Resolve(&line.Message{ID: "m3"})
	require.True(t, ok)
	assert.Equal(t, "weather today?", merged)
}
