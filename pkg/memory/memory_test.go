package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_MaterializePutsSystemFirst(t *testing.T) {
	c := NewConversation("be brief", 2)
	c.Append(RoleUser, "hi")
	c.Append(RoleAssistant, "hello")

	turns := c.Materialize()
	require.Len(t, turns, 3)
	assert.Equal(t, Turn{Role: RoleSystem, Content: "be brief"}, turns[0])
	assert.Equal(t, Turn{Role: RoleUser, Content: "hi"}, turns[1])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "hello"}, turns[2])
}

func TestConversation_WindowBound(t *testing.T) {
	const maxExchanges = 3
	c := NewConversation("", maxExchanges)

	for i := 0; i < 20; i++ {
		c.Append(RoleUser, fmt.Sprintf("q%d", i))
		c.Append(RoleAssistant, fmt.Sprintf("a%d", i))

		want := i + 1
		if want > maxExchanges {
			want = maxExchanges
		}
		assert.Equal(t, want, c.ExchangeCount())
	}

	// The oldest exchanges are the ones dropped.
	turns := c.Materialize()
	require.Len(t, turns, 1+2*maxExchanges)
	assert.Equal(t, "q17", turns[1].Content)
	assert.Equal(t, "a19", turns[len(turns)-1].Content)
}

func TestConversation_TrailingUserTurnSurvivesTrim(t *testing.T) {
	c := NewConversation("", 1)
	c.Append(RoleUser, "q0")
	c.Append(RoleAssistant, "a0")
	c.Append(RoleUser, "q1")

	// One complete exchange plus the in-flight user turn.
	turns := c.Materialize()
	require.Len(t, turns, 4)
	assert.Equal(t, "q1", turns[3].Content)

	c.Append(RoleAssistant, "a1")
	turns = c.Materialize()
	require.Len(t, turns, 3)
	assert.Equal(t, "q1", turns[1].Content)
	assert.Equal(t, "a1", turns[2].Content)
}

func TestConversation_ClearAndSystemMessage(t *testing.T) {
	c := NewConversation("old", 2)
	c.Append(RoleUser, "hi")
	c.SetSystemMessage("new")
	c.Clear()

	turns := c.Materialize()
	require.Len(t, turns, 1)
	assert.Equal(t, "new", turns[0].Content)
}

func TestStore_LazyCreatePerUser(t *testing.T) {
	s := NewStore("sys", 2)

	a := s.Get("alice")
	a.Append(RoleUser, "hi")

	b := s.Get("bob")
	assert.Equal(t, 0, len(b.Materialize())-1, "bob's conversation starts empty")
	assert.Same(t, a, s.Get("alice"))
	assert.Equal(t, 2, s.Len())
}
