// Package memory keeps the sliding conversational window sent to the chat
// model: a fixed system preamble plus the most recent exchanges per user.
package memory

import "sync"

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one user's window. It retains at most maxExchanges of the
// most recent exchanges (one user turn + one assistant turn each), trimmed
// from the oldest end. The system message is stored apart from the turns and
// is always the first element of any materialized view.
type Conversation struct {
	mu            sync.Mutex
	systemMessage string
	turns         []Turn
	maxExchanges  int
}

func NewConversation(systemMessage string, maxExchanges int) *Conversation {
	if maxExchanges <= 0 {
		maxExchanges = 2
	}
	return &Conversation{
		systemMessage: systemMessage,
		maxExchanges:  maxExchanges,
	}
}

// Append adds one turn and drops whole oldest exchanges while the window
// holds more than maxExchanges complete exchanges.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content})
	for len(c.turns)/2 > c.maxExchanges {
		c.turns = c.turns[2:]
	}
}

// Materialize returns the exact payload for the chat-completion call: the
// system turn followed by the retained turns.
func (c *Conversation) Materialize() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Turn, 0, len(c.turns)+1)
	out = append(out, Turn{Role: RoleSystem, Content: c.systemMessage})
	out = append(out, c.turns...)
	return out
}

func (c *Conversation) SetSystemMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemMessage = text
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// ExchangeCount reports how many complete exchanges are retained.
func (c *Conversation) ExchangeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns) / 2
}

// Store hands out per-user conversations, creating them lazily with the
// configured defaults.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	systemMessage string
	maxExchanges  int
}

func NewStore(systemMessage string, maxExchanges int) *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		systemMessage: systemMessage,
		maxExchanges:  maxExchanges,
	}
}

func (s *Store) Get(userID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[userID]
	if !ok {
		conv = NewConversation(s.systemMessage, s.maxExchanges)
		s.conversations[userID] = conv
	}
	return conv
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}
