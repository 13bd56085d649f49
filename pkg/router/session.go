package router

import (
	"context"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/logger"
	"github.com/chatrelay/chatrelay/pkg/providers"
	"github.com/chatrelay/chatrelay/pkg/storage"
)

// ModelClient is what the router needs from the model backend. The concrete
// implementation is providers.Client; tests substitute fakes.
type ModelClient interface {
	ValidateToken(ctx context.Context) error
	ChatCompletions(ctx context.Context, messages []providers.Message, model string) (string, string, error)
	ImageGenerations(ctx context.Context, prompt string) (string, error)
	AudioTranscriptions(ctx context.Context, path, model string) (string, error)
}

// Session is one user's registration state: the credential and the model
// handle bound to it. Re-registration replaces both wholesale.
type Session struct {
	APIKey string
	Client ModelClient
}

// Sessions is the concurrently-accessed user -> session map.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

func (s *Sessions) Get(userID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

func (s *Sessions) Set(userID string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Rehydrate rebuilds sessions from persisted credentials at startup. A store
// that has never been written is an empty start, not a failure. Stored keys
// are not re-validated against the backend; a key revoked since the last run
// surfaces on its first use.
func (s *Sessions) Rehydrate(store storage.Store, newClient func(apiKey string) (ModelClient, error)) error {
	entries, err := store.Load()
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}

	for userID, apiKey := range entries {
		client, err := newClient(apiKey)
		if err != nil {
			logger.WarnCF("router", "Skipping stored credential", map[string]any{
				"user_id": userID, "error": err.Error(),
			})
			continue
		}
		s.Set(userID, &Session{APIKey: apiKey, Client: client})
	}

	logger.InfoCF("router", "Sessions rehydrated", map[string]any{"count": s.Len()})
	return nil
}
