// Package storage persists user API credentials across restarts.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound means the backing store has never been written. Callers treat
// it as "start with no sessions", not as a failure.
var ErrNotFound = errors.New("credential store not found")

// Store loads and saves userID -> credential mappings. Save merges: existing
// entries for other users are preserved, entries for the given users are
// overwritten.
type Store interface {
	Load() (map[string]string, error)
	Save(entries map[string]string) error
}

// Open builds the configured backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
