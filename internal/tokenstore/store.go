// Package tokenstore holds the access token of the signed-in user.
package tokenstore

import "sync"

// Store is the holder of the current access token. Implementations must be
// safe for concurrent use and a Set or Clear must be visible to every Get
// that follows it.
type Store interface {
	Get() (token string, ok bool)
	Set(token string)
	Clear()
}

// MemoryStore keeps the token for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token. An empty token is equivalent to Clear.
func (s *MemoryStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryStore) Clear() {
	s.Set("")
}
