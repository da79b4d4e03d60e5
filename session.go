package kvsession

import (
	"sync"
	"time"
)

// Session represents a user session. Values access goes through the
// mutex-guarded accessors so a session can be read and saved from
// concurrent goroutines handling the same user.
type Session struct {
	ID        string
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time

	mu sync.Mutex
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Values[key] = value
}

// Delete removes key from the session.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Values, key)
}

// Clear wipes all values from the session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.Values)
}
