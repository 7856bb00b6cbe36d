package session

import (
	"context"
	"sync"
	"time"

	"guildgate/pkg/platform/sentinel"
)

type memorySession struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process with lazy expiry.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	now      func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, sid, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(sid)
	if sess == nil {
		sess = &memorySession{values: make(map[string]string)}
		s.sessions[sid] = sess
	}
	sess.values[key] = value
	sess.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sid, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(sid)
	if sess == nil {
		return "", sentinel.ErrNotFound
	}
	value, ok := sess.values[key]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Delete(_ context.Context, sid, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.live(sid); sess != nil {
		delete(sess.values, key)
	}
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	return nil
}

// live returns the session if present and unexpired, reaping it otherwise.
// Callers must hold the lock.
func (s *MemoryStore) live(sid string) *memorySession {
	sess, ok := s.sessions[sid]
	if !ok {
		return nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, sid)
		return nil
	}
	return sess
}
