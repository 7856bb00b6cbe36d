package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an append-only in-process sink; the default when no kafka
// brokers are configured, and the fake in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByAccount returns the events recorded for one account, oldest first.
func (s *MemoryStore) ListByAccount(_ context.Context, accountID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.AccountID == accountID {
			out = append(out, event)
		}
	}
	return out
}

// All returns a copy of every recorded event.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
