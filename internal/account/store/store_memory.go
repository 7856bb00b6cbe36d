package store

import (
	"context"
	"slices"
	"sync"

	"guildgate/internal/account"
	"guildgate/pkg/platform/sentinel"
)

// MemoryStore keeps accounts in process. It favors clarity over performance
// and backs unit tests and credential-less dev runs.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]account.Account
	byDiscord map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]account.Account),
		byDiscord: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, acc account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[acc.ID]; ok {
		return sentinel.ErrConflict
	}
	if acc.DiscordID != "" {
		if _, ok := s.byDiscord[acc.DiscordID]; ok {
			return sentinel.ErrConflict
		}
		s.byDiscord[acc.DiscordID] = acc.ID
	}
	s.byID[acc.ID] = clone(acc)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, acc account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[acc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.DiscordID != acc.DiscordID {
		delete(s.byDiscord, existing.DiscordID)
		if acc.DiscordID != "" {
			s.byDiscord[acc.DiscordID] = acc.ID
		}
	}
	s.byID[acc.ID] = clone(acc)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.byID[id]; ok {
		return clone(acc), nil
	}
	return account.Account{}, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByDiscordID(_ context.Context, discordID string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byDiscord[discordID]; ok {
		return clone(s.byID[id]), nil
	}
	return account.Account{}, sentinel.ErrNotFound
}

// clone copies the roles slice so callers cannot mutate stored state.
func clone(acc account.Account) account.Account {
	acc.Roles = slices.Clone(acc.Roles)
	return acc
}
