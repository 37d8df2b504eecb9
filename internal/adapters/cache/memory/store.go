// Package memory is the in-process CacheStore.
package memory

import (
	"context"
	"sync"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

type Store struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry[[]byte]
}

var _ ports.CacheStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{entries: make(map[string]domain.CacheEntry[[]byte])}
}

func (s *Store) Load(_ context.Context, key string) (domain.CacheEntry[[]byte], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *Store) Store(_ context.Context, key string, entry domain.CacheEntry[[]byte]) error {
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	entry.Value = value

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
