package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
)

// MemoryStore implements Store with in-memory maps. The default backend for
// single-node deployments and tests; no persistence across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	history  []model.HistoryEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) GetBalance(_ context.Context, identity string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[identity]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, identity string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[identity] = amount
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, entry *model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, *entry)
	return nil
}

func (s *MemoryStore) HistoryByIdentity(_ context.Context, identity string) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.HistoryEntry
	for _, e := range s.history {
		if e.Identity == identity {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) AllHistory(_ context.Context) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}
