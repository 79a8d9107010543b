package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SetBalance(ctx context.Context, identity string, amount decimal.Decimal) error {
	if err := s.primary.SetBalance(ctx, identity, amount); err != nil {
		return err
	}
	s.rdb.Set(ctx, balanceKey(identity), amount.String(), s.ttl)
	return nil
}

func (s *CachedStore) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if err := s.primary.AppendHistory(ctx, entry); err != nil {
		return err
	}
	// Invalidate the history cache for this identity; next read re-populates.
	s.rdb.Del(ctx, historyKey(entry.Identity))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	raw, err := s.rdb.Get(ctx, balanceKey(identity)).Result()
	if err == nil {
		if amount, perr := decimal.NewFromString(raw); perr == nil {
			return amount, nil
		}
	}

	// Cache miss: read from primary.
	amount, err := s.primary.GetBalance(ctx, identity)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, balanceKey(identity), amount.String(), s.ttl)
	return amount, nil
}

func (s *CachedStore) HistoryByIdentity(ctx context.Context, identity string) ([]model.HistoryEntry, error) {
	data, err := s.rdb.Get(ctx, historyKey(identity)).Bytes()
	if err == nil {
		var entries []model.HistoryEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.HistoryByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, historyKey(identity), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) AllHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	return s.primary.AllHistory(ctx)
}

// --- Cache keys ---

func balanceKey(identity string) string { return fmt.Sprintf("balance:%s", identity) }
func historyKey(identity string) string { return fmt.Sprintf("history:%s", identity) }
