// Package store defines the persistence interface for balances and game
// history. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (default, for single-node and testing).
//
// Game objects themselves are deliberately not stored here: in-flight games
// are authoritative in-memory state owned by the registry.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
)

// ErrNotFound is returned when an identity has no stored balance.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface for the balance ledger.
type Store interface {
	// GetBalance returns the stored balance for an identity.
	// Returns ErrNotFound for identities never seen before.
	GetBalance(ctx context.Context, identity string) (decimal.Decimal, error)

	// SetBalance writes an identity's balance, creating it if absent.
	SetBalance(ctx context.Context, identity string, amount decimal.Decimal) error

	// AppendHistory appends an immutable history entry.
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error

	// HistoryByIdentity returns one identity's entries in append order.
	HistoryByIdentity(ctx context.Context, identity string) ([]model.HistoryEntry, error)

	// AllHistory returns every entry in append order. Used for derived
	// views (leaderboard); bounded datasets only.
	AllHistory(ctx context.Context) ([]model.HistoryEntry, error)
}
