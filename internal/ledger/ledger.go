// Package ledger implements the balance ledger: per-identity balances and
// the immutable history trail behind them.
//
// Two contracts matter here:
//   - Balances are clamped at zero. A debit larger than the balance silently
//     loses the excess instead of failing or going negative. This is a
//     deliberate, documented behavior (callers that need a hard funds check
//     do it before debiting), not an accident.
//   - Every balance mutation driven by a game outcome goes through Record,
//     which appends the history entry and applies the delta together. There
//     is no path that mutates a balance without leaving a history trail.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
	"github.com/Ivantech123/neontrill/internal/store"
)

// DefaultStartingBalance is credited lazily on first reference.
var DefaultStartingBalance = decimal.NewFromInt(10)

// Ledger owns balance reads and writes. A single mutex serializes every
// read-modify-write; critical sections are short and never touch the network
// beyond the store call itself.
type Ledger struct {
	store store.Store
	mu    sync.Mutex

	startBalance decimal.Decimal
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{
		store:        st,
		startBalance: DefaultStartingBalance,
	}
}

// Balance returns the identity's balance, lazily initializing unseen
// identities to the starting amount.
func (l *Ledger) Balance(ctx context.Context, identity string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(ctx, identity)
}

func (l *Ledger) balanceLocked(ctx context.Context, identity string) (decimal.Decimal, error) {
	b, err := l.store.GetBalance(ctx, identity)
	if err == store.ErrNotFound {
		if err := l.store.SetBalance(ctx, identity, l.startBalance); err != nil {
			return decimal.Zero, err
		}
		return l.startBalance, nil
	}
	return b, err
}

// ApplyDelta adds a signed amount to the balance, clamping the result at
// zero. Never fails on an oversized debit; see the package doc.
func (l *Ledger) ApplyDelta(ctx context.Context, identity string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyDeltaLocked(ctx, identity, delta)
}

func (l *Ledger) applyDeltaLocked(ctx context.Context, identity string, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := l.balanceLocked(ctx, identity)
	if err != nil {
		return decimal.Zero, err
	}

	next := current.Add(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}

	if err := l.store.SetBalance(ctx, identity, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// Record appends a history entry and applies its signed amount to the
// identity's balance. The two always happen together.
func (l *Ledger) Record(ctx context.Context, identity, roundID string, outcome model.Outcome, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &model.HistoryEntry{
		ID:        uuid.New().String(),
		Identity:  identity,
		RoundID:   roundID,
		Outcome:   outcome,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
	if err := l.store.AppendHistory(ctx, entry); err != nil {
		return err
	}

	_, err := l.applyDeltaLocked(ctx, identity, amount)
	return err
}

// History returns the identity's entries in append order.
func (l *Ledger) History(ctx context.Context, identity string) ([]model.HistoryEntry, error) {
	return l.store.HistoryByIdentity(ctx, identity)
}

// Profile derives aggregate stats from history. Nothing here is stored;
// every call recomputes from the trail.
func (l *Ledger) Profile(ctx context.Context, identity string) (*model.Profile, error) {
	history, err := l.store.HistoryByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	balance, err := l.Balance(ctx, identity)
	if err != nil {
		return nil, err
	}

	p := &model.Profile{
		Identity:      identity,
		TotalGames:    len(history),
		WinRate:       decimal.Zero,
		TotalWinnings: decimal.Zero,
		TotalLosses:   decimal.Zero,
		Balance:       balance,
	}
	for _, e := range history {
		if e.Outcome == model.OutcomeWin {
			p.Wins++
			p.TotalWinnings = p.TotalWinnings.Add(e.Amount)
		} else {
			p.TotalLosses = p.TotalLosses.Add(e.Amount.Abs())
		}
	}
	p.Losses = p.TotalGames - p.Wins
	p.NetProfit = p.TotalWinnings.Sub(p.TotalLosses)
	if p.TotalGames > 0 {
		p.WinRate = decimal.NewFromInt(int64(p.Wins)).
			Div(decimal.NewFromInt(int64(p.TotalGames))).Round(4)
	}
	return p, nil
}

// LeaderboardEntry is one ranked identity in the leaderboard view.
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	Identity  string          `json:"address"`
	Wins      int             `json:"totalWins"`
	NetProfit decimal.Decimal `json:"netProfit"`
}

// Leaderboard ranks identities by net profit, descending. Ties break by
// identity for a stable order.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	history, err := l.store.AllHistory(ctx)
	if err != nil {
		return nil, err
	}

	type agg struct {
		wins int
		net  decimal.Decimal
	}
	byIdentity := make(map[string]*agg)
	for _, e := range history {
		a, ok := byIdentity[e.Identity]
		if !ok {
			a = &agg{}
			byIdentity[e.Identity] = a
		}
		if e.Outcome == model.OutcomeWin {
			a.wins++
		}
		a.net = a.net.Add(e.Amount)
	}

	entries := make([]LeaderboardEntry, 0, len(byIdentity))
	for identity, a := range byIdentity {
		entries = append(entries, LeaderboardEntry{
			Identity:  identity,
			Wins:      a.wins,
			NetProfit: a.net,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].NetProfit.Equal(entries[j].NetProfit) {
			return entries[i].NetProfit.GreaterThan(entries[j].NetProfit)
		}
		return entries[i].Identity < entries[j].Identity
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
