package game

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrStakeLimitExceeded is returned when a single bet exceeds the
	// per-game stake cap.
	ErrStakeLimitExceeded = errors.New("game: per-game stake limit exceeded")

	// ErrExposureLimitExceeded is returned when a bet would push the
	// identity's aggregate live stake across concurrent games beyond the
	// cap. Reported as an ordinary join failure.
	ErrExposureLimitExceeded = errors.New("game: aggregate stake limit exceeded")
)

// StakeLimiter caps how much one identity can have at risk at once.
// Room bet ranges bound a single bet per game; the limiter bounds the
// player's total exposure across every game they are concurrently in.
type StakeLimiter struct {
	// MaxPerGame is the maximum single stake, regardless of room range.
	MaxPerGame decimal.Decimal

	// MaxActive is the maximum aggregate stake across all concurrent
	// non-finished games.
	MaxActive decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given per-game and aggregate caps.
func NewStakeLimiter(maxPerGame, maxActive decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxPerGame: maxPerGame,
		MaxActive:  maxActive,
	}
}

// Check validates whether a new bet respects the stake limits.
//
// Parameters:
//   - bet: the stake being placed
//   - activeStakes: map of game id → current live stake for this identity
//
// Returns nil if within limits, or an error describing the violation.
func (l *StakeLimiter) Check(bet decimal.Decimal, activeStakes map[string]decimal.Decimal) error {
	if bet.GreaterThan(l.MaxPerGame) {
		return ErrStakeLimitExceeded
	}

	total := bet
	for _, stake := range activeStakes {
		total = total.Add(stake)
	}
	if total.GreaterThan(l.MaxActive) {
		return ErrExposureLimitExceeded
	}
	return nil
}
