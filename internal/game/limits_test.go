package game

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func stakes(amounts ...float64) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(amounts))
	for i, a := range amounts {
		m[string(rune('a'+i))] = d(a)
	}
	return m
}

func TestStakeLimiter_WithinLimits(t *testing.T) {
	l := NewStakeLimiter(d(100), d(500))
	if err := l.Check(d(100), stakes(200, 150)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStakeLimiter_PerGameCap(t *testing.T) {
	l := NewStakeLimiter(d(100), d(500))
	if err := l.Check(d(100.01), nil); err != ErrStakeLimitExceeded {
		t.Errorf("expected ErrStakeLimitExceeded, got %v", err)
	}
}

func TestStakeLimiter_AggregateCap(t *testing.T) {
	l := NewStakeLimiter(d(100), d(500))
	if err := l.Check(d(100), stakes(250, 151)); err != ErrExposureLimitExceeded {
		t.Errorf("expected ErrExposureLimitExceeded, got %v", err)
	}
}

func TestStakeLimiter_AggregateBoundaryInclusive(t *testing.T) {
	l := NewStakeLimiter(d(100), d(500))
	if err := l.Check(d(100), stakes(250, 150)); err != nil {
		t.Errorf("exact cap should pass, got %v", err)
	}
}

func TestStakeLimiter_NoActiveStakes(t *testing.T) {
	l := NewStakeLimiter(d(100), d(500))
	if err := l.Check(d(50), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistry_LimiterRejectsJoin(t *testing.T) {
	env := newTestEnv(t)
	env.registry.limits = NewStakeLimiter(d(1), d(100))

	g := mustCreate(t, env.registry, 0.1, 5, 4)
	_, err := env.registry.JoinGame(context.Background(), g.ID, "alice", d(2))
	if err != ErrStakeLimitExceeded {
		t.Errorf("expected ErrStakeLimitExceeded, got %v", err)
	}
}
