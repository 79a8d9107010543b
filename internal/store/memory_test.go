package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
)

func TestMemoryStore_GetBalanceNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetBalance(context.Background(), "nobody"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SetGetBalance(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	want := decimal.NewFromFloat(7.25)
	if err := s.SetBalance(ctx, "alice", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMemoryStore_HistoryAppendOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"e1", "e2", "e3"} {
		entry := &model.HistoryEntry{
			ID:        id,
			Identity:  "alice",
			RoundID:   "round",
			Outcome:   model.OutcomeLoss,
			Amount:    decimal.NewFromInt(int64(-i)),
			Timestamp: time.Now().UTC(),
		}
		if err := s.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := s.HistoryByIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if history[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, history[i].ID)
		}
	}
}

func TestMemoryStore_HistoryFiltersByIdentity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.AppendHistory(ctx, &model.HistoryEntry{ID: "a", Identity: "alice"})
	s.AppendHistory(ctx, &model.HistoryEntry{ID: "b", Identity: "bob"})

	history, err := s.HistoryByIdentity(ctx, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].ID != "b" {
		t.Errorf("unexpected history: %+v", history)
	}

	all, err := s.AllHistory(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 entries total, got %d", len(all))
	}
}
