package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default catalog failed validation: %v", err)
	}
}

func TestDefault_TotalWeight(t *testing.T) {
	if total := Default().TotalWeight(); total != 1000 {
		t.Errorf("expected total weight 1000, got %d", total)
	}
}

func TestDefault_RarityWeightSplit(t *testing.T) {
	want := map[string]int64{
		RarityCommon:    500,
		RarityRare:      300,
		RarityEpic:      150,
		RarityLegendary: 40,
		RarityMythic:    10,
	}
	got := make(map[string]int64)
	for _, it := range Default() {
		got[it.Rarity] += it.Weight
	}
	for rarity, weight := range want {
		if got[rarity] != weight {
			t.Errorf("%s: expected weight %d, got %d", rarity, weight, got[rarity])
		}
	}
}

func TestValidate_Empty(t *testing.T) {
	if err := (Catalog{}).Validate(); err != ErrEmptyCatalog {
		t.Errorf("expected ErrEmptyCatalog, got %v", err)
	}
}

func TestValidate_ZeroWeight(t *testing.T) {
	c := Catalog{{ID: "x", Payout: d(1), Weight: 0}}
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero weight")
	}
}

func TestValidate_NegativePayout(t *testing.T) {
	c := Catalog{{ID: "x", Payout: d(-1), Weight: 10}}
	if err := c.Validate(); err == nil {
		t.Error("expected error for negative payout")
	}
}

func TestWeights_MatchesItemOrder(t *testing.T) {
	c := Catalog{
		{ID: "a", Payout: decimal.Zero, Weight: 3},
		{ID: "b", Payout: decimal.Zero, Weight: 7},
	}
	ws := c.Weights()
	if len(ws) != 2 || ws[0] != 3 || ws[1] != 7 {
		t.Errorf("unexpected weights: %v", ws)
	}
}
