// Package catalog defines the weighted prize item table consumed by the
// provably-fair roll. The core never fetches or caches catalogs itself; it
// receives a resolved item list per draw, with this package supplying the
// compiled-in default.
package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rarity tiers, cosmetic only; drop odds live in Item.Weight.
const (
	RarityCommon    = "Common"
	RarityRare      = "Rare"
	RarityEpic      = "Epic"
	RarityLegendary = "Legendary"
	RarityMythic    = "Mythic"
)

var (
	ErrEmptyCatalog  = errors.New("catalog: no items")
	ErrInvalidWeight = errors.New("catalog: item weight must be positive")
	ErrInvalidPayout = errors.New("catalog: item payout must be non-negative")
)

// Item is one prize in the weighted table. Weight is expressed in tenths of
// a percent so the default table sums to exactly 1000.
type Item struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Rarity string          `json:"rarity"`
	Payout decimal.Decimal `json:"basePrice"`
	Weight int64           `json:"dropWeight"`
}

// Catalog is an ordered item list. Order matters: the weighted pick breaks
// ties by position, so a catalog is only equal to another if items match
// index by index.
type Catalog []Item

// Validate checks the structural preconditions the fairness evaluator
// assumes. A catalog failing validation must never reach a draw.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	for _, it := range c {
		if it.Weight <= 0 {
			return fmt.Errorf("%w: %s has weight %d", ErrInvalidWeight, it.ID, it.Weight)
		}
		if it.Payout.IsNegative() {
			return fmt.Errorf("%w: %s", ErrInvalidPayout, it.ID)
		}
	}
	return nil
}

// Weights returns the weight column in item order, as consumed by fair.Pick.
func (c Catalog) Weights() []int64 {
	ws := make([]int64, len(c))
	for i, it := range c {
		ws[i] = it.Weight
	}
	return ws
}

// TotalWeight returns the sum of all item weights.
func (c Catalog) TotalWeight() int64 {
	var total int64
	for _, it := range c {
		total += it.Weight
	}
	return total
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// Default is the built-in prize table. Weights sum to 1000 (tenths of a
// percent): 50% Common, 30% Rare, 15% Epic, 4% Legendary, 1% Mythic.
func Default() Catalog {
	return Catalog{
		{ID: "bunny_muffin", Name: "Bunny Muffin", Rarity: RarityCommon, Payout: d(0.5), Weight: 150},
		{ID: "lucky_paw", Name: "Lucky Paw", Rarity: RarityCommon, Payout: d(0.3), Weight: 150},
		{ID: "mystery_gift", Name: "Mystery Gift", Rarity: RarityCommon, Payout: d(0.8), Weight: 100},
		{ID: "game_coin", Name: "Game Coin", Rarity: RarityCommon, Payout: d(0.2), Weight: 100},
		{ID: "neon_crystal", Name: "Neon Crystal", Rarity: RarityRare, Payout: d(2.5), Weight: 120},
		{ID: "golden_ticket", Name: "Golden Ticket", Rarity: RarityRare, Payout: d(3.0), Weight: 100},
		{ID: "magic_potion", Name: "Magic Potion", Rarity: RarityRare, Payout: d(1.8), Weight: 80},
		{ID: "cyber_helmet", Name: "Cyber Helmet", Rarity: RarityEpic, Payout: d(8.0), Weight: 80},
		{ID: "rainbow_gem", Name: "Rainbow Gem", Rarity: RarityEpic, Payout: d(12.0), Weight: 40},
		{ID: "time_crystal", Name: "Time Crystal", Rarity: RarityEpic, Payout: d(15.0), Weight: 30},
		{ID: "dragon_egg", Name: "Dragon Egg", Rarity: RarityLegendary, Payout: d(50.0), Weight: 20},
		{ID: "phoenix_feather", Name: "Phoenix Feather", Rarity: RarityLegendary, Payout: d(75.0), Weight: 15},
		{ID: "cosmic_orb", Name: "Cosmic Orb", Rarity: RarityLegendary, Payout: d(100.0), Weight: 5},
		{ID: "infinity_stone", Name: "Infinity Stone", Rarity: RarityMythic, Payout: d(500.0), Weight: 5},
		{ID: "reality_shard", Name: "Reality Shard", Rarity: RarityMythic, Payout: d(1000.0), Weight: 3},
		{ID: "god_tier_crown", Name: "God Tier Crown", Rarity: RarityMythic, Payout: d(2000.0), Weight: 2},
	}
}
