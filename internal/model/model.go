// Package model defines the core domain types shared across the wagering engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameStatus is the lifecycle phase of a pot game. Transitions are monotonic:
// waiting → starting → finished. "active" exists for wire compatibility but is
// an instantaneous phase; starting settles directly.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusStarting GameStatus = "starting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

// Outcome classifies a history entry.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Player is one participant in a pot game. Immutable after creation.
type Player struct {
	Identity  string          `json:"address"`
	BetAmount decimal.Decimal `json:"betAmount"`
	JoinedAt  time.Time       `json:"joinedAt"`
}

// Game is a multiplayer pot game. Pot always equals the sum of player bets
// outside the atomic join critical section.
type Game struct {
	ID         string             `json:"id"`
	Pot        decimal.Decimal    `json:"pot"`
	BetRange   [2]decimal.Decimal `json:"betRange"` // [min, max] inclusive
	Players    []Player           `json:"players"`  // insertion order = join order
	MaxPlayers int                `json:"maxPlayers"`
	TimeLeft   int                `json:"timeLeft"` // seconds
	Status     GameStatus         `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Winner     *Player            `json:"winner,omitempty"`
	Winnings   decimal.Decimal    `json:"winnings"`
}

// HasPlayer reports whether identity already joined.
func (g *Game) HasPlayer(identity string) bool {
	for _, p := range g.Players {
		if p.Identity == identity {
			return true
		}
	}
	return false
}

// GameSummary is the client-facing shape of a game: player identities are
// hidden, only the count is exposed.
type GameSummary struct {
	ID         string             `json:"id"`
	Pot        decimal.Decimal    `json:"pot"`
	BetRange   [2]decimal.Decimal `json:"betRange"`
	Players    int                `json:"players"`
	MaxPlayers int                `json:"maxPlayers"`
	TimeLeft   int                `json:"timeLeft"`
	Status     GameStatus         `json:"status"`
}

// Summary returns the client-facing view of the game.
func (g *Game) Summary() GameSummary {
	return GameSummary{
		ID:         g.ID,
		Pot:        g.Pot,
		BetRange:   g.BetRange,
		Players:    len(g.Players),
		MaxPlayers: g.MaxPlayers,
		TimeLeft:   g.TimeLeft,
		Status:     g.Status,
	}
}

// HistoryEntry is an immutable record of one settled outcome for one identity.
// Once created, these are never modified or deleted.
type HistoryEntry struct {
	ID        string          `json:"id" db:"id"`
	Identity  string          `json:"address" db:"identity"`
	RoundID   string          `json:"gameId" db:"round_id"`
	Outcome   Outcome         `json:"result" db:"outcome"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // signed: +win, -loss
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Profile aggregates one identity's history. Computed on read, never stored.
type Profile struct {
	Identity      string          `json:"address"`
	TotalGames    int             `json:"totalGames"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       decimal.Decimal `json:"winRate"`
	TotalWinnings decimal.Decimal `json:"totalWinnings"`
	TotalLosses   decimal.Decimal `json:"totalLosses"`
	NetProfit     decimal.Decimal `json:"netProfit"`
	Balance       decimal.Decimal `json:"balance"`
}

// GlobalStats is the derived view over all settled games.
type GlobalStats struct {
	TotalGamesPlayed int             `json:"totalGamesPlayed"`
	TotalBets        decimal.Decimal `json:"totalBets"`
	BiggestWin       decimal.Decimal `json:"biggestWin"`
	WinRate          decimal.Decimal `json:"winRate"`
	ActivePlayers    int             `json:"activePlayers"`
}

// GameResult is the settlement outcome broadcast to clients.
type GameResult struct {
	GameID     string          `json:"gameId"`
	Winner     string          `json:"winner"`
	Winnings   decimal.Decimal `json:"winnings"`
	FinishedAt time.Time       `json:"finishedAt"`
}
