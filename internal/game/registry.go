// Package game implements the multiplayer pot game engine: lifecycle state
// machine, player admission, pot accounting, winner settlement, and the
// periodic scheduler that drives timers.
//
// Lifecycle per game:
//
//	waiting  -[join, room not full]->          waiting
//	waiting  -[room fills OR timer=0, ≥2]->    starting
//	starting -[countdown elapses]->            finished (settled)
//	waiting  -[timer=0, <2 players]->          finished (cancelled)
//
// finished is terminal; settled and cancelled games are purged from the
// registry after a retention window so trailing broadcasts can still
// reference them.
//
// Concurrency: each game carries its own mutex; join, tick, and settle on
// one game serialize against each other without blocking the rest of the
// registry. The registry-level RWMutex only guards the games map itself.
package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/ledger"
	"github.com/Ivantech123/neontrill/internal/model"
)

var (
	// ErrValidation covers malformed create parameters: bad bet range or
	// out-of-bounds player count. No state is mutated.
	ErrValidation = errors.New("game: invalid parameters")

	// ErrGameNotFound is returned for joins against unknown game ids.
	ErrGameNotFound = errors.New("game: not found")

	// ErrNotJoinable is the ordinary join failure: the game already left
	// waiting or the room is full. Clients retry against updated state.
	ErrNotJoinable = errors.New("game: not accepting players")

	// ErrBetOutOfRange is returned when the bet falls outside the game's
	// bet range.
	ErrBetOutOfRange = errors.New("game: bet outside allowed range")

	// ErrAlreadyJoined is returned when the identity is already a player.
	ErrAlreadyJoined = errors.New("game: already joined")

	// ErrInsufficientBalance is returned when the identity's balance does
	// not cover the bet.
	ErrInsufficientBalance = errors.New("game: insufficient balance")
)

// Config holds registry tuning. Zero values are replaced by defaults.
type Config struct {
	JoinWindow     int             // seconds a waiting game accepts players
	Countdown      int             // seconds between starting and settlement
	Retention      time.Duration   // how long finished games stay visible
	HouseEdge      decimal.Decimal // fraction of the pot kept by the house
	MinBetAbsolute decimal.Decimal // floor for betRange[0]; defaults to >0 check only
}

// DefaultConfig returns the reference tuning: 60 s join window, 5 s
// countdown, 60 s retention, 10% house edge.
func DefaultConfig() Config {
	return Config{
		JoinWindow: 60,
		Countdown:  5,
		Retention:  60 * time.Second,
		HouseEdge:  decimal.NewFromFloat(0.1),
	}
}

// minPlayersToStart is the threshold below which a timed-out waiting game
// is cancelled instead of settled.
const minPlayersToStart = 2

// slot pairs a game with its own mutex. All reads and writes of the game
// value go through the slot lock.
type slot struct {
	mu   sync.Mutex
	game model.Game
}

// Registry owns all in-flight games. Construct with New and drive timers
// through a Scheduler; the registry performs no ambient time-driven
// mutation of its own.
type Registry struct {
	cfg    Config
	ledger *ledger.Ledger
	limits *StakeLimiter

	mu    sync.RWMutex
	games map[string]*slot

	events chan Event

	statsMu            sync.Mutex
	settledGames       int
	totalBets          decimal.Decimal
	biggestWin         decimal.Decimal
	winEntries         int
	settledParticipant int

	// Injection points for tests.
	now     func() time.Time
	randInt func(n int) int
}

// New creates a registry. The limiter may be nil to disable exposure caps.
func New(cfg Config, lg *ledger.Ledger, limits *StakeLimiter) *Registry {
	if cfg.JoinWindow <= 0 {
		cfg.JoinWindow = DefaultConfig().JoinWindow
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultConfig().Countdown
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.HouseEdge.IsZero() {
		cfg.HouseEdge = DefaultConfig().HouseEdge
	}
	return &Registry{
		cfg:        cfg,
		ledger:     lg,
		limits:     limits,
		games:      make(map[string]*slot),
		events:     make(chan Event, 256),
		totalBets:  decimal.Zero,
		biggestWin: decimal.Zero,
		now:        time.Now,
		randInt:    cryptoIntn,
	}
}

// cryptoIntn returns a uniform int in [0, n) from crypto/rand.
func cryptoIntn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// Events returns the registry's state-change stream. The channel is
// buffered; if no consumer drains it, events are dropped rather than
// blocking game progression.
func (r *Registry) Events() <-chan Event {
	return r.events
}

func (r *Registry) publish(ev Event) {
	select {
	case r.events <- ev:
	default:
		// Drop if the consumer is behind; the periodic broadcast
		// re-syncs clients from authoritative state.
	}
}

// CreateGame validates parameters and registers a new waiting game.
func (r *Registry) CreateGame(creator string, minBet, maxBet decimal.Decimal, maxPlayers int) (model.Game, error) {
	if maxPlayers < 2 || maxPlayers > 10 {
		return model.Game{}, fmt.Errorf("%w: maxPlayers must be between 2 and 10", ErrValidation)
	}
	if minBet.LessThanOrEqual(decimal.Zero) {
		return model.Game{}, fmt.Errorf("%w: minimum bet must be positive", ErrValidation)
	}
	if maxBet.LessThan(minBet) {
		return model.Game{}, fmt.Errorf("%w: bet range inverted", ErrValidation)
	}

	g := model.Game{
		ID:         uuid.New().String(),
		Pot:        decimal.Zero,
		BetRange:   [2]decimal.Decimal{minBet, maxBet},
		MaxPlayers: maxPlayers,
		TimeLeft:   r.cfg.JoinWindow,
		Status:     model.StatusWaiting,
		CreatedAt:  r.now().UTC(),
		Winnings:   decimal.Zero,
	}

	r.mu.Lock()
	r.games[g.ID] = &slot{game: g}
	r.mu.Unlock()

	slog.Info("game created",
		"game_id", g.ID,
		"creator", creator,
		"bet_min", minBet.String(),
		"bet_max", maxBet.String(),
		"max_players", maxPlayers,
	)

	r.publish(Event{Type: EventGameCreated, Game: g.Summary()})
	return g, nil
}

// JoinGame atomically admits a player. The balance and exposure checks run
// before the game lock is taken (they are advisory guards, not part of the
// pot invariant); the status/range/membership/capacity checks and the pot
// mutation are a single critical section per game.
func (r *Registry) JoinGame(ctx context.Context, gameID, identity string, bet decimal.Decimal) (model.Game, error) {
	sl := r.slot(gameID)
	if sl == nil {
		return model.Game{}, ErrGameNotFound
	}

	balance, err := r.ledger.Balance(ctx, identity)
	if err != nil {
		return model.Game{}, err
	}
	if balance.LessThan(bet) {
		return model.Game{}, ErrInsufficientBalance
	}

	if r.limits != nil {
		if err := r.limits.Check(bet, r.activeStakes(identity)); err != nil {
			return model.Game{}, err
		}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	g := &sl.game

	if g.Status != model.StatusWaiting || len(g.Players) >= g.MaxPlayers {
		return model.Game{}, ErrNotJoinable
	}
	if bet.LessThan(g.BetRange[0]) || bet.GreaterThan(g.BetRange[1]) {
		return model.Game{}, ErrBetOutOfRange
	}
	if g.HasPlayer(identity) {
		return model.Game{}, ErrAlreadyJoined
	}

	player := model.Player{
		Identity:  identity,
		BetAmount: bet,
		JoinedAt:  r.now().UTC(),
	}
	g.Players = append(g.Players, player)
	g.Pot = g.Pot.Add(bet)

	slog.Info("player joined",
		"game_id", g.ID,
		"identity", identity,
		"bet", bet.String(),
		"players", len(g.Players),
		"pot", g.Pot.String(),
	)

	r.publish(Event{Type: EventPlayerJoined, Game: g.Summary(), Player: &player})

	if len(g.Players) == g.MaxPlayers {
		r.startLocked(g)
	}
	return copyGame(g), nil
}

// startLocked flips a waiting game to starting. Caller holds the slot lock.
func (r *Registry) startLocked(g *model.Game) {
	if g.Status != model.StatusWaiting {
		return
	}
	g.Status = model.StatusStarting
	g.StartedAt = r.now().UTC()
	g.TimeLeft = r.cfg.Countdown

	slog.Info("game starting", "game_id", g.ID, "players", len(g.Players), "pot", g.Pot.String())
	r.publish(Event{Type: EventGameStarting, Game: g.Summary()})
}

// settleLocked finishes and settles a game. Invoked exactly once per game:
// callers only reach it from the starting state, and it immediately flips
// status to finished. Caller holds the slot lock.
func (r *Registry) settleLocked(ctx context.Context, g *model.Game) {
	g.Status = model.StatusFinished
	g.FinishedAt = r.now().UTC()
	g.TimeLeft = 0

	if len(g.Players) == 0 {
		return
	}

	winnerIdx := r.randInt(len(g.Players))
	winner := g.Players[winnerIdx]
	multiplier := decimal.NewFromInt(1).Sub(r.cfg.HouseEdge)
	winnings := g.Pot.Mul(multiplier)

	g.Winner = &winner
	g.Winnings = winnings

	for _, p := range g.Players {
		outcome := model.OutcomeLoss
		amount := p.BetAmount.Neg()
		if p.Identity == winner.Identity {
			outcome = model.OutcomeWin
			amount = winnings
		}
		if err := r.ledger.Record(ctx, p.Identity, g.ID, outcome, amount); err != nil {
			slog.Error("settlement record failed",
				"game_id", g.ID, "identity", p.Identity, "err", err)
		}
	}

	slog.Info("game settled",
		"game_id", g.ID,
		"winner", winner.Identity,
		"pot", g.Pot.String(),
		"winnings", winnings.String(),
	)

	r.statsMu.Lock()
	r.settledGames++
	r.totalBets = r.totalBets.Add(g.Pot)
	if winnings.GreaterThan(r.biggestWin) {
		r.biggestWin = winnings
	}
	r.winEntries++
	r.settledParticipant += len(g.Players)
	r.statsMu.Unlock()

	r.publish(Event{Type: EventGameResult, Game: g.Summary(), Result: &model.GameResult{
		GameID:     g.ID,
		Winner:     winner.Identity,
		Winnings:   winnings,
		FinishedAt: g.FinishedAt,
	}})
}

// Tick advances every non-finished game by one second and purges finished
// games past retention. Called once per second by the Scheduler.
func (r *Registry) Tick(ctx context.Context) {
	now := r.now().UTC()

	r.mu.RLock()
	slots := make([]*slot, 0, len(r.games))
	for _, sl := range r.games {
		slots = append(slots, sl)
	}
	r.mu.RUnlock()

	var expired []string
	for _, sl := range slots {
		sl.mu.Lock()
		g := &sl.game
		switch g.Status {
		case model.StatusWaiting:
			g.TimeLeft--
			if g.TimeLeft <= 0 {
				if len(g.Players) >= minPlayersToStart {
					r.startLocked(g)
				} else {
					// Not enough players: cancel with no settlement
					// and no history entries.
					g.Status = model.StatusFinished
					g.FinishedAt = now
					g.TimeLeft = 0
					slog.Info("game cancelled", "game_id", g.ID, "players", len(g.Players))
				}
			}
		case model.StatusStarting:
			g.TimeLeft--
			if g.TimeLeft <= 0 {
				r.settleLocked(ctx, g)
			}
		case model.StatusFinished:
			if now.Sub(g.FinishedAt) > r.cfg.Retention {
				expired = append(expired, g.ID)
			}
		}
		sl.mu.Unlock()
	}

	if len(expired) > 0 {
		r.mu.Lock()
		for _, id := range expired {
			delete(r.games, id)
		}
		r.mu.Unlock()
	}
}

// Game returns a copy of the game, finished or not, if still retained.
func (r *Registry) Game(id string) (model.Game, bool) {
	sl := r.slot(id)
	if sl == nil {
		return model.Game{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return copyGame(&sl.game), true
}

// ActiveGames returns summaries of all non-finished games.
func (r *Registry) ActiveGames() []model.GameSummary {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.games))
	for _, sl := range r.games {
		slots = append(slots, sl)
	}
	r.mu.RUnlock()

	summaries := make([]model.GameSummary, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.game.Status != model.StatusFinished {
			summaries = append(summaries, sl.game.Summary())
		}
		sl.mu.Unlock()
	}
	return summaries
}

// RecentResults returns settlement outcomes for games finished within the
// lookback window, so briefly-disconnected clients still see them.
func (r *Registry) RecentResults(window time.Duration) []model.GameResult {
	now := r.now().UTC()

	r.mu.RLock()
	slots := make([]*slot, 0, len(r.games))
	for _, sl := range r.games {
		slots = append(slots, sl)
	}
	r.mu.RUnlock()

	var results []model.GameResult
	for _, sl := range slots {
		sl.mu.Lock()
		g := &sl.game
		if g.Status == model.StatusFinished && g.Winner != nil && now.Sub(g.FinishedAt) < window {
			results = append(results, model.GameResult{
				GameID:     g.ID,
				Winner:     g.Winner.Identity,
				Winnings:   g.Winnings,
				FinishedAt: g.FinishedAt,
			})
		}
		sl.mu.Unlock()
	}
	return results
}

// Stats returns the derived global view: settled count, cumulative bets,
// biggest single win, distinct players across active games, and the global
// per-participant win rate.
func (r *Registry) Stats() model.GlobalStats {
	r.statsMu.Lock()
	stats := model.GlobalStats{
		TotalGamesPlayed: r.settledGames,
		TotalBets:        r.totalBets,
		BiggestWin:       r.biggestWin,
		WinRate:          decimal.Zero,
	}
	if r.settledParticipant > 0 {
		stats.WinRate = decimal.NewFromInt(int64(r.winEntries)).
			Div(decimal.NewFromInt(int64(r.settledParticipant))).Round(4)
	}
	r.statsMu.Unlock()

	seen := make(map[string]struct{})
	for _, sl := range r.allSlots() {
		sl.mu.Lock()
		if sl.game.Status != model.StatusFinished {
			for _, p := range sl.game.Players {
				seen[p.Identity] = struct{}{}
			}
		}
		sl.mu.Unlock()
	}
	stats.ActivePlayers = len(seen)
	return stats
}

// activeStakes returns the identity's live bets keyed by game id.
func (r *Registry) activeStakes(identity string) map[string]decimal.Decimal {
	stakes := make(map[string]decimal.Decimal)
	for _, sl := range r.allSlots() {
		sl.mu.Lock()
		g := &sl.game
		if g.Status != model.StatusFinished {
			for _, p := range g.Players {
				if p.Identity == identity {
					stakes[g.ID] = p.BetAmount
				}
			}
		}
		sl.mu.Unlock()
	}
	return stakes
}

func (r *Registry) slot(id string) *slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.games[id]
}

func (r *Registry) allSlots() []*slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slots := make([]*slot, 0, len(r.games))
	for _, sl := range r.games {
		slots = append(slots, sl)
	}
	return slots
}

// copyGame returns a deep copy so callers never alias registry state.
func copyGame(g *model.Game) model.Game {
	out := *g
	out.Players = make([]model.Player, len(g.Players))
	copy(out.Players, g.Players)
	if g.Winner != nil {
		w := *g.Winner
		out.Winner = &w
	}
	return out
}
