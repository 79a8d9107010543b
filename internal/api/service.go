// Package api provides the HTTP handlers and the realtime WebSocket hub for
// the wagering engine: wallet auth, the provably-fair roll, game/stat views,
// and live game fan-out.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/auth"
	"github.com/Ivantech123/neontrill/internal/catalog"
	"github.com/Ivantech123/neontrill/internal/fair"
	"github.com/Ivantech123/neontrill/internal/game"
	"github.com/Ivantech123/neontrill/internal/ledger"
	"github.com/Ivantech123/neontrill/internal/metrics"
	"github.com/Ivantech123/neontrill/internal/model"
)

// costPerRoll is the stake debited for each provably-fair draw.
var costPerRoll = decimal.NewFromFloat(0.1)

// maxRollsPerSpin bounds one spin request.
const maxRollsPerSpin = 10

// Service handles the HTTP surface. The realtime hub shares the same
// collaborators; see hub.go.
type Service struct {
	registry   *game.Registry
	ledger     *ledger.Ledger
	seeds      *fair.SessionStore
	items      catalog.Catalog
	tokens     *auth.TokenManager
	challenges *auth.ChallengeIssuer
	verifier   auth.Verifier
}

// NewService creates the HTTP service. The catalog must validate; a broken
// prize table is a fatal configuration error, not a per-request one.
func NewService(
	registry *game.Registry,
	lg *ledger.Ledger,
	seeds *fair.SessionStore,
	items catalog.Catalog,
	tokens *auth.TokenManager,
	challenges *auth.ChallengeIssuer,
	verifier auth.Verifier,
) (*Service, error) {
	if err := items.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		registry:   registry,
		ledger:     lg,
		seeds:      seeds,
		items:      items,
		tokens:     tokens,
		challenges: challenges,
		verifier:   verifier,
	}, nil
}

// --- Auth flow ---

// GetChallenge handles POST /api/auth/challenge.
func (s *Service) GetChallenge(w http.ResponseWriter, _ *http.Request) {
	payload, err := s.challenges.Issue()
	if err != nil {
		writeError(w, "failed to issue challenge", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payload": payload})
}

// VerifyWallet handles POST /api/auth/verify. The proof payload is opaque
// to this layer; the verifier oracle decides.
func (s *Service) VerifyWallet(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil || len(raw) == 0 {
		writeError(w, "missing request body", http.StatusBadRequest)
		return
	}

	identity, err := s.verifier.VerifyProof(r.Context(), raw)
	if err != nil {
		slog.Info("wallet verification failed", "err", err)
		writeError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue(identity)
	if err != nil {
		writeError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	slog.Info("wallet verified", "identity", identity)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- Game views ---

// ListGames handles GET /api/games.
func (s *Service) ListGames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ActiveGames())
}

// GetStats handles GET /api/stats.
func (s *Service) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// --- Authenticated user views ---

// GetHistory handles GET /api/user/history.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	history, err := s.ledger.History(r.Context(), identity)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GetProfile handles GET /api/user/profile.
func (s *Service) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.ledger.Profile(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetLeaderboard handles GET /api/leaderboard?limit=50.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := s.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// --- Provably-fair roll ---

// GetSeed handles GET /api/roll/seed: rotates the caller's seed commitment.
// The previous seed, if any, is revealed so past draws can be verified.
func (s *Service) GetSeed(w http.ResponseWriter, r *http.Request) {
	hash, revealed, err := s.seeds.Commit(identityFrom(r.Context()))
	if err != nil {
		writeError(w, "failed to create commitment", http.StatusInternalServerError)
		return
	}

	resp := map[string]string{"seedHash": hash}
	if revealed != "" {
		resp["previousServerSeed"] = revealed
	}
	writeJSON(w, http.StatusOK, resp)
}

// SpinRequest is the JSON body for POST /api/roll/spin.
type SpinRequest struct {
	ClientSeed string `json:"clientSeed"`
	RollCount  int    `json:"rollCount"` // 0 → 1
}

// SpinResult is one draw outcome within a spin response.
type SpinResult struct {
	Item  catalog.Item `json:"item"`
	Nonce uint64       `json:"nonce"`
}

// SpinResponse is the JSON body returned from POST /api/roll/spin. The
// server seed in use is revealed for verification; it stays live until the
// caller requests a new commitment.
type SpinResponse struct {
	Results    []SpinResult    `json:"results"`
	ServerSeed string          `json:"serverSeed"`
	Balance    decimal.Decimal `json:"balance"`
}

// Spin handles POST /api/roll/spin: debits the roll cost, evaluates one
// draw per roll against the weighted catalog, and credits each prize.
func (s *Service) Spin(w http.ResponseWriter, r *http.Request) {
	var req SpinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientSeed == "" {
		writeError(w, "clientSeed is required", http.StatusBadRequest)
		return
	}
	if req.RollCount <= 0 {
		req.RollCount = 1
	}
	if req.RollCount > maxRollsPerSpin {
		writeError(w, fmt.Sprintf("rollCount must be at most %d", maxRollsPerSpin), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	identity := identityFrom(ctx)

	if !s.seeds.Active(identity) {
		writeError(w, "seed not set, request /api/roll/seed first", http.StatusBadRequest)
		return
	}

	totalCost := costPerRoll.Mul(decimal.NewFromInt(int64(req.RollCount)))
	balance, err := s.ledger.Balance(ctx, identity)
	if err != nil {
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}
	if balance.LessThan(totalCost) {
		writeError(w, "insufficient balance", http.StatusBadRequest)
		return
	}
	if _, err := s.ledger.ApplyDelta(ctx, identity, totalCost.Neg()); err != nil {
		writeError(w, "failed to debit roll cost", http.StatusInternalServerError)
		return
	}

	weights := s.items.Weights()
	resp := SpinResponse{Results: make([]SpinResult, 0, req.RollCount)}

	for i := 0; i < req.RollCount; i++ {
		draw, err := s.seeds.Evaluate(identity, req.ClientSeed)
		if err != nil {
			// Session vanished mid-spin is not reachable through this
			// handler; treat like any precondition failure.
			writeError(w, "seed not set, request /api/roll/seed first", http.StatusBadRequest)
			return
		}
		idx, err := fair.Pick(weights, draw.Result)
		if err != nil {
			// Catalog misconfiguration is fatal for the request, loudly.
			writeError(w, "prize catalog misconfigured", http.StatusInternalServerError)
			return
		}
		item := s.items[idx]
		metrics.DrawsTotal.Inc()

		roundID := fmt.Sprintf("roll-%s-%d", fair.HashSeed(draw.ServerSeed)[:8], draw.Nonce)
		if err := s.ledger.Record(ctx, identity, roundID, model.OutcomeWin, item.Payout); err != nil {
			writeError(w, "failed to record win", http.StatusInternalServerError)
			return
		}

		resp.Results = append(resp.Results, SpinResult{Item: item, Nonce: draw.Nonce})
		resp.ServerSeed = draw.ServerSeed

		slog.Info("roll evaluated",
			"identity", identity,
			"nonce", draw.Nonce,
			"item", item.ID,
			"payout", item.Payout.String(),
		)
	}

	resp.Balance, err = s.ledger.Balance(ctx, identity)
	if err != nil {
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Auth middleware ---

type ctxKey int

const identityKey ctxKey = 0

// identityFrom returns the authenticated identity bound by RequireAuth.
func identityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

// RequireAuth validates the Bearer token and binds the identity into the
// request context. Token verification is local; the identity oracle is only
// consulted at /api/auth/verify time.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, "access token required", http.StatusUnauthorized)
			return
		}

		identity, err := s.tokens.Verify(header[len(prefix):])
		if err != nil {
			writeError(w, "invalid or expired token", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// --- Helpers ---

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// joinErrorMessage maps registry join errors onto client-facing text. The
// lost-race case reads like any other join failure; clients retry against
// updated state.
func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return "game not found"
	case errors.Is(err, game.ErrBetOutOfRange):
		return "bet outside allowed range"
	case errors.Is(err, game.ErrAlreadyJoined):
		return "already joined this game"
	case errors.Is(err, game.ErrInsufficientBalance):
		return "insufficient balance"
	case errors.Is(err, game.ErrStakeLimitExceeded), errors.Is(err, game.ErrExposureLimitExceeded):
		return "stake limit exceeded"
	default:
		return "failed to join game (game full or already started)"
	}
}
