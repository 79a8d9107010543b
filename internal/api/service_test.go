package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/api"
	"github.com/Ivantech123/neontrill/internal/auth"
	"github.com/Ivantech123/neontrill/internal/catalog"
	"github.com/Ivantech123/neontrill/internal/fair"
	"github.com/Ivantech123/neontrill/internal/game"
	"github.com/Ivantech123/neontrill/internal/ledger"
	"github.com/Ivantech123/neontrill/internal/model"
	"github.com/Ivantech123/neontrill/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	svc      *api.Service
	router   chi.Router
	ledger   *ledger.Ledger
	registry *game.Registry
	tokens   *auth.TokenManager
}

// newTestEnv wires the service over an in-memory store and a dev-mode
// proof checker (structural validation only, no signature oracle).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	lg := ledger.New(store.NewMemoryStore())
	registry := game.New(game.DefaultConfig(), lg, nil)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	challenges := auth.NewChallengeIssuer()
	checker := auth.NewProofChecker("example.com", challenges)

	svc, err := api.NewService(registry, lg, fair.NewSessionStore(), catalog.Default(), tokens, challenges, checker)
	if err != nil {
		t.Fatalf("service init: %v", err)
	}

	r := chi.NewRouter()
	r.Post("/api/auth/challenge", svc.GetChallenge)
	r.Post("/api/auth/verify", svc.VerifyWallet)
	r.Get("/api/games", svc.ListGames)
	r.Get("/api/stats", svc.GetStats)
	r.Get("/api/leaderboard", svc.GetLeaderboard)
	r.Group(func(r chi.Router) {
		r.Use(svc.RequireAuth)
		r.Get("/api/user/history", svc.GetHistory)
		r.Get("/api/user/profile", svc.GetProfile)
		r.Get("/api/roll/seed", svc.GetSeed)
		r.Post("/api/roll/spin", svc.Spin)
	})

	return &testEnv{svc: svc, router: r, ledger: lg, registry: registry, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return v
}

func (e *testEnv) tokenFor(t *testing.T, identity string) string {
	t.Helper()
	token, err := e.tokens.Issue(identity)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// --- Auth flow tests ---

func TestAuthFlow_ChallengeVerifyToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/auth/challenge", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("challenge returned %d: %s", w.Code, w.Body.String())
	}
	challenge := decode[map[string]string](t, w)["payload"]
	if challenge == "" {
		t.Fatal("no challenge payload")
	}

	w = env.do(t, "POST", "/api/auth/verify", "", map[string]any{
		"address": "wallet-1",
		"proof": map[string]any{
			"timestamp": time.Now().Unix(),
			"domain":    "example.com",
			"payload":   challenge,
			"signature": "c2ln",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify returned %d: %s", w.Code, w.Body.String())
	}
	token := decode[map[string]string](t, w)["token"]
	if token == "" {
		t.Fatal("no token in response")
	}

	// The issued token grants access to protected routes.
	w = env.do(t, "GET", "/api/user/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile with issued token returned %d", w.Code)
	}
	profile := decode[model.Profile](t, w)
	if profile.Identity != "wallet-1" {
		t.Errorf("expected profile for wallet-1, got %s", profile.Identity)
	}
}

func TestVerifyWallet_BadProof(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/auth/verify", "", map[string]any{
		"address": "wallet-1",
		"proof": map[string]any{
			"timestamp": time.Now().Unix(),
			"domain":    "example.com",
			"payload":   "auth-0-neverissued",
			"signature": "c2ln",
		},
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/user/history", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/user/history", "not-a-token", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

// --- View tests ---

func TestListGames_Empty(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/games", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestListGames_ShowsActive(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.CreateGame("creator", d(0.1), d(5), 4); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := env.do(t, "GET", "/api/games", "", nil)
	games := decode[[]model.GameSummary](t, w)
	if len(games) != 1 {
		t.Fatalf("expected 1 game, got %d", len(games))
	}
	if games[0].MaxPlayers != 4 || games[0].Status != model.StatusWaiting {
		t.Errorf("unexpected summary: %+v", games[0])
	}
}

func TestGetHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/user/history", env.tokenFor(t, "wallet-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body[0] != '[' {
		t.Errorf("empty history must encode as an array, got %s", body)
	}
}

func TestGetLeaderboard_Shape(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ledger.Record(ctx, "wallet-1", "g1", model.OutcomeWin, d(5))
	env.ledger.Record(ctx, "wallet-2", "g1", model.OutcomeLoss, d(-2))

	w := env.do(t, "GET", "/api/leaderboard?limit=10", "", nil)
	resp := decode[map[string][]ledger.LeaderboardEntry](t, w)
	entries := resp["leaderboard"]
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Identity != "wallet-1" || entries[0].Rank != 1 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

// --- Roll tests ---

func TestGetSeed_CommitAndRotate(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")

	w := env.do(t, "GET", "/api/roll/seed", token, nil)
	first := decode[map[string]string](t, w)
	if first["seedHash"] == "" {
		t.Fatal("no seed hash")
	}
	if _, ok := first["previousServerSeed"]; ok {
		t.Error("first commitment revealed a previous seed")
	}

	w = env.do(t, "GET", "/api/roll/seed", token, nil)
	second := decode[map[string]string](t, w)
	revealed := second["previousServerSeed"]
	if revealed == "" {
		t.Fatal("rotation did not reveal the previous seed")
	}
	if fair.HashSeed(revealed) != first["seedHash"] {
		t.Error("revealed seed does not match the first commitment")
	}
}

func TestSpin_WithoutSeed(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/roll/spin", env.tokenFor(t, "wallet-1"),
		api.SpinRequest{ClientSeed: "client"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a seed commitment, got %d", w.Code)
	}
}

func TestSpin_RequiresClientSeed(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")
	env.do(t, "GET", "/api/roll/seed", token, nil)

	w := env.do(t, "POST", "/api/roll/spin", token, api.SpinRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without clientSeed, got %d", w.Code)
	}
}

func TestSpin_SingleRoll(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")
	env.do(t, "GET", "/api/roll/seed", token, nil)

	w := env.do(t, "POST", "/api/roll/spin", token, api.SpinRequest{ClientSeed: "client"})
	if w.Code != http.StatusOK {
		t.Fatalf("spin returned %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.SpinResponse](t, w)
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Nonce != 0 {
		t.Errorf("expected first nonce 0, got %d", resp.Results[0].Nonce)
	}
	if resp.ServerSeed == "" {
		t.Error("server seed not revealed with the spin")
	}

	// Balance moved by exactly the payout minus the 0.1 roll cost.
	want := d(10).Sub(d(0.1)).Add(resp.Results[0].Item.Payout)
	if !resp.Balance.Equal(want) {
		t.Errorf("expected balance %s, got %s", want, resp.Balance)
	}

	// The draw is verifiable from the revealed seed.
	n := fair.DeriveResult(resp.ServerSeed, "client", 0)
	idx, err := fair.Pick(catalog.Default().Weights(), n)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if catalog.Default()[idx].ID != resp.Results[0].Item.ID {
		t.Error("spin result does not reproduce from the revealed seed")
	}
}

func TestSpin_MultiRollNoncesAdvance(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")
	env.do(t, "GET", "/api/roll/seed", token, nil)

	w := env.do(t, "POST", "/api/roll/spin", token,
		api.SpinRequest{ClientSeed: "client", RollCount: 3})
	resp := decode[api.SpinResponse](t, w)
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	for i, res := range resp.Results {
		if res.Nonce != uint64(i) {
			t.Errorf("result %d has nonce %d", i, res.Nonce)
		}
	}
}

func TestSpin_RollCountCap(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")
	env.do(t, "GET", "/api/roll/seed", token, nil)

	w := env.do(t, "POST", "/api/roll/spin", token,
		api.SpinRequest{ClientSeed: "client", RollCount: 11})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 above roll cap, got %d", w.Code)
	}
}

func TestSpin_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "wallet-1")
	env.do(t, "GET", "/api/roll/seed", token, nil)

	// Drain the lazily-initialized balance below one roll cost.
	if _, err := env.ledger.ApplyDelta(context.Background(), "wallet-1", d(-9.95)); err != nil {
		t.Fatalf("drain: %v", err)
	}

	w := env.do(t, "POST", "/api/roll/spin", token, api.SpinRequest{ClientSeed: "client"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on insufficient balance, got %d", w.Code)
	}
}
