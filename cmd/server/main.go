package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/api"
	"github.com/Ivantech123/neontrill/internal/auth"
	"github.com/Ivantech123/neontrill/internal/catalog"
	"github.com/Ivantech123/neontrill/internal/fair"
	"github.com/Ivantech123/neontrill/internal/game"
	"github.com/Ivantech123/neontrill/internal/ledger"
	"github.com/Ivantech123/neontrill/internal/metrics"
	"github.com/Ivantech123/neontrill/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Balance ledger ---
	lg := ledger.New(st)

	// --- Stake limits ---
	maxPerGame := decimal.NewFromInt(1000)
	maxActive := decimal.NewFromInt(5000)
	limiter := game.NewStakeLimiter(maxPerGame, maxActive)

	// --- Game registry ---
	registry := game.New(game.DefaultConfig(), lg, limiter)

	// --- Auth ---
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			slog.Error("secret generation failed", "err", err)
			os.Exit(1)
		}
		secret = hex.EncodeToString(buf)
		slog.Warn("JWT_SECRET not set, using ephemeral secret (tokens die with the process)")
	}
	tokens := auth.NewTokenManager(secret, 24*time.Hour)
	challenges := auth.NewChallengeIssuer()

	domain := os.Getenv("APP_DOMAIN")
	if domain == "" {
		domain = "localhost"
	}
	checker := auth.NewProofChecker(domain, challenges)

	// --- Provably fair sessions + prize catalog ---
	seeds := fair.NewSessionStore()
	items := catalog.Default()

	// --- HTTP service ---
	svc, err := api.NewService(registry, lg, seeds, items, tokens, challenges, checker)
	if err != nil {
		slog.Error("service init failed", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	hub := api.NewHub(registry, tokens)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// --- Scheduler: advance games every second, then push the new state ---
	sched := game.NewScheduler(registry, time.Second, hub.TickBroadcast)
	sched.Start(hubCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"neontrill"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket endpoint for real-time game updates.
		r.Get("/ws", hub.HandleWS)

		// Wallet-based authentication.
		r.Post("/auth/challenge", svc.GetChallenge)
		r.Post("/auth/verify", svc.VerifyWallet)

		// Public lobby views.
		r.Get("/games", svc.ListGames)
		r.Get("/stats", svc.GetStats)
		r.Get("/leaderboard", svc.GetLeaderboard)

		// Authenticated user and roll endpoints.
		r.Group(func(r chi.Router) {
			r.Use(svc.RequireAuth)
			r.Get("/user/history", svc.GetHistory)
			r.Get("/user/profile", svc.GetProfile)
			r.Get("/roll/seed", svc.GetSeed)
			r.Post("/roll/spin", svc.Spin)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("neontrill listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down neontrill...")
	sched.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("neontrill stopped")
}
