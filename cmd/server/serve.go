package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fancify-backend/internal/config"
	"fancify-backend/internal/database"
	"fancify-backend/internal/handlers"
	"fancify-backend/internal/logger"
	"fancify-backend/internal/middleware"
	"fancify-backend/internal/models"
	"fancify-backend/internal/repository"
	"fancify-backend/internal/router"
	"fancify-backend/internal/services"
	"fancify-backend/internal/session"
	"fancify-backend/internal/websocket"
	"fancify-backend/internal/worker"
	"fancify-backend/web"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting fancify", zap.String("env", cfg.Env))

	// ──── Step 2: Optional PostgreSQL transform log ────
	var (
		pool       *pgxpool.Pool
		transforms *repository.TransformRepo
	)
	if cfg.DatabaseURL != "" {
		pool, err = database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := database.RunMigrations(pool, database.Migrations(), log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		transforms = repository.NewTransformRepo(pool)
		log.Info("postgres connected, transform log enabled")
	} else {
		log.Info("DATABASE_URL not set, transform log disabled")
	}

	// ──── Step 3: Optional Redis fan-out ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		log.Info("redis connected, render fan-out enabled")
	}

	// ──── Step 4: Gemini Client ────
	gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log)
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	defer gemini.Close()
	log.Info("gemini client initialized", zap.String("model", cfg.GeminiModel))

	// ──── Step 5: Sessions, hub, handlers ────
	jwtAuth := newSessionAuth(cfg.JWTSecret)

	deps := session.Deps{
		Completer:       gemini,
		Log:             log,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.TransformTimeout,
	}
	if transforms != nil {
		recorder := worker.NewPool(transforms, log, 2, 256)
		recorder.Start()
		defer recorder.Stop()
		deps.Recorder = recorder
	}

	// The hub needs the manager for initial snapshots and the manager's
	// controllers render through the hub.
	hubRenderer := &lateRenderer{}
	deps.Renderer = hubRenderer
	manager := session.NewManager(deps, cfg.SessionIdleTTL)

	wsHub := websocket.NewHub(redisClient, jwtAuth, manager, log)
	defer wsHub.Close()
	hubRenderer.set(wsHub)

	var lister handlers.TransformLister
	if transforms != nil {
		lister = transforms
	}
	sessionHandler := handlers.NewSessionHandler(manager, jwtAuth, lister, log)
	transformLimiter := middleware.NewRateLimiter(cfg.TransformRateLimit, time.Minute)

	// ──── Step 6: HTTP Server ────
	r := router.New(log, jwtAuth, transformLimiter, sessionHandler, wsHub, web.Handler(), cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Transforms hold the response open until the completion returns.
		WriteTimeout: writeTimeout(cfg.TransformTimeout),
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("fancify ready",
			zap.String("addr", "http://localhost:"+cfg.Port),
			zap.String("ws", "ws://localhost:"+cfg.Port+"/api/v1/ws"),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		manager.Run(gctx, sweepInterval)
		return nil
	})

	g.Go(func() error {
		transformLimiter.Run(gctx)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Int("live_sessions", manager.Len()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSessionAuth issues tokens without expiry. A session ends when the idle
// sweep removes it, so an active session never loses its token.
func newSessionAuth(secret string) *middleware.JWTAuth {
	return middleware.NewJWTAuth(secret, 0)
}

// writeTimeout leaves room for a bounded transform; an unbounded one gets no
// write deadline.
func writeTimeout(transformTimeout time.Duration) time.Duration {
	if transformTimeout <= 0 {
		return 0
	}
	return transformTimeout + 15*time.Second
}

// lateRenderer forwards to a renderer installed after construction.
type lateRenderer struct {
	r session.Renderer
}

func (l *lateRenderer) set(r session.Renderer) { l.r = r }

func (l *lateRenderer) Render(ctx context.Context, snap models.Snapshot) {
	if l.r != nil {
		l.r.Render(ctx, snap)
	}
}
