package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/clock"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/content"
	"github.com/stemsi/pisaprep/internal/database"
	"github.com/stemsi/pisaprep/internal/handler"
	"github.com/stemsi/pisaprep/internal/logger"
	"github.com/stemsi/pisaprep/internal/metrics"
	"github.com/stemsi/pisaprep/internal/reconcile"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stemsi/pisaprep/internal/router"
	"github.com/stemsi/pisaprep/internal/service"
	"github.com/stemsi/pisaprep/internal/session"
	"github.com/stemsi/pisaprep/internal/validator"
	"github.com/stemsi/pisaprep/internal/worker"
)

const (
	syncBatchSize   = 100
	workerDrainWait = 10 * time.Second
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("owner_id", cfg.OwnerID).
		Msg("Starting PISA prep agent")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Local Store ──────────────────────────────────────────────
	db, err := database.NewLocalStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer db.Close()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process sync triggers")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	// ─── Remote Store ──────────────────────────────────────────────────
	var store remote.DocumentStore
	if cfg.RemoteDatabaseURL != "" {
		pool, err := database.NewRemotePool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid remote store configuration")
		}
		defer pool.Close()
		store = remote.NewPostgresStore(pool)
	} else {
		log.Warn().Msg("REMOTE_DATABASE_URL not set, syncing to an in-memory store")
		store = remote.NewMemoryStore()
	}
	gateway := remote.NewGateway(store, rdb, remote.GatewayConfig{
		ChunkSize:  cfg.RemoteChunkSize,
		RatePerSec: cfg.RemoteRatePerSec,
		MetaTTL:    cfg.ContentMetaTTL,
	}, log)

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := sqlite.NewAttemptRepository(db)
	answerRepo := sqlite.NewAnswerRepository(db)
	profileRepo := sqlite.NewProfileRepository(db)
	contentRepo := sqlite.NewContentRepository(db)
	rewardRepo := sqlite.NewRewardRepository(db)

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clock.Real()
	authService := service.NewAuthService(cfg)
	profileService := service.NewProfileService(profileRepo, clk)

	var syncWorker *worker.SyncWorker
	requestSync := func(ctx context.Context) {
		if err := syncWorker.Trigger(ctx, "local_change"); err != nil {
			log.Warn().Err(err).Msg("Failed to request sync")
		}
	}
	rewardService := service.NewRewardService(rewardRepo, service.RewardPolicy{
		XPPerCorrect:       cfg.RewardXPPerCorrect,
		CurrencyPerCorrect: cfg.RewardCurrencyPerCorrect,
	}, clk, requestSync, log)

	// ─── Background Sync ───────────────────────────────────────────────
	// Lost reward notifications are redelivered before the reconciler so a
	// late grant is pushed in the same run.
	syncWorker = worker.NewSyncWorker(rdb, cfg.SyncInterval, cfg.SyncRetryDelay, log,
		content.NewRefresher(gateway, contentRepo, log),
		service.NewRewardRedelivery(rewardService, cfg.OwnerID),
		reconcile.NewReconciler(attemptRepo, answerRepo, profileRepo, gateway, syncBatchSize, log),
	)

	ctrl := session.NewController(session.Config{
		OwnerID:      cfg.OwnerID,
		Duration:     cfg.ExamDuration,
		LockDelay:    cfg.LockDelay,
		TickInterval: cfg.TickInterval,
		Online:       gateway.Online,
	}, session.Repositories{
		Attempts: attemptRepo,
		Answers:  answerRepo,
		Content:  contentRepo,
	}, rewardService, clk, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(ctrl, log),
		Attempt: handler.NewAttemptHandler(attemptRepo, ctrl, cfg.OwnerID, log),
		Profile: handler.NewProfileHandler(profileService, cfg.OwnerID, func() { requestSync(context.Background()) }, log),
		Sync:    handler.NewSyncHandler(syncWorker, log),
		WS:      handler.NewWSHandler(ctrl, log, cfg.AllowedOrigins),
		Health:  handler.NewHealthHandler(db, rdb, gateway.Online),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		syncWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the session loop. A running attempt stays IN_PROGRESS and
	// resumes on the next start.
	ctrl.Close()

	// 3. Stop the sync worker and let the current run finish.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(workerDrainWait):
		log.Warn().Msg("Sync worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
