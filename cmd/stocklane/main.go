package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocklane/stocklane/internal/adjustment"
	"github.com/stocklane/stocklane/internal/app"
	"github.com/stocklane/stocklane/internal/directory"
	"github.com/stocklane/stocklane/internal/intake"
	"github.com/stocklane/stocklane/internal/movement"
	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/platform/cache"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/reconcile"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/transfer"
	"github.com/stocklane/stocklane/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, movement summaries uncached", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	dir := directory.NewRepository(pool)

	intakeService := intake.NewService(intake.NewRepository(pool), dir, auditLogger)
	intakeHandler := intake.NewHandler(logger, intakeService)

	adjustmentService := adjustment.NewService(
		adjustment.NewRepository(pool), auditLogger, approvalRecorder, metrics,
		adjustment.ServiceConfig{ApprovalThreshold: cfg.ApprovalThresholdAmount()})
	adjustmentHandler := adjustment.NewHandler(logger, adjustmentService)

	transferService := transfer.NewService(
		transfer.NewRepository(pool), dir, auditLogger, idempotencyStore, metrics,
		transfer.ServiceConfig{MaxItems: cfg.MaxTransferItems})
	transferHandler := transfer.NewHandler(logger, transferService)

	salesReader := sales.NewReader(pool)
	reconcileService := reconcile.NewService(reconcile.NewRepository(pool), salesReader)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	var movementCache *movement.Cache
	if redisClient != nil {
		movementCache = movement.NewCache(redisClient, cfg.MovementCacheTTL)
	}
	movementService := movement.NewService(movement.NewRepository(pool), movementCache)
	movementHandler := movement.NewHandler(logger, movementService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:            cfg,
		IntakeHandler:     intakeHandler,
		AdjustmentHandler: adjustmentHandler,
		TransferHandler:   transferHandler,
		ReconcileHandler:  reconcileHandler,
		MovementHandler:   movementHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
