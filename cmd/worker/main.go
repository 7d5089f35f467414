package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/mrp/internal/app"
	jobmetrics "github.com/odyssey-erp/mrp/internal/jobs"
	"github.com/odyssey-erp/mrp/internal/observability"
	"github.com/odyssey-erp/mrp/internal/platform/db"
	"github.com/odyssey-erp/mrp/internal/settlement"
	"github.com/odyssey-erp/mrp/internal/shared"
	"github.com/odyssey-erp/mrp/internal/stocktaking"
	"github.com/odyssey-erp/mrp/jobs"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	settlementService, err := settlement.NewService(settlement.NewRepository(pool), settlement.ServiceConfig{
		Tolerance: cfg.Tolerance(),
		Observer:  metrics,
	})
	if err != nil {
		logger.Error("init settlement service", slog.Any("error", err))
		os.Exit(1)
	}
	// preflight always reads reservations fresh, so the worker needs no cache
	stocktakingService := stocktaking.NewService(
		stocktaking.NewRepository(pool),
		stocktaking.NewReservationRepository(pool),
		stocktaking.ServiceConfig{Observer: metrics},
	)
	idempotency := shared.NewIdempotencyStore(pool)

	preflightJob := jobs.NewPreflightJob(stocktakingService, logger, jobMetrics)
	overdueJob := jobs.NewOverdueScanJob(settlementService, logger, jobMetrics)
	cleanupJob := jobs.NewCleanupJob(idempotency, logger, jobMetrics)

	overdueTask, err := jobs.NewOverdueScanTask()
	if err != nil {
		logger.Error("build overdue scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewCleanupTask(72)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerThreads,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStocktakingPreflight, Handler: preflightJob.Handle},
			{Type: jobs.TaskSettlementOverdueScan, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanCron, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
