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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/mrp/internal/app"
	"github.com/odyssey-erp/mrp/internal/observability"
	"github.com/odyssey-erp/mrp/internal/platform/cache"
	"github.com/odyssey-erp/mrp/internal/platform/db"
	"github.com/odyssey-erp/mrp/internal/quotation"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		if err := db.RunMigrations(ctx, dbpool); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, reservation cache stays in memory", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	settlementService, err := settlement.NewService(settlement.NewRepository(dbpool), settlement.ServiceConfig{
		Tolerance: cfg.Tolerance(),
		Observer:  metrics,
	})
	if err != nil {
		logger.Error("init settlement service", slog.Any("error", err))
		os.Exit(1)
	}

	reservationCache := cache.New(cache.Options{
		Name:     "reservations",
		TTL:      cfg.ReservationCacheTTL,
		Redis:    redisClient,
		Observer: metrics,
		Logger:   logger,
	})
	stocktakingService := stocktaking.NewService(
		stocktaking.NewRepository(dbpool),
		stocktaking.NewReservationRepository(dbpool),
		stocktaking.ServiceConfig{
			Audit:       shared.NewAuditLogger(dbpool, logger),
			Idempotency: shared.NewIdempotencyStore(dbpool),
			Cache:       reservationCache,
			Observer:    metrics,
		},
	)

	matrix := quotation.DefaultMatrix()
	if cfg.QuotationMatrixPath != "" {
		matrix, err = quotation.LoadMatrix(cfg.QuotationMatrixPath)
		if err != nil {
			logger.Error("load labor matrix", slog.String("path", cfg.QuotationMatrixPath), slog.Any("error", err))
			os.Exit(1)
		}
	}
	quotationService, err := quotation.NewService(matrix, quotation.ServiceConfig{
		CostPerMinute: cfg.CostPerMinute(),
		Observer:      metrics,
	})
	if err != nil {
		logger.Error("init quotation service", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Database:           dbpool,
		SettlementHandler:  settlement.NewHandler(logger, settlementService),
		StocktakingHandler: stocktaking.NewHandler(logger, stocktakingService, enqueuerFor(jobClient, redisClient)),
		QuotationHandler:   quotation.NewHandler(logger, quotationService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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

// enqueuerFor hands out the job client only when Redis answered at start-up.
func enqueuerFor(client *jobs.Client, redisClient *redis.Client) stocktaking.PreflightEnqueuer {
	if client == nil || redisClient == nil {
		return nil
	}
	return client
}
