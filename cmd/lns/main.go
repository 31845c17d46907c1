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

	"github.com/lns-pipeline/lns-pipeline/internal/app"
	"github.com/lns-pipeline/lns-pipeline/internal/insights"
	"github.com/lns-pipeline/lns-pipeline/internal/masterdata"
	"github.com/lns-pipeline/lns-pipeline/internal/observability"
	"github.com/lns-pipeline/lns-pipeline/internal/pipeline"
	"github.com/lns-pipeline/lns-pipeline/internal/platform/cache"
	"github.com/lns-pipeline/lns-pipeline/internal/platform/db"
	"github.com/lns-pipeline/lns-pipeline/internal/shared"
	"github.com/lns-pipeline/lns-pipeline/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	pipelineRepo := pipeline.NewRepository(dbpool)
	pipelineService := pipeline.NewService(pipelineRepo, auditLogger, metrics, logger)
	pipelineHandler := pipeline.NewHandler(pipelineService, idempotencyStore, logger)

	masterDataRepo := masterdata.NewRepository(dbpool)
	masterDataService := masterdata.NewService(masterDataRepo)
	masterDataHandler := masterdata.NewHandler(masterDataService)

	insightsSource := insights.NewSource(dbpool)
	insightsCache := insights.NewCache(redisClient, cfg.InsightsCacheTTL)
	insightsService := insights.NewService(insightsSource, insightsCache, logger)
	insightsHandler := insights.NewHandler(insightsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		PipelineHandler:   pipelineHandler,
		MasterDataHandler: masterDataHandler,
		InsightsHandler:   insightsHandler,
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
