package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lns-pipeline/lns-pipeline/internal/app"
	jobmetrics "github.com/lns-pipeline/lns-pipeline/internal/jobs"
	"github.com/lns-pipeline/lns-pipeline/internal/observability"
	"github.com/lns-pipeline/lns-pipeline/internal/pipeline"
	"github.com/lns-pipeline/lns-pipeline/internal/platform/db"
	"github.com/lns-pipeline/lns-pipeline/internal/shared"
	"github.com/lns-pipeline/lns-pipeline/jobs"
)

const idempotencyRetention = 7 * 24 * time.Hour

func main() {
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	pipelineRepo := pipeline.NewRepository(dbpool)
	pipelineService := pipeline.NewService(pipelineRepo, auditLogger, metrics, logger)

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	sweeper := jobs.NewIntegritySweeper(jobs.NewSweepStore(dbpool), pipelineService, jobMetrics, logger)

	sweepTask, err := jobs.NewCodeIntegrityTask(jobs.CodeIntegrityPayload{RequestedAt: time.Now()})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask()
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCodeIntegritySweep, Handler: sweeper.HandleTask},
			{Type: jobs.TaskIdempotencyCleanup, Handler: func(ctx context.Context, t *asynq.Task) error {
				return idempotencyStore.Cleanup(ctx, idempotencyRetention)
			}},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegritySweepCron, Task: sweepTask},
			{Spec: "0 3 * * *", Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
