package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const cleanupCron = "30 3 * * *"

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

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.RedisAddr == "" {
		return errors.New("worker: REDIS_ADDR required")
	}
	services, err := app.OpenServices(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	ledgerJobs := jobs.NewLedgerJobs(services.Ledger, logger, nil, cfg.IntegrityParallel)
	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskLedgerRecalculate, Handler: ledgerJobs.HandleRecalculate},
		{Type: jobs.TaskLedgerIntegrity, Handler: ledgerJobs.HandleIntegrity},
	}

	integrityTask, err := jobs.NewIntegrityTask(jobs.IntegrityPayload{Repair: true})
	if err != nil {
		return err
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}

	if services.KeyCleaner != nil {
		cleanupJob := jobs.NewCleanupJob(services.KeyCleaner, logger, nil)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cleanupTask, err := jobs.NewCleanupTask(0)
		if err != nil {
			return err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		return err
	}
	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("integrity_cron", cfg.IntegrityCron))
	return worker.Run(ctx)
}
