package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashdesk/internal/app"
	jobmetrics "github.com/odyssey-erp/cashdesk/internal/jobs"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/cache"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/jobs"
)

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

	pool, err := db.New(ctx, cfg.PoolOptions("worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	uow := db.NewUnitOfWork(pool, cfg.StoreTimeout, cfg.StoreRetries)
	services := app.NewServices(uow, logger, nil, app.Notifiers{})

	handlers := jobs.NewHandlers(
		jobs.LogSink{Logger: logger},
		money.NewFormatter(cfg.MoneyLocale, cfg.MoneyScale, cfg.MoneySymbol),
		jobmetrics.NewMetrics(nil),
		services.Balances,
		logger,
	)

	var cron []jobs.CronRegistration
	if cfg.IntegritySweepCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.IntegritySweepCron,
			Task:    jobs.NewIntegritySweepTask(),
			Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(1)},
		})
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.AsynqOptions(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		NotifyQueue: cfg.NotifyQueue,
		Handlers:    handlers.TaskHandlers(),
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
