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

	"github.com/odyssey-erp/cashdesk/internal/app"
	cashdeskhttp "github.com/odyssey-erp/cashdesk/internal/cashdesk/http"
	"github.com/odyssey-erp/cashdesk/internal/observability"
	"github.com/odyssey-erp/cashdesk/internal/platform/cache"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PoolOptions("api"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(redisOpts.AsynqOptions())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(jobClient, cfg.NotifyQueue)

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())

	uow := db.NewUnitOfWork(pool, cfg.StoreTimeout, cfg.StoreRetries)
	services := app.NewServices(uow, logger, ledgerMetrics, app.Notifiers{
		Dividend: notifier,
		Transfer: notifier,
		Inkasso:  notifier,
	})

	handler := cashdeskhttp.NewHandler(cashdeskhttp.Params{
		Balances:    services.Balances,
		Dividends:   services.Dividends,
		Transfers:   services.Transfers,
		Inkasso:     services.Inkasso,
		Idempotency: shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL).WithClaimTTL(cfg.AppRequestTimeout + cfg.StoreTimeout),
		Logger:      logger,
	})

	inspector := asynq.NewInspector(redisOpts.AsynqOptions())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Cashdesk:       handler,
		RBACMiddleware: rbac.Middleware{Roles: rbac.NewService(pool), Logger: logger},
		JobHandler:     jobs.NewHandler(inspector, cfg.NotifyQueue, logger),
		Metrics:        metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
