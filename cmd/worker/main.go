package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vendimia-erp/vendimia-erp/internal/app"
	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/orders"
	"github.com/vendimia-erp/vendimia-erp/internal/platform/cache"
	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cat, err := catalog.Load(ctx, pool)
	if err != nil {
		logger.Error("load status catalog", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	ordersRepo := orders.NewRepository(pool)
	ordersCache := orders.NewCache(redisClient, cfg.AggregateCacheTTL)
	ordersService := orders.NewService(ordersRepo, cat, auditLogger, ordersCache, logger, orders.ServiceConfig{
		DefaultStockTypeID: cfg.DefaultStockTypeID,
		DefaultAccountID:   cfg.DefaultAccountID,
		ReservationTTL:     cfg.ReservationTTL,
	})

	sweepTask, err := jobs.NewReservationSweepTask()
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationSweep, Handler: jobs.NewReservationSweepHandler(ordersService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCronSpec, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
