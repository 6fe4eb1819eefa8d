package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vendimia-erp/vendimia-erp/internal/app"
	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/invoicing"
	"github.com/vendimia-erp/vendimia-erp/internal/orders"
	"github.com/vendimia-erp/vendimia-erp/internal/platform/cache"
	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
	"github.com/vendimia-erp/vendimia-erp/internal/transfers"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cat, err := catalog.Load(ctx, dbpool)
	if err != nil {
		logger.Error("load status catalog", slog.Any("error", err))
		os.Exit(1)
	}

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ordersRepo := orders.NewRepository(dbpool)
	ordersCache := orders.NewCache(redisClient, cfg.AggregateCacheTTL)
	ordersService := orders.NewService(ordersRepo, cat, auditLogger, ordersCache, logger, orders.ServiceConfig{
		DefaultStockTypeID: cfg.DefaultStockTypeID,
		DefaultAccountID:   cfg.DefaultAccountID,
		ReservationTTL:     cfg.ReservationTTL,
	})
	ordersHandler := orders.NewHandler(logger, ordersService, validate, idempotencyStore)

	transfersRepo := transfers.NewRepository(dbpool)
	transfersService := transfers.NewService(transfersRepo, cat, auditLogger, logger, cfg.DefaultStockTypeID)
	transfersHandler := transfers.NewHandler(logger, transfersService, validate)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, auditLogger, stock.ServiceConfig{})
	stockHandler := stock.NewHandler(logger, stockService, validate, stock.HandlerConfig{
		DefaultStockTypeID: cfg.DefaultStockTypeID,
	})

	invoicingRepo := invoicing.NewRepository(dbpool)
	invoicingService := invoicing.NewService(invoicingRepo, auditLogger, logger)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService, validate)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    ordersHandler,
		TransfersHandler: transfersHandler,
		InvoicingHandler: invoicingHandler,
		StockHandler:     stockHandler,
		Pool:             dbpool,
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
