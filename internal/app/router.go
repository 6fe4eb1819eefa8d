package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimia-erp/vendimia-erp/internal/invoicing"
	"github.com/vendimia-erp/vendimia-erp/internal/orders"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
	"github.com/vendimia-erp/vendimia-erp/internal/transfers"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	OrdersHandler    *orders.Handler
	TransfersHandler *transfers.Handler
	InvoicingHandler *invoicing.Handler
	StockHandler     *stock.Handler
	Pool             *pgxpool.Pool
}

// NewRouter constructs the chi.Router with Vendimia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Error("healthcheck ping failed", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.OrdersHandler.MountRoutes(r)
	params.TransfersHandler.MountRoutes(r)
	params.InvoicingHandler.MountRoutes(r)
	params.StockHandler.MountRoutes(r)

	return r
}
