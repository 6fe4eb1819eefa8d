package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vendimia-erp/vendimia-erp/internal/platform/httpx"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// AdjustmentRequest is a manual ledger correction.
type AdjustmentRequest struct {
	VariationID int64 `json:"variation_id" validate:"required,gt=0"`
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
	StockTypeID int64 `json:"stock_type_id" validate:"omitempty,gt=0"`
	Delta       int64 `json:"delta" validate:"required"`
}

// AvailabilityResponse reports sellable stock for one counter.
type AvailabilityResponse struct {
	VariationID int64 `json:"variation_id"`
	WarehouseID int64 `json:"warehouse_id"`
	StockTypeID int64 `json:"stock_type_id"`
	Available   int64 `json:"available"`
}

// AdjustmentResponse echoes the counter after a manual correction.
type AdjustmentResponse struct {
	VariationID int64 `json:"variation_id"`
	WarehouseID int64 `json:"warehouse_id"`
	StockTypeID int64 `json:"stock_type_id"`
	Quantity    int64 `json:"quantity"`
}

// HandlerConfig groups handler settings.
type HandlerConfig struct {
	// DefaultStockTypeID fills requests that omit stock_type_id.
	DefaultStockTypeID int64
}

// Handler exposes the stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	cfg      HandlerConfig
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, cfg HandlerConfig) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, cfg: cfg}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/availability", h.availability)
	r.Post("/stock/adjustments", h.adjust)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	variationID, ok := queryID(w, r, "variation_id")
	if !ok {
		return
	}
	warehouseID, ok := queryID(w, r, "warehouse_id")
	if !ok {
		return
	}
	stockTypeID := h.cfg.DefaultStockTypeID
	if raw := r.URL.Query().Get("stock_type_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "stock_type_id must be a positive integer")
			return
		}
		stockTypeID = id
	}

	key := Key{VariationID: variationID, WarehouseID: warehouseID, StockTypeID: stockTypeID}
	available, err := h.service.Available(r.Context(), key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AvailabilityResponse{
		VariationID: variationID,
		WarehouseID: warehouseID,
		StockTypeID: stockTypeID,
		Available:   available,
	})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	if shared.ActorFromContext(r.Context()) == 0 {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req AdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.StockTypeID == 0 {
		req.StockTypeID = h.cfg.DefaultStockTypeID
	}

	newQty, err := h.service.ApplyDelta(r.Context(), DeltaInput{
		VariationID: req.VariationID,
		WarehouseID: req.WarehouseID,
		StockTypeID: req.StockTypeID,
		Delta:       req.Delta,
	})
	if err != nil {
		h.logger.Error("stock adjustment failed", "err", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AdjustmentResponse{
		VariationID: req.VariationID,
		WarehouseID: req.WarehouseID,
		StockTypeID: req.StockTypeID,
		Quantity:    newQty,
	})
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
