package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// ErrLevelNotFound indicates a missing stock counter row.
var ErrLevelNotFound = errors.New("stock level not found")

// ApplyDeltaTx applies one signed delta to a stock counter inside the
// caller's transaction. The row is locked for update, so concurrent
// decrements on the same key serialize. Outflows that would drive the
// counter negative fail with shared.ErrInsufficientStock unless
// allowNegative is set (historical data loads).
func ApplyDeltaTx(ctx context.Context, tx TxRepository, d DeltaInput, allowNegative bool) (int64, error) {
	if d.VariationID == 0 || d.WarehouseID == 0 || d.StockTypeID == 0 {
		return 0, shared.NewValidation("stock: variation, warehouse and stock type are required")
	}
	if d.Delta == 0 {
		return 0, shared.NewValidation("stock: delta must be non-zero")
	}
	level, err := tx.GetLevelForUpdate(ctx, Key{d.VariationID, d.WarehouseID, d.StockTypeID})
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return 0, err
	}
	if errors.Is(err, ErrLevelNotFound) {
		level = Level{VariationID: d.VariationID, WarehouseID: d.WarehouseID, StockTypeID: d.StockTypeID}
	}
	newQty := level.Quantity + d.Delta
	if newQty < 0 && !allowNegative {
		return 0, fmt.Errorf("stock: variation %d warehouse %d would reach %d: %w",
			d.VariationID, d.WarehouseID, newQty, shared.ErrInsufficientStock)
	}
	level.Quantity = newQty
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return 0, err
	}
	return newQty, nil
}

// ApplyDeltasTx applies multiple deltas sequentially in input order within
// one transaction, so a later line's failure aborts the earlier lines too.
func ApplyDeltasTx(ctx context.Context, tx TxRepository, deltas []DeltaInput, allowNegative bool) error {
	for _, d := range deltas {
		if _, err := ApplyDeltaTx(ctx, tx, d, allowNegative); err != nil {
			return err
		}
	}
	return nil
}
