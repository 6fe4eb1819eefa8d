package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// RecordTx appends one movement row inside the caller's transaction. The
// ledger is not touched; callers pair this with ApplyDeltaTx for direct
// sales or leave the movement provisional for approval workflows.
func RecordTx(ctx context.Context, tx TxRepository, in MovementInput) (int64, error) {
	if in.VariationID == 0 || in.WarehouseID == 0 {
		return 0, shared.NewValidation("stock: variation and warehouse are required")
	}
	if in.Quantity == 0 {
		return 0, shared.NewValidation("stock: movement quantity must be non-zero")
	}
	m := Movement{
		Code:           uuid.NewString(),
		VariationID:    in.VariationID,
		Quantity:       in.Quantity,
		WarehouseID:    in.WarehouseID,
		MovementTypeID: in.MovementTypeID,
		StockTypeID:    in.StockTypeID,
		Completed:      in.Completed,
		IsActive:       in.IsActive,
		OrderID:        in.OrderID,
		RequestID:      in.RequestID,
		CreatedBy:      in.ActorID,
	}
	return tx.InsertMovement(ctx, m)
}

// RecordPairTx records a linked OUT/IN movement pair. The two rows carry
// mutual back-references and both start inactive and incomplete.
func RecordPairTx(ctx context.Context, tx TxRepository, in TransferInput) (outID, inID int64, err error) {
	if in.Quantity <= 0 {
		return 0, 0, shared.NewValidation("stock: transfer quantity must be positive")
	}
	if in.OutWarehouseID == in.InWarehouseID {
		return 0, 0, shared.NewValidation("stock: transfer warehouses must differ")
	}
	outID, err = RecordTx(ctx, tx, MovementInput{
		VariationID:    in.VariationID,
		Quantity:       -in.Quantity,
		WarehouseID:    in.OutWarehouseID,
		MovementTypeID: in.MovementTypeID,
		StockTypeID:    in.StockTypeID,
		RequestID:      in.RequestID,
		ActorID:        in.ActorID,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("record out movement: %w", err)
	}
	inID, err = RecordTx(ctx, tx, MovementInput{
		VariationID:    in.VariationID,
		Quantity:       in.Quantity,
		WarehouseID:    in.InWarehouseID,
		MovementTypeID: in.MovementTypeID,
		StockTypeID:    in.StockTypeID,
		RequestID:      in.RequestID,
		ActorID:        in.ActorID,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("record in movement: %w", err)
	}
	if err = tx.LinkMovements(ctx, outID, inID); err != nil {
		return 0, 0, fmt.Errorf("link movements: %w", err)
	}
	return outID, inID, nil
}
