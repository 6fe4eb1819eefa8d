package stock

import "time"

// Movement type identifiers matching the seeded reference rows.
const (
	MovementTypeSale     int64 = 1
	MovementTypeReturn   int64 = 2
	MovementTypeTransfer int64 = 3
)

// Key identifies one stock counter.
type Key struct {
	VariationID int64
	WarehouseID int64
	StockTypeID int64
}

// Level is the quantity on hand for one (variation, warehouse, stock type).
type Level struct {
	VariationID int64     `json:"variation_id" db:"variation_id"`
	WarehouseID int64     `json:"warehouse_id" db:"warehouse_id"`
	StockTypeID int64     `json:"stock_type_id" db:"stock_type_id"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Movement is an immutable record of a signed quantity change. Negative
// quantity is an outflow, positive an inflow. Only the completion and
// activation flags are ever updated after insert.
type Movement struct {
	ID                int64     `json:"id" db:"id"`
	Code              string    `json:"code" db:"code"`
	VariationID       int64     `json:"variation_id" db:"variation_id"`
	Quantity          int64     `json:"quantity" db:"quantity"`
	WarehouseID       int64     `json:"warehouse_id" db:"warehouse_id"`
	MovementTypeID    int64     `json:"movement_type_id" db:"movement_type_id"`
	StockTypeID       int64     `json:"stock_type_id" db:"stock_type_id"`
	Completed         bool      `json:"completed" db:"completed"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	LinkedMovementID  *int64    `json:"linked_movement_id,omitempty" db:"linked_movement_id"`
	OrderID           *int64    `json:"order_id,omitempty" db:"order_id"`
	RequestID         *int64    `json:"request_id,omitempty" db:"request_id"`
	CreatedBy         int64     `json:"created_by" db:"created_by"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// DeltaInput is one ledger change request.
type DeltaInput struct {
	VariationID int64
	WarehouseID int64
	StockTypeID int64
	Delta       int64
}

// MovementInput captures a single movement to record.
type MovementInput struct {
	VariationID    int64
	Quantity       int64
	WarehouseID    int64
	MovementTypeID int64
	StockTypeID    int64
	Completed      bool
	IsActive       bool
	OrderID        *int64
	RequestID      *int64
	ActorID        int64
}

// TransferInput records a linked OUT/IN movement pair between warehouses.
// Both sides start inactive and incomplete; the approval workflow flips
// the flags before the ledger is touched.
type TransferInput struct {
	VariationID    int64
	Quantity       int64
	OutWarehouseID int64
	InWarehouseID  int64
	MovementTypeID int64
	StockTypeID    int64
	RequestID      *int64
	ActorID        int64
}
