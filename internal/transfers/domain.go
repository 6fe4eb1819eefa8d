package transfers

import "time"

// Request is a warehouse-to-warehouse stock movement request. The goods
// move through an approval workflow: each line spawns a linked OUT/IN
// movement pair that stays provisional until approval, and the ledger only
// changes on dispatch and reception.
type Request struct {
	ID              int64     `json:"id" db:"id"`
	Code            string    `json:"code" db:"code"`
	FromWarehouseID int64     `json:"from_warehouse_id" db:"from_warehouse_id"`
	ToWarehouseID   int64     `json:"to_warehouse_id" db:"to_warehouse_id"`
	Comment         *string   `json:"comment,omitempty" db:"comment"`
	CreatedBy       int64     `json:"created_by" db:"created_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Item links one request line to its movement pair.
type Item struct {
	ID            int64 `json:"id" db:"id"`
	RequestID     int64 `json:"request_id" db:"request_id"`
	VariationID   int64 `json:"variation_id" db:"variation_id"`
	Quantity      int64 `json:"quantity" db:"quantity"`
	OutMovementID int64 `json:"out_movement_id" db:"out_movement_id"`
	InMovementID  int64 `json:"in_movement_id" db:"in_movement_id"`
	Approved      bool  `json:"approved" db:"approved"`
}

// SituationRow is one lifecycle transition of a request.
type SituationRow struct {
	ID          int64     `json:"id" db:"id"`
	RequestID   int64     `json:"request_id" db:"request_id"`
	SituationID int64     `json:"situation_id" db:"situation_id"`
	StatusID    int64     `json:"status_id" db:"status_id"`
	LastRow     bool      `json:"last_row" db:"last_row"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Detail is the request read model.
type Detail struct {
	Request       Request      `json:"request"`
	Items         []Item       `json:"items"`
	Situation     SituationRow `json:"situation"`
	SituationName string       `json:"situation_name"`
	StatusCode    string       `json:"status_code"`
}

type CreateItemReq struct {
	VariationID int64 `json:"variation_id" validate:"required,gt=0"`
	Quantity    int64 `json:"quantity" validate:"required,gt=0"`
}

type CreateRequest struct {
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required,gt=0"`
	Comment         *string         `json:"comment,omitempty"`
	Items           []CreateItemReq `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusRequest moves a request to a new situation. ItemIDs narrows
// an approval to a subset of lines; empty means all of them.
type UpdateStatusRequest struct {
	SituationID int64   `json:"situation_id" validate:"required,gt=0"`
	ItemIDs     []int64 `json:"item_ids,omitempty"`
}
