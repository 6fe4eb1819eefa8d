package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
)

// Order is one sale transaction. Monetary fields are computed server-side
// and never taken from the caller. Orders are never physically deleted.
type Order struct {
	ID                int64           `json:"id" db:"id"`
	CustomerDocType   string          `json:"customer_doc_type" db:"customer_doc_type"`
	CustomerDocNumber string          `json:"customer_doc_number" db:"customer_doc_number"`
	CustomerName      string          `json:"customer_name" db:"customer_name"`
	CustomerLastName  string          `json:"customer_last_name" db:"customer_last_name"`
	CustomerContact   *string         `json:"customer_contact,omitempty" db:"customer_contact"`
	SaleTypeID        int64           `json:"sale_type_id" db:"sale_type_id"`
	ShippingTypeID    *int64          `json:"shipping_type_id,omitempty" db:"shipping_type_id"`
	Address           *string         `json:"address,omitempty" db:"address"`
	District          *string         `json:"district,omitempty" db:"district"`
	Reference         *string         `json:"reference,omitempty" db:"reference"`
	Currency          string          `json:"currency" db:"currency"`
	Subtotal          decimal.Decimal `json:"subtotal" db:"subtotal"`
	Discount          decimal.Decimal `json:"discount" db:"discount"`
	Shipping          decimal.Decimal `json:"shipping" db:"shipping"`
	Total             decimal.Decimal `json:"total" db:"total"`
	CreatedBy         int64           `json:"created_by" db:"created_by"`
	BranchID          int64           `json:"branch_id" db:"branch_id"`
	WarehouseID       int64           `json:"warehouse_id" db:"warehouse_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Line is one product-variation quantity within an order. Price and
// discount are a snapshot captured at order time, immutable thereafter.
type Line struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	VariationID int64           `json:"variation_id" db:"variation_id"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	Discount    decimal.Decimal `json:"discount" db:"discount"`
	WarehouseID int64           `json:"warehouse_id" db:"warehouse_id"`
	Reservation bool            `json:"reservation" db:"reservation"`
	MovementID  *int64          `json:"movement_id,omitempty" db:"movement_id"`
}

// Total is the line's contribution to the order subtotal minus discount.
func (l Line) Total() decimal.Decimal {
	qty := decimal.NewFromInt(l.Quantity)
	return l.UnitPrice.Mul(qty).Sub(l.Discount)
}

// Payment is one amount received against an order. An order is fully paid
// when payment amounts sum to the order total to the cent.
type Payment struct {
	ID                int64           `json:"id" db:"id"`
	OrderID           int64           `json:"order_id" db:"order_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	MethodID          *int64          `json:"method_id,omitempty" db:"method_id"`
	ConfirmationCode  *string         `json:"confirmation_code,omitempty" db:"confirmation_code"`
	FinanceMovementID *int64          `json:"finance_movement_id,omitempty" db:"finance_movement_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// SituationRow is one lifecycle transition in the append-only history.
// Exactly one row per order carries last_row=true at any time.
type SituationRow struct {
	ID          int64     `json:"id" db:"id"`
	OrderID     int64     `json:"order_id" db:"order_id"`
	SituationID int64     `json:"situation_id" db:"situation_id"`
	StatusID    int64     `json:"status_id" db:"status_id"`
	LastRow     bool      `json:"last_row" db:"last_row"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AggregateLine enriches a line with display names and current on-hand
// stock (current, not historical).
type AggregateLine struct {
	Line
	ProductName   string `json:"product_name" db:"product_name"`
	VariationName string `json:"variation_name" db:"variation_name"`
	OnHand        int64  `json:"on_hand" db:"on_hand"`
}

// Aggregate is the consistent read model of an order with its lines,
// payments and current situation.
type Aggregate struct {
	Order         Order              `json:"order"`
	Lines         []AggregateLine    `json:"lines"`
	Payments      []Payment          `json:"payments"`
	Situation     SituationRow       `json:"situation"`
	SituationName string             `json:"situation_name"`
	StatusCode    catalog.StatusCode `json:"status_code"`
	PaidToDate    decimal.Decimal    `json:"paid_to_date"`
}

// Profile carries the branch/warehouse context of the requesting user.
type Profile struct {
	UserID      int64 `db:"user_id"`
	BranchID    int64 `db:"branch_id"`
	WarehouseID int64 `db:"warehouse_id"`
}
