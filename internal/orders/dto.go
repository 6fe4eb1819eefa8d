package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderLineReq struct {
	VariationID int64           `json:"variation_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	WarehouseID int64           `json:"warehouse_id" validate:"gte=0"`
}

type CreatePaymentReq struct {
	Amount           decimal.Decimal `json:"amount"`
	MethodID         *int64          `json:"method_id,omitempty"`
	ConfirmationCode *string         `json:"confirmation_code,omitempty"`
}

type CreateOrderRequest struct {
	CustomerDocType   string               `json:"customer_doc_type" validate:"required,max=10"`
	CustomerDocNumber string               `json:"customer_doc_number" validate:"required,max=20"`
	CustomerName      string               `json:"customer_name" validate:"required,max=120"`
	CustomerLastName  string               `json:"customer_last_name" validate:"max=120"`
	CustomerContact   *string              `json:"customer_contact,omitempty"`
	SaleTypeID        int64                `json:"sale_type_id" validate:"required,gt=0"`
	ShippingTypeID    *int64               `json:"shipping_type_id,omitempty"`
	Address           *string              `json:"address,omitempty"`
	District          *string              `json:"district,omitempty"`
	Reference         *string              `json:"reference,omitempty"`
	Currency          string               `json:"currency" validate:"required,len=3"`
	Shipping          decimal.Decimal      `json:"shipping"`
	Reservation       bool                 `json:"reservation"`
	Lines             []CreateOrderLineReq `json:"products" validate:"required,min=1,dive"`
	Payments          []CreatePaymentReq   `json:"payments" validate:"dive"`
}

type UpdateOrderRequest struct {
	CustomerContact *string              `json:"customer_contact,omitempty"`
	Address         *string              `json:"address,omitempty"`
	District        *string              `json:"district,omitempty"`
	Reference       *string              `json:"reference,omitempty"`
	Shipping        *decimal.Decimal     `json:"shipping,omitempty"`
	Lines           *[]CreateOrderLineReq `json:"products,omitempty" validate:"omitempty,min=1,dive"`
	Payment         *CreatePaymentReq    `json:"payment,omitempty"`
}

type TransitionRequest struct {
	SituationID int64 `json:"situation_id" validate:"required,gt=0"`
}

type ListOrdersRequest struct {
	CustomerDocNumber *string    `json:"customer_doc_number,omitempty"`
	BranchID          *int64     `json:"branch_id,omitempty"`
	StatusCode        *string    `json:"status_code,omitempty"`
	DateFrom          *time.Time `json:"date_from,omitempty"`
	DateTo            *time.Time `json:"date_to,omitempty"`
	Limit             int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset            int        `json:"offset" validate:"gte=0"`
}

// SweepResult reports one sweeper run. Per-item failures are accumulated,
// never raised.
type SweepResult struct {
	CancelledCount int      `json:"cancelled_count"`
	Errors         []string `json:"errors"`
}
