package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt type codes follow the SUNAT catalog: 01 factura, 03 boleta,
// 07 credit note, 08 debit note.
const (
	TypeFactura    = "01"
	TypeBoleta     = "03"
	TypeCreditNote = "07"
	TypeDebitNote  = "08"
)

// IsPrimaryType reports whether the code is a primary receipt.
func IsPrimaryType(code string) bool {
	return code == TypeFactura || code == TypeBoleta
}

// IsNoteType reports whether the code is a credit or debit note.
func IsNoteType(code string) bool {
	return code == TypeCreditNote || code == TypeDebitNote
}

// Invoice is a fiscal receipt. Series and number stay null until the
// receipt is emitted to the tax authority; after emission they are
// immutable along with the declared flag.
type Invoice struct {
	ID              int64           `json:"id" db:"id"`
	TypeCode        string          `json:"type_code" db:"type_code"`
	Series          *string         `json:"series,omitempty" db:"series"`
	Number          *string         `json:"number,omitempty" db:"number"`
	Declared        bool            `json:"declared" db:"declared"`
	LinkedInvoiceID *int64          `json:"linked_invoice_id,omitempty" db:"linked_invoice_id"`
	Total           decimal.Decimal `json:"total" db:"total"`
	CreatedBy       int64           `json:"created_by" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

type CreateInvoiceRequest struct {
	OrderID  int64  `json:"order_id" validate:"required,gt=0"`
	TypeCode string `json:"type_code" validate:"required,oneof=01 03 07 08"`
}

type EmitRequest struct {
	Series string `json:"series" validate:"required,max=10"`
	Number string `json:"number" validate:"required,max=20"`
}

// EligibilityResponse is the validator verdict returned to callers.
type EligibilityResponse struct {
	Valid           bool   `json:"valid"`
	Reason          string `json:"reason,omitempty"`
	LinkedInvoiceID *int64 `json:"linked_invoice_id,omitempty"`
	LinkedTypeCode  string `json:"linked_type_code,omitempty"`
}
