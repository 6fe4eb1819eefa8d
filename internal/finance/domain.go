package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind distinguishes money in from money out.
type MovementKind string

const (
	KindIncome  MovementKind = "income"
	KindExpense MovementKind = "expense"
)

// Movement is one financial ledger entry attributed to a business account.
type Movement struct {
	ID        int64           `json:"id" db:"id"`
	AccountID int64           `json:"account_id" db:"account_id"`
	Kind      MovementKind    `json:"kind" db:"kind"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Concept   string          `json:"concept" db:"concept"`
	OrderID   *int64          `json:"order_id,omitempty" db:"order_id"`
	CreatedBy int64           `json:"created_by" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
