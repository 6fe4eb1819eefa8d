package invoicing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// TxRepository exposes the transactional invoice operations.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	LinkToOrder(ctx context.Context, orderID, invoiceID int64) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	MarkEmitted(ctx context.Context, id int64, series, number string) error
	ReceiptsByOrder(ctx context.Context, orderID int64) ([]ExistingReceipt, error)
	OrderTotals(ctx context.Context, orderID int64) (total, paid decimal.Decimal, err error)
}

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("invoicing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get reads one invoice.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, type_code, series, number, declared, linked_invoice_id, total, created_by, created_at
FROM invoices WHERE id=$1`, id)
	return scanInvoice(row)
}

// ReceiptsByOrder lists the receipts already linked to an order.
func (r *Repository) ReceiptsByOrder(ctx context.Context, orderID int64) ([]ExistingReceipt, error) {
	return receiptsByOrder(ctx, r.pool, orderID)
}

// OrderTotals reads the order total and the payments made so far.
func (r *Repository) OrderTotals(ctx context.Context, orderID int64) (decimal.Decimal, decimal.Decimal, error) {
	return orderTotals(ctx, r.pool, orderID)
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (type_code, series, number, declared, linked_invoice_id, total, created_by, created_at)
VALUES ($1,NULL,NULL,FALSE,$2,$3,$4,NOW()) RETURNING id`,
		inv.TypeCode, inv.LinkedInvoiceID, inv.Total, inv.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) LinkToOrder(ctx context.Context, orderID, invoiceID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO order_invoices (order_id, invoice_id) VALUES ($1,$2)`, orderID, invoiceID)
	return err
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, type_code, series, number, declared, linked_invoice_id, total, created_by, created_at
FROM invoices WHERE id=$1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (r *txRepository) MarkEmitted(ctx context.Context, id int64, series, number string) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET series=$1, number=$2, declared=TRUE WHERE id=$3`, series, number, id)
	return err
}

func (r *txRepository) ReceiptsByOrder(ctx context.Context, orderID int64) ([]ExistingReceipt, error) {
	return receiptsByOrder(ctx, r.tx, orderID)
}

func (r *txRepository) OrderTotals(ctx context.Context, orderID int64) (decimal.Decimal, decimal.Decimal, error) {
	return orderTotals(ctx, r.tx, orderID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func receiptsByOrder(ctx context.Context, q querier, orderID int64) ([]ExistingReceipt, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.type_code, i.declared
FROM invoices i JOIN order_invoices oi ON oi.invoice_id = i.id
WHERE oi.order_id=$1 ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []ExistingReceipt
	for rows.Next() {
		var rec ExistingReceipt
		if err := rows.Scan(&rec.ID, &rec.TypeCode, &rec.Declared); err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

func orderTotals(ctx context.Context, q querier, orderID int64) (decimal.Decimal, decimal.Decimal, error) {
	var total, paid decimal.Decimal
	err := q.QueryRow(ctx, `SELECT o.total, COALESCE((SELECT SUM(p.amount) FROM order_payment p WHERE p.order_id = o.id), 0)
FROM orders o WHERE o.id=$1`, orderID).Scan(&total, &paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, shared.ErrNotFound
		}
		return decimal.Zero, decimal.Zero, err
	}
	return total, paid, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TypeCode, &inv.Series, &inv.Number, &inv.Declared, &inv.LinkedInvoiceID, &inv.Total, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}
