package finance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes the transactional finance operations other modules
// compose into their own units of work.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	AccountForPaymentMethod(ctx context.Context, paymentMethodID int64) (int64, error)
}

// ErrNoAccount indicates a payment method without a business account.
var ErrNoAccount = errors.New("finance: no account for payment method")

// Repository persists finance movements in PostgreSQL.
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

// NewTxRepository wraps an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// MovementsByOrder lists ledger entries linked to one order.
func (r *Repository) MovementsByOrder(ctx context.Context, orderID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, kind, amount, concept, order_id, created_by, created_at
FROM finance_movements WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Kind, &m.Amount, &m.Concept, &m.OrderID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO finance_movements (account_id, kind, amount, concept, order_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		m.AccountID, string(m.Kind), m.Amount, m.Concept, m.OrderID, m.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) AccountForPaymentMethod(ctx context.Context, paymentMethodID int64) (int64, error) {
	// account_id is nullable: a method without a business account falls
	// back to the caller's default.
	var accountID int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(account_id, 0) FROM payment_methods WHERE id=$1`, paymentMethodID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoAccount
		}
		return 0, err
	}
	if accountID == 0 {
		return 0, ErrNoAccount
	}
	return accountID, nil
}
