package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
)

// TxRepository exposes the transactional operations the ledger and the
// movement recorder run against.
type TxRepository interface {
	GetLevelForUpdate(ctx context.Context, key Key) (Level, error)
	UpsertLevel(ctx context.Context, level Level) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	LinkMovements(ctx context.Context, outID, inID int64) error
	SetMovementActive(ctx context.Context, ids []int64, active bool) error
	SetMovementCompleted(ctx context.Context, ids []int64) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error)
}

// Repository persists stock data in PostgreSQL.
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

// NewTxRepository wraps an open transaction so other modules can compose
// ledger and movement writes into their own atomic units of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Level reads one stock counter without locking.
func (r *Repository) Level(ctx context.Context, key Key) (Level, error) {
	var level Level
	err := r.pool.QueryRow(ctx, `SELECT variation_id, warehouse_id, stock_type_id, quantity, updated_at
FROM product_stock WHERE variation_id=$1 AND warehouse_id=$2 AND stock_type_id=$3`,
		key.VariationID, key.WarehouseID, key.StockTypeID).
		Scan(&level.VariationID, &level.WarehouseID, &level.StockTypeID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{VariationID: key.VariationID, WarehouseID: key.WarehouseID, StockTypeID: key.StockTypeID}, ErrLevelNotFound
		}
		return Level{}, err
	}
	return level, nil
}

// ReservedQuantity sums order line quantities held by live reservations
// for one variation and warehouse. Reserved lines never touched the
// ledger, so available stock is the counter minus this figure.
func (r *Repository) ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)
FROM order_products WHERE variation_id=$1 AND warehouse_id=$2 AND reservation = TRUE`,
		variationID, warehouseID).Scan(&qty)
	return qty, err
}

// MovementsByRequest lists movements spawned by a transfer request.
func (r *Repository) MovementsByRequest(ctx context.Context, requestID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, variation_id, quantity, warehouse_id, movement_type_id, stock_type_id,
completed, is_active, linked_movement_id, order_id, request_id, created_by, created_at
FROM stock_movements WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, key Key) (Level, error) {
	var level Level
	err := r.tx.QueryRow(ctx, `SELECT variation_id, warehouse_id, stock_type_id, quantity, updated_at
FROM product_stock WHERE variation_id=$1 AND warehouse_id=$2 AND stock_type_id=$3 FOR UPDATE`,
		key.VariationID, key.WarehouseID, key.StockTypeID).
		Scan(&level.VariationID, &level.WarehouseID, &level.StockTypeID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{VariationID: key.VariationID, WarehouseID: key.WarehouseID, StockTypeID: key.StockTypeID}, ErrLevelNotFound
		}
		return Level{}, err
	}
	return level, nil
}

func (r *txRepository) UpsertLevel(ctx context.Context, level Level) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_stock (variation_id, warehouse_id, stock_type_id, quantity, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (variation_id, warehouse_id, stock_type_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		level.VariationID, level.WarehouseID, level.StockTypeID, level.Quantity)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(code, variation_id, quantity, warehouse_id, movement_type_id, stock_type_id, completed, is_active, order_id, request_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`,
		m.Code, m.VariationID, m.Quantity, m.WarehouseID, m.MovementTypeID, m.StockTypeID,
		m.Completed, m.IsActive, m.OrderID, m.RequestID, m.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) LinkMovements(ctx context.Context, outID, inID int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE stock_movements SET linked_movement_id=$1 WHERE id=$2`, inID, outID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET linked_movement_id=$1 WHERE id=$2`, outID, inID)
	return err
}

func (r *txRepository) SetMovementActive(ctx context.Context, ids []int64, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET is_active=$1 WHERE id = ANY($2)`, active, ids)
	return err
}

func (r *txRepository) SetMovementCompleted(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET completed=TRUE WHERE id = ANY($1)`, ids)
	return err
}

func (r *txRepository) ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)
FROM order_products WHERE variation_id=$1 AND warehouse_id=$2 AND reservation = TRUE`,
		variationID, warehouseID).Scan(&qty)
	return qty, err
}

func (r *txRepository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, code, variation_id, quantity, warehouse_id, movement_type_id, stock_type_id,
completed, is_active, linked_movement_id, order_id, request_id, created_by, created_at
FROM stock_movements WHERE id=$1`, id)
	return scanMovement(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Code, &m.VariationID, &m.Quantity, &m.WarehouseID, &m.MovementTypeID, &m.StockTypeID,
		&m.Completed, &m.IsActive, &m.LinkedMovementID, &m.OrderID, &m.RequestID, &m.CreatedBy, &m.CreatedAt)
	return m, err
}
