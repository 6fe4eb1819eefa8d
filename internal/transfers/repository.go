package transfers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// ErrNoCurrentSituation indicates a request without a live history row.
var ErrNoCurrentSituation = errors.New("transfers: no current situation row")

// TxRepository exposes the transactional operations of the workflow.
type TxRepository interface {
	InsertRequest(ctx context.Context, req Request) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	Items(ctx context.Context, requestID int64) ([]Item, error)
	ApproveItems(ctx context.Context, requestID int64, itemIDs []int64) error
	CurrentSituationForUpdate(ctx context.Context, requestID int64) (SituationRow, error)
	CloseSituation(ctx context.Context, rowID int64) error
	InsertSituation(ctx context.Context, row SituationRow) (int64, error)
	Stock() stock.TxRepository
}

// Repository persists stock movement requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx    pgx.Tx
	stock stock.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: stock.NewTxRepository(tx)})
	})
}

// Get reads one request header.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, from_warehouse_id, to_warehouse_id, comment, created_by, created_at
FROM stock_movement_requests WHERE id=$1`, id)
	var req Request
	err := row.Scan(&req.ID, &req.Code, &req.FromWarehouseID, &req.ToWarehouseID, &req.Comment, &req.CreatedBy, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

// ItemsByRequest lists link rows outside a transaction.
func (r *Repository) ItemsByRequest(ctx context.Context, requestID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, variation_id, quantity, out_movement_id, in_movement_id, approved
FROM linked_stock_movement_requests WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// CurrentSituation reads the live history row without locking.
func (r *Repository) CurrentSituation(ctx context.Context, requestID int64) (SituationRow, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, request_id, situation_id, status_id, last_row, created_at
FROM stock_movement_request_situations WHERE request_id=$1 AND last_row=TRUE`, requestID)
	var s SituationRow
	err := row.Scan(&s.ID, &s.RequestID, &s.SituationID, &s.StatusID, &s.LastRow, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SituationRow{}, ErrNoCurrentSituation
		}
		return SituationRow{}, err
	}
	return s, nil
}

func (r *txRepository) Stock() stock.TxRepository { return r.stock }

func (r *txRepository) InsertRequest(ctx context.Context, req Request) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movement_requests (code, from_warehouse_id, to_warehouse_id, comment, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		req.Code, req.FromWarehouseID, req.ToWarehouseID, req.Comment, req.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO linked_stock_movement_requests (request_id, variation_id, quantity, out_movement_id, in_movement_id, approved)
VALUES ($1,$2,$3,$4,$5,FALSE) RETURNING id`,
		item.RequestID, item.VariationID, item.Quantity, item.OutMovementID, item.InMovementID).Scan(&id)
	return id, err
}

func (r *txRepository) Items(ctx context.Context, requestID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, request_id, variation_id, quantity, out_movement_id, in_movement_id, approved
FROM linked_stock_movement_requests WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *txRepository) ApproveItems(ctx context.Context, requestID int64, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		_, err := r.tx.Exec(ctx, `UPDATE linked_stock_movement_requests SET approved=TRUE WHERE request_id=$1`, requestID)
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE linked_stock_movement_requests SET approved=TRUE WHERE request_id=$1 AND id = ANY($2)`, requestID, itemIDs)
	return err
}

func (r *txRepository) CurrentSituationForUpdate(ctx context.Context, requestID int64) (SituationRow, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, request_id, situation_id, status_id, last_row, created_at
FROM stock_movement_request_situations WHERE request_id=$1 AND last_row=TRUE FOR UPDATE`, requestID)
	var s SituationRow
	err := row.Scan(&s.ID, &s.RequestID, &s.SituationID, &s.StatusID, &s.LastRow, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SituationRow{}, ErrNoCurrentSituation
		}
		return SituationRow{}, err
	}
	return s, nil
}

func (r *txRepository) CloseSituation(ctx context.Context, rowID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movement_request_situations SET last_row=FALSE WHERE id=$1`, rowID)
	return err
}

func (r *txRepository) InsertSituation(ctx context.Context, row SituationRow) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movement_request_situations (request_id, situation_id, status_id, last_row, created_at)
VALUES ($1,$2,$3,TRUE,NOW()) RETURNING id`,
		row.RequestID, row.SituationID, row.StatusID).Scan(&id)
	if err != nil {
		return 0, mapSituationConflict(err)
	}
	return id, nil
}

// mapSituationConflict mirrors the orders mapping for the request
// situation history's partial unique index.
func mapSituationConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_request_situations_last_row" {
		return shared.ErrConflict
	}
	return err
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.RequestID, &it.VariationID, &it.Quantity, &it.OutMovementID, &it.InMovementID, &it.Approved); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
