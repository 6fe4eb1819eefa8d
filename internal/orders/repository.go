package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimia-erp/vendimia-erp/internal/finance"
	"github.com/vendimia-erp/vendimia-erp/internal/platform/db"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// ErrNoCurrentSituation indicates an order without a live history row.
// Transitions treat this as "no previous state" and skip the flip step.
var ErrNoCurrentSituation = errors.New("orders: no current situation row")

// TxRepository exposes the transactional operations used by the service.
// Stock and finance writes compose into the same unit of work so a
// mid-sequence failure rolls back the whole order.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrderFields(ctx context.Context, id int64, updates map[string]any) error
	Lines(ctx context.Context, orderID int64) ([]Line, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLines(ctx context.Context, orderID int64) error
	SetLinesReservation(ctx context.Context, orderID int64, reserved bool) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpsertPayment(ctx context.Context, p Payment) (int64, error)
	Payments(ctx context.Context, orderID int64) ([]Payment, error)
	SetPaymentsFinanceMovement(ctx context.Context, orderID, movementID int64) error
	CurrentSituationForUpdate(ctx context.Context, orderID int64) (SituationRow, error)
	CloseSituation(ctx context.Context, rowID int64) error
	InsertSituation(ctx context.Context, row SituationRow) (int64, error)
	Stock() stock.TxRepository
	Finance() finance.TxRepository
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx      pgx.Tx
	stock   stock.TxRepository
	finance finance.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		wrapper := &txRepository{
			tx:      tx,
			stock:   stock.NewTxRepository(tx),
			finance: finance.NewTxRepository(tx),
		}
		return fn(ctx, wrapper)
	})
}

const orderColumns = `id, customer_doc_type, customer_doc_number, customer_name, customer_last_name, customer_contact,
sale_type_id, shipping_type_id, address, district, reference, currency,
subtotal, discount, shipping, total, created_by, branch_id, warehouse_id, created_at`

// Get reads one order.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// GetProfile resolves the requesting user's branch/warehouse context.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `SELECT user_id, branch_id, warehouse_id FROM profiles WHERE user_id=$1`, userID).
		Scan(&p.UserID, &p.BranchID, &p.WarehouseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// AggregateLines lists lines enriched with display names and current
// on-hand stock for the line's warehouse and the default stock type.
func (r *Repository) AggregateLines(ctx context.Context, orderID, defaultStockTypeID int64) ([]AggregateLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT op.id, op.order_id, op.variation_id, op.quantity, op.unit_price, op.discount,
op.warehouse_id, op.reservation, op.movement_id,
COALESCE(p.name, ''), COALESCE(v.name, ''), COALESCE(ps.quantity, 0)
FROM order_products op
LEFT JOIN variations v ON v.id = op.variation_id
LEFT JOIN products p ON p.id = v.product_id
LEFT JOIN product_stock ps ON ps.variation_id = op.variation_id AND ps.warehouse_id = op.warehouse_id AND ps.stock_type_id = $2
WHERE op.order_id=$1
ORDER BY op.id`, orderID, defaultStockTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []AggregateLine
	for rows.Next() {
		var l AggregateLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.VariationID, &l.Quantity, &l.UnitPrice, &l.Discount,
			&l.WarehouseID, &l.Reservation, &l.MovementID,
			&l.ProductName, &l.VariationName, &l.OnHand); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// PaymentsByOrder lists payments outside a transaction.
func (r *Repository) PaymentsByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, amount, method_id, confirmation_code, finance_movement_id, created_at
FROM order_payment WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

// CurrentSituation reads the live history row without locking.
func (r *Repository) CurrentSituation(ctx context.Context, orderID int64) (SituationRow, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, order_id, situation_id, status_id, last_row, created_at
FROM order_situations WHERE order_id=$1 AND last_row=TRUE`, orderID)
	s, err := scanSituation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SituationRow{}, ErrNoCurrentSituation
		}
		return SituationRow{}, err
	}
	return s, nil
}

// ExpiredReservations finds orders stuck in the given status past the
// cutoff, oldest first.
func (r *Repository) ExpiredReservations(ctx context.Context, statusID int64, cutoff time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id FROM order_situations
WHERE last_row=TRUE AND status_id=$1 AND created_at < $2
ORDER BY created_at`, statusID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List pages orders with optional filters.
func (r *Repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	conditions := []string{"1=1"}
	var args []any
	argPos := 1
	if req.CustomerDocNumber != nil {
		conditions = append(conditions, fmt.Sprintf("o.customer_doc_number = $%d", argPos))
		args = append(args, *req.CustomerDocNumber)
		argPos++
	}
	if req.BranchID != nil {
		conditions = append(conditions, fmt.Sprintf("o.branch_id = $%d", argPos))
		args = append(args, *req.BranchID)
		argPos++
	}
	if req.StatusCode != nil {
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM order_situations os
JOIN statuses st ON st.id = os.status_id
WHERE os.order_id = o.id AND os.last_row = TRUE AND st.code = $%d)`, argPos))
		args = append(args, *req.StatusCode)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}
	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM orders o %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM orders o %s ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d`,
		qualify(orderColumns, "o"), whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, o)
	}
	return result, total, rows.Err()
}

func (r *txRepository) Stock() stock.TxRepository     { return r.stock }
func (r *txRepository) Finance() finance.TxRepository { return r.finance }

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders
(customer_doc_type, customer_doc_number, customer_name, customer_last_name, customer_contact,
sale_type_id, shipping_type_id, address, district, reference, currency,
subtotal, discount, shipping, total, created_by, branch_id, warehouse_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW()) RETURNING id`,
		o.CustomerDocType, o.CustomerDocNumber, o.CustomerName, o.CustomerLastName, o.CustomerContact,
		o.SaleTypeID, o.ShippingTypeID, o.Address, o.District, o.Reference, o.Currency,
		o.Subtotal, o.Discount, o.Shipping, o.Total, o.CreatedBy, o.BranchID, o.WarehouseID).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func (r *txRepository) UpdateOrderFields(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	query := "UPDATE orders SET id = id"
	var args []any
	argPos := 1
	for _, col := range []string{"customer_contact", "address", "district", "reference", "subtotal", "discount", "shipping", "total"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)
	_, err := r.tx.Exec(ctx, query, args...)
	return err
}

func (r *txRepository) Lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, variation_id, quantity, unit_price, discount, warehouse_id, reservation, movement_id
FROM order_products WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.VariationID, &l.Quantity, &l.UnitPrice, &l.Discount,
			&l.WarehouseID, &l.Reservation, &l.MovementID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_products
(order_id, variation_id, quantity, unit_price, discount, warehouse_id, reservation, movement_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		line.OrderID, line.VariationID, line.Quantity, line.UnitPrice, line.Discount,
		line.WarehouseID, line.Reservation, line.MovementID).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM order_products WHERE order_id=$1`, orderID)
	return err
}

func (r *txRepository) SetLinesReservation(ctx context.Context, orderID int64, reserved bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_products SET reservation=$1 WHERE order_id=$2`, reserved, orderID)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_payment (order_id, amount, method_id, confirmation_code, finance_movement_id, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		p.OrderID, p.Amount, p.MethodID, p.ConfirmationCode, p.FinanceMovementID).Scan(&id)
	return id, err
}

func (r *txRepository) UpsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM order_payment WHERE order_id=$1 ORDER BY id LIMIT 1`, p.OrderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.InsertPayment(ctx, p)
	}
	if err != nil {
		return 0, err
	}
	_, err = r.tx.Exec(ctx, `UPDATE order_payment SET amount=$1, method_id=$2, confirmation_code=$3 WHERE id=$4`,
		p.Amount, p.MethodID, p.ConfirmationCode, id)
	return id, err
}

func (r *txRepository) SetPaymentsFinanceMovement(ctx context.Context, orderID, movementID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_payment SET finance_movement_id=$1 WHERE order_id=$2 AND finance_movement_id IS NULL`, movementID, orderID)
	return err
}

func (r *txRepository) Payments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, amount, method_id, confirmation_code, finance_movement_id, created_at
FROM order_payment WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *txRepository) CurrentSituationForUpdate(ctx context.Context, orderID int64) (SituationRow, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, order_id, situation_id, status_id, last_row, created_at
FROM order_situations WHERE order_id=$1 AND last_row=TRUE FOR UPDATE`, orderID)
	s, err := scanSituation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SituationRow{}, ErrNoCurrentSituation
		}
		return SituationRow{}, err
	}
	return s, nil
}

func (r *txRepository) CloseSituation(ctx context.Context, rowID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_situations SET last_row=FALSE WHERE id=$1`, rowID)
	return err
}

func (r *txRepository) InsertSituation(ctx context.Context, row SituationRow) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_situations (order_id, situation_id, status_id, last_row, created_at)
VALUES ($1,$2,$3,TRUE,NOW()) RETURNING id`,
		row.OrderID, row.SituationID, row.StatusID).Scan(&id)
	if err != nil {
		return 0, mapSituationConflict(err)
	}
	return id, nil
}

// mapSituationConflict turns a violation of uq_order_situations_last_row,
// the partial unique index enforcing the single-current invariant, into a
// conflict the caller can treat as a lost race.
func mapSituationConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_order_situations_last_row" {
		return shared.ErrConflict
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerDocType, &o.CustomerDocNumber, &o.CustomerName, &o.CustomerLastName, &o.CustomerContact,
		&o.SaleTypeID, &o.ShippingTypeID, &o.Address, &o.District, &o.Reference, &o.Currency,
		&o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &o.CreatedBy, &o.BranchID, &o.WarehouseID, &o.CreatedAt)
	return o, err
}

func scanSituation(row rowScanner) (SituationRow, error) {
	var s SituationRow
	err := row.Scan(&s.ID, &s.OrderID, &s.SituationID, &s.StatusID, &s.LastRow, &s.CreatedAt)
	return s, err
}

func scanPayments(rows pgx.Rows) ([]Payment, error) {
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.MethodID, &p.ConfirmationCode, &p.FinanceMovementID, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
