package orders

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/finance"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// memState is the whole world the fake repository operates on. WithTx
// stages a deep copy and publishes it only on success, mirroring the
// all-or-nothing behavior of the real transaction.
type memState struct {
	orders      map[int64]Order
	lines       map[int64][]Line
	payments    map[int64][]Payment
	situations  []SituationRow
	profiles    map[int64]Profile
	levels      map[stock.Key]stock.Level
	movements   map[int64]stock.Movement
	finMovs     map[int64]finance.Movement
	methodAccts map[int64]int64
	nextID      int64
}

func newMemState() *memState {
	return &memState{
		orders:      make(map[int64]Order),
		lines:       make(map[int64][]Line),
		payments:    make(map[int64][]Payment),
		profiles:    make(map[int64]Profile),
		levels:      make(map[stock.Key]stock.Level),
		movements:   make(map[int64]stock.Movement),
		finMovs:     make(map[int64]finance.Movement),
		methodAccts: make(map[int64]int64),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]Line(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = append([]Payment(nil), v...)
	}
	c.situations = append([]SituationRow(nil), s.situations...)
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.levels {
		c.levels[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.finMovs {
		c.finMovs[k] = v
	}
	for k, v := range s.methodAccts {
		c.methodAccts[k] = v
	}
	c.nextID = s.nextID
	return c
}

type memoryRepo struct {
	state *memState
	// failOn makes a named tx operation fail, for rollback tests.
	failOn string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemState()}
}

type memoryTx struct {
	repo  *memoryRepo
	state *memState
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	if o, ok := r.state.orders[id]; ok {
		return o, nil
	}
	return Order{}, shared.ErrNotFound
}

func (r *memoryRepo) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	if p, ok := r.state.profiles[userID]; ok {
		return p, nil
	}
	return Profile{}, shared.ErrNotFound
}

func (r *memoryRepo) AggregateLines(ctx context.Context, orderID, defaultStockTypeID int64) ([]AggregateLine, error) {
	var out []AggregateLine
	for _, l := range r.state.lines[orderID] {
		level := r.state.levels[stock.Key{VariationID: l.VariationID, WarehouseID: l.WarehouseID, StockTypeID: defaultStockTypeID}]
		out = append(out, AggregateLine{Line: l, OnHand: level.Quantity})
	}
	return out, nil
}

func (r *memoryRepo) PaymentsByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return append([]Payment(nil), r.state.payments[orderID]...), nil
}

func (r *memoryRepo) CurrentSituation(ctx context.Context, orderID int64) (SituationRow, error) {
	for _, row := range r.state.situations {
		if row.OrderID == orderID && row.LastRow {
			return row, nil
		}
	}
	return SituationRow{}, ErrNoCurrentSituation
}

func (r *memoryRepo) ExpiredReservations(ctx context.Context, statusID int64, cutoff time.Time) ([]int64, error) {
	var ids []int64
	for _, row := range r.state.situations {
		if row.LastRow && row.StatusID == statusID && row.CreatedAt.Before(cutoff) {
			ids = append(ids, row.OrderID)
		}
	}
	return ids, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range r.state.orders {
		if req.CustomerDocNumber != nil && o.CustomerDocNumber != *req.CustomerDocNumber {
			continue
		}
		if req.BranchID != nil && o.BranchID != *req.BranchID {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

var errInjected = errors.New("injected failure")

func (tx *memoryTx) InsertOrder(ctx context.Context, o Order) (int64, error) {
	if tx.repo.failOn == "InsertOrder" {
		return 0, errInjected
	}
	tx.state.nextID++
	o.ID = tx.state.nextID
	o.CreatedAt = time.Now()
	tx.state.orders[o.ID] = o
	return o.ID, nil
}

func (tx *memoryTx) GetOrder(ctx context.Context, id int64) (Order, error) {
	if o, ok := tx.state.orders[id]; ok {
		return o, nil
	}
	return Order{}, shared.ErrNotFound
}

func (tx *memoryTx) UpdateOrderFields(ctx context.Context, id int64, updates map[string]any) error {
	o, ok := tx.state.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	for col, v := range updates {
		switch col {
		case "customer_contact":
			s := v.(string)
			o.CustomerContact = &s
		case "address":
			s := v.(string)
			o.Address = &s
		case "district":
			s := v.(string)
			o.District = &s
		case "reference":
			s := v.(string)
			o.Reference = &s
		case "subtotal":
			o.Subtotal = v.(decimal.Decimal)
		case "discount":
			o.Discount = v.(decimal.Decimal)
		case "shipping":
			o.Shipping = v.(decimal.Decimal)
		case "total":
			o.Total = v.(decimal.Decimal)
		}
	}
	tx.state.orders[id] = o
	return nil
}

func (tx *memoryTx) Lines(ctx context.Context, orderID int64) ([]Line, error) {
	return append([]Line(nil), tx.state.lines[orderID]...), nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, line Line) (int64, error) {
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.lines[line.OrderID] = append(tx.state.lines[line.OrderID], line)
	return line.ID, nil
}

func (tx *memoryTx) DeleteLines(ctx context.Context, orderID int64) error {
	delete(tx.state.lines, orderID)
	return nil
}

func (tx *memoryTx) SetLinesReservation(ctx context.Context, orderID int64, reserved bool) error {
	lines := tx.state.lines[orderID]
	for i := range lines {
		lines[i].Reservation = reserved
	}
	tx.state.lines[orderID] = lines
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	if tx.repo.failOn == "InsertPayment" {
		return 0, errInjected
	}
	tx.state.nextID++
	p.ID = tx.state.nextID
	p.CreatedAt = time.Now()
	tx.state.payments[p.OrderID] = append(tx.state.payments[p.OrderID], p)
	return p.ID, nil
}

func (tx *memoryTx) UpsertPayment(ctx context.Context, p Payment) (int64, error) {
	existing := tx.state.payments[p.OrderID]
	if len(existing) == 0 {
		return tx.InsertPayment(ctx, p)
	}
	existing[0].Amount = p.Amount
	existing[0].MethodID = p.MethodID
	existing[0].ConfirmationCode = p.ConfirmationCode
	tx.state.payments[p.OrderID] = existing
	return existing[0].ID, nil
}

func (tx *memoryTx) SetPaymentsFinanceMovement(ctx context.Context, orderID, movementID int64) error {
	payments := tx.state.payments[orderID]
	for i := range payments {
		if payments[i].FinanceMovementID == nil {
			id := movementID
			payments[i].FinanceMovementID = &id
		}
	}
	tx.state.payments[orderID] = payments
	return nil
}

func (tx *memoryTx) Payments(ctx context.Context, orderID int64) ([]Payment, error) {
	return append([]Payment(nil), tx.state.payments[orderID]...), nil
}

func (tx *memoryTx) CurrentSituationForUpdate(ctx context.Context, orderID int64) (SituationRow, error) {
	for _, row := range tx.state.situations {
		if row.OrderID == orderID && row.LastRow {
			return row, nil
		}
	}
	return SituationRow{}, ErrNoCurrentSituation
}

func (tx *memoryTx) CloseSituation(ctx context.Context, rowID int64) error {
	for i := range tx.state.situations {
		if tx.state.situations[i].ID == rowID {
			tx.state.situations[i].LastRow = false
		}
	}
	return nil
}

func (tx *memoryTx) InsertSituation(ctx context.Context, row SituationRow) (int64, error) {
	if tx.repo.failOn == "InsertSituation" {
		return 0, errInjected
	}
	tx.state.nextID++
	row.ID = tx.state.nextID
	row.LastRow = true
	row.CreatedAt = time.Now()
	tx.state.situations = append(tx.state.situations, row)
	return row.ID, nil
}

func (tx *memoryTx) Stock() stock.TxRepository     { return &memoryStockTx{state: tx.state} }
func (tx *memoryTx) Finance() finance.TxRepository { return &memoryFinanceTx{state: tx.state} }

type memoryStockTx struct {
	state *memState
}

func (tx *memoryStockTx) GetLevelForUpdate(ctx context.Context, key stock.Key) (stock.Level, error) {
	if level, ok := tx.state.levels[key]; ok {
		return level, nil
	}
	return stock.Level{VariationID: key.VariationID, WarehouseID: key.WarehouseID, StockTypeID: key.StockTypeID}, stock.ErrLevelNotFound
}

func (tx *memoryStockTx) UpsertLevel(ctx context.Context, level stock.Level) error {
	tx.state.levels[stock.Key{VariationID: level.VariationID, WarehouseID: level.WarehouseID, StockTypeID: level.StockTypeID}] = level
	return nil
}

func (tx *memoryStockTx) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	tx.state.nextID++
	m.ID = tx.state.nextID
	tx.state.movements[m.ID] = m
	return m.ID, nil
}

func (tx *memoryStockTx) LinkMovements(ctx context.Context, outID, inID int64) error {
	out := tx.state.movements[outID]
	in := tx.state.movements[inID]
	out.LinkedMovementID = &inID
	in.LinkedMovementID = &outID
	tx.state.movements[outID] = out
	tx.state.movements[inID] = in
	return nil
}

func (tx *memoryStockTx) SetMovementActive(ctx context.Context, ids []int64, active bool) error {
	for _, id := range ids {
		m := tx.state.movements[id]
		m.IsActive = active
		tx.state.movements[id] = m
	}
	return nil
}

func (tx *memoryStockTx) SetMovementCompleted(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		m := tx.state.movements[id]
		m.Completed = true
		tx.state.movements[id] = m
	}
	return nil
}

func (tx *memoryStockTx) GetMovement(ctx context.Context, id int64) (stock.Movement, error) {
	if m, ok := tx.state.movements[id]; ok {
		return m, nil
	}
	return stock.Movement{}, stock.ErrLevelNotFound
}

func (tx *memoryStockTx) ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error) {
	var qty int64
	for _, lines := range tx.state.lines {
		for _, l := range lines {
			if l.Reservation && l.VariationID == variationID && l.WarehouseID == warehouseID {
				qty += l.Quantity
			}
		}
	}
	return qty, nil
}

type memoryFinanceTx struct {
	state *memState
}

func (tx *memoryFinanceTx) InsertMovement(ctx context.Context, m finance.Movement) (int64, error) {
	tx.state.nextID++
	m.ID = tx.state.nextID
	tx.state.finMovs[m.ID] = m
	return m.ID, nil
}

func (tx *memoryFinanceTx) AccountForPaymentMethod(ctx context.Context, paymentMethodID int64) (int64, error) {
	if acct, ok := tx.state.methodAccts[paymentMethodID]; ok {
		return acct, nil
	}
	return 0, finance.ErrNoAccount
}

// testCatalog builds the reference data every test resolves against.
func testCatalog() *catalog.Catalog {
	statuses := []catalog.Status{
		{ID: 1, Code: catalog.CodeReserved, Name: "Reservado"},
		{ID: 2, Code: catalog.CodeConfirmed, Name: "Confirmado"},
		{ID: 3, Code: catalog.CodeCancelled, Name: "Anulado"},
		{ID: 4, Code: catalog.CodePending, Name: "Pendiente"},
		{ID: 5, Code: catalog.CodeClosed, Name: "Cerrado"},
		{ID: 6, Code: catalog.CodeApproved, Name: "Aprobado"},
		{ID: 7, Code: catalog.CodeDispatch, Name: "Enviado"},
		{ID: 8, Code: catalog.CodeReceived, Name: "Recibido"},
	}
	situations := []catalog.Situation{
		{ID: 10, Module: catalog.ModuleOrders, Name: "Reservado", StatusID: 1},
		{ID: 11, Module: catalog.ModuleOrders, Name: "Confirmado", StatusID: 2},
		{ID: 12, Module: catalog.ModuleOrders, Name: "Anulado", StatusID: 3},
		{ID: 13, Module: catalog.ModuleOrders, Name: "Pendiente de pago", StatusID: 4},
		{ID: 14, Module: catalog.ModuleOrders, Name: "Cerrado", StatusID: 5},
		{ID: 20, Module: catalog.ModuleTransfers, Name: "Pendiente", StatusID: 4},
		{ID: 21, Module: catalog.ModuleTransfers, Name: "Aprobado", StatusID: 6},
		{ID: 22, Module: catalog.ModuleTransfers, Name: "Anulado", StatusID: 3},
		{ID: 23, Module: catalog.ModuleTransfers, Name: "Enviado", StatusID: 7},
		{ID: 24, Module: catalog.ModuleTransfers, Name: "Recibido", StatusID: 8},
	}
	cat, err := catalog.New(statuses, situations)
	if err != nil {
		panic(err)
	}
	return cat
}
