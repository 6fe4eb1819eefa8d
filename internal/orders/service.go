package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/finance"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	AggregateLines(ctx context.Context, orderID, defaultStockTypeID int64) ([]AggregateLine, error)
	PaymentsByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	CurrentSituation(ctx context.Context, orderID int64) (SituationRow, error)
	ExpiredReservations(ctx context.Context, statusID int64, cutoff time.Time) ([]int64, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
}

// AuditPort records who did what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups runtime settings for the order service.
type ServiceConfig struct {
	DefaultStockTypeID int64
	DefaultAccountID   int64
	ReservationTTL     time.Duration
}

// Service implements the order lifecycle: creation with reservation or
// direct sale, editing, aggregate reads, transitions and the expiry sweep.
type Service struct {
	repo    RepositoryPort
	catalog *catalog.Catalog
	audit   AuditPort
	cache   *Cache
	logger  *slog.Logger
	cfg     ServiceConfig
}

// NewService wires the order service.
func NewService(repo RepositoryPort, cat *catalog.Catalog, audit AuditPort, cache *Cache, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultStockTypeID == 0 {
		cfg.DefaultStockTypeID = 1
	}
	if cfg.DefaultAccountID == 0 {
		cfg.DefaultAccountID = 1
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 3 * time.Hour
	}
	return &Service{repo: repo, catalog: cat, audit: audit, cache: cache, logger: logger, cfg: cfg}
}

// Create registers an order. With the reservation flag set each line holds
// availability through a provisional movement and the order starts
// reserved; otherwise stock is deducted immediately and the order starts
// confirmed when fully paid, pending otherwise. All writes succeed or none
// do.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (Aggregate, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Aggregate{}, shared.ErrUnauthorized
	}
	if _, err := currency.ParseISO(req.Currency); err != nil {
		return Aggregate{}, shared.NewValidation(fmt.Sprintf("unknown currency %q", req.Currency))
	}
	if req.Shipping.IsNegative() {
		return Aggregate{}, shared.NewValidation("shipping cost cannot be negative")
	}

	profile, err := s.repo.GetProfile(ctx, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Aggregate{}, shared.NewValidation("requesting user has no branch profile")
		}
		return Aggregate{}, err
	}

	lines, subtotal, discount, err := s.buildLines(req.Lines, profile.WarehouseID)
	if err != nil {
		return Aggregate{}, err
	}
	total := subtotal.Sub(discount).Add(req.Shipping)
	if total.IsNegative() {
		return Aggregate{}, shared.NewValidation("order total cannot be negative")
	}

	paySum := decimal.Zero
	for _, p := range req.Payments {
		if !p.Amount.IsPositive() {
			return Aggregate{}, shared.NewValidation("payment amount must be positive")
		}
		paySum = paySum.Add(p.Amount)
	}
	if shared.Cents(paySum) > shared.Cents(total) {
		return Aggregate{}, shared.NewValidation("payments exceed the order total")
	}
	fullyPaid := total.IsPositive() && shared.SameAmount(paySum, total)

	initialCode := catalog.CodePending
	switch {
	case req.Reservation:
		initialCode = catalog.CodeReserved
	case fullyPaid:
		initialCode = catalog.CodeConfirmed
	}
	initial, err := s.catalog.SituationFor(catalog.ModuleOrders, initialCode)
	if err != nil {
		return Aggregate{}, err
	}

	order := Order{
		CustomerDocType:   req.CustomerDocType,
		CustomerDocNumber: req.CustomerDocNumber,
		CustomerName:      req.CustomerName,
		CustomerLastName:  req.CustomerLastName,
		CustomerContact:   req.CustomerContact,
		SaleTypeID:        req.SaleTypeID,
		ShippingTypeID:    req.ShippingTypeID,
		Address:           req.Address,
		District:          req.District,
		Reference:         req.Reference,
		Currency:          req.Currency,
		Subtotal:          subtotal,
		Discount:          discount,
		Shipping:          req.Shipping,
		Total:             total,
		CreatedBy:         actorID,
		BranchID:          profile.BranchID,
		WarehouseID:       profile.WarehouseID,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err = tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i := range lines {
			lines[i].OrderID = orderID
			if req.Reservation {
				if err := s.reserveLineTx(ctx, tx, &lines[i], actorID); err != nil {
					return err
				}
			} else {
				if err := s.deductLineTx(ctx, tx, &lines[i], actorID); err != nil {
					return err
				}
			}
			if _, err := tx.InsertLine(ctx, lines[i]); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		}
		var firstMethod *int64
		for _, p := range req.Payments {
			if firstMethod == nil && p.MethodID != nil {
				firstMethod = p.MethodID
			}
			if _, err := tx.InsertPayment(ctx, Payment{
				OrderID:          orderID,
				Amount:           p.Amount,
				MethodID:         p.MethodID,
				ConfirmationCode: p.ConfirmationCode,
			}); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}
		if initialCode == catalog.CodeConfirmed && paySum.IsPositive() {
			if err := s.recordIncomeTx(ctx, tx, orderID, paySum, firstMethod, actorID); err != nil {
				return err
			}
		}
		if _, err := tx.InsertSituation(ctx, SituationRow{
			OrderID:     orderID,
			SituationID: initial.ID,
			StatusID:    initial.StatusID,
		}); err != nil {
			return fmt.Errorf("insert situation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Aggregate{}, err
	}

	s.recordAudit(ctx, actorID, "order.create", orderID, map[string]any{
		"reservation": req.Reservation,
		"status":      string(initialCode),
		"total":       total.StringFixed(2),
	})
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", "err", err)
	}
	return s.loadAggregate(ctx, orderID)
}

// Update edits an order that is still reserved or pending. Replacing the
// lines releases whatever the old lines held or deducted before the new
// lines take effect, inside the same transaction.
func (s *Service) Update(ctx context.Context, orderID int64, req UpdateOrderRequest) (Aggregate, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Aggregate{}, shared.ErrUnauthorized
	}
	if req.Shipping != nil && req.Shipping.IsNegative() {
		return Aggregate{}, shared.NewValidation("shipping cost cannot be negative")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.CurrentSituationForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNoCurrentSituation) {
				return shared.ErrNotFound
			}
			return err
		}
		status, err := s.catalog.StatusByID(cur.StatusID)
		if err != nil {
			return err
		}
		if status.Code != catalog.CodeReserved && status.Code != catalog.CodePending {
			return shared.NewValidation("order is no longer editable")
		}
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CreatedBy != actorID {
			return shared.ErrUnauthorized
		}

		updates := map[string]any{}
		if req.CustomerContact != nil {
			updates["customer_contact"] = *req.CustomerContact
		}
		if req.Address != nil {
			updates["address"] = *req.Address
		}
		if req.District != nil {
			updates["district"] = *req.District
		}
		if req.Reference != nil {
			updates["reference"] = *req.Reference
		}

		subtotal, discount := order.Subtotal, order.Discount
		if req.Lines != nil {
			old, err := tx.Lines(ctx, orderID)
			if err != nil {
				return err
			}
			if err := s.releaseLinesTx(ctx, tx, old, actorID); err != nil {
				return err
			}
			if err := tx.DeleteLines(ctx, orderID); err != nil {
				return err
			}
			lines, sub, disc, err := s.buildLines(*req.Lines, order.WarehouseID)
			if err != nil {
				return err
			}
			reserve := status.Code == catalog.CodeReserved
			for i := range lines {
				lines[i].OrderID = orderID
				if reserve {
					if err := s.reserveLineTx(ctx, tx, &lines[i], actorID); err != nil {
						return err
					}
				} else {
					if err := s.deductLineTx(ctx, tx, &lines[i], actorID); err != nil {
						return err
					}
				}
				if _, err := tx.InsertLine(ctx, lines[i]); err != nil {
					return err
				}
			}
			subtotal, discount = sub, disc
			updates["subtotal"] = subtotal
			updates["discount"] = discount
		}

		shipping := order.Shipping
		if req.Shipping != nil {
			shipping = *req.Shipping
			updates["shipping"] = shipping
		}
		total := subtotal.Sub(discount).Add(shipping)
		if total.IsNegative() {
			return shared.NewValidation("order total cannot be negative")
		}
		updates["total"] = total

		if req.Payment != nil {
			if !req.Payment.Amount.IsPositive() {
				return shared.NewValidation("payment amount must be positive")
			}
			if _, err := tx.UpsertPayment(ctx, Payment{
				OrderID:          orderID,
				Amount:           req.Payment.Amount,
				MethodID:         req.Payment.MethodID,
				ConfirmationCode: req.Payment.ConfirmationCode,
			}); err != nil {
				return err
			}
		}
		payments, err := tx.Payments(ctx, orderID)
		if err != nil {
			return err
		}
		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount)
		}
		if shared.Cents(paid) > shared.Cents(total) {
			return shared.NewValidation("payments exceed the order total")
		}

		return tx.UpdateOrderFields(ctx, orderID, updates)
	})
	if err != nil {
		return Aggregate{}, err
	}

	s.recordAudit(ctx, actorID, "order.update", orderID, nil)
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", "err", err)
	}
	return s.loadAggregate(ctx, orderID)
}

// Get assembles the order aggregate, serving from the cache when possible.
func (s *Service) Get(ctx context.Context, orderID int64) (Aggregate, error) {
	return s.cache.FetchAggregate(ctx, orderID, func(ctx context.Context) (Aggregate, error) {
		return s.loadAggregate(ctx, orderID)
	})
}

// List pages orders with optional filters.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	if req.Limit < 0 || req.Limit > 1000 {
		return nil, 0, shared.NewValidation("limit must be between 0 and 1000")
	}
	if req.Offset < 0 {
		return nil, 0, shared.NewValidation("offset cannot be negative")
	}
	return s.repo.List(ctx, req)
}

func (s *Service) loadAggregate(ctx context.Context, orderID int64) (Aggregate, error) {
	var (
		order     Order
		lines     []AggregateLine
		payments  []Payment
		situation SituationRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		order, err = s.repo.Get(gctx, orderID)
		return err
	})
	g.Go(func() (err error) {
		lines, err = s.repo.AggregateLines(gctx, orderID, s.cfg.DefaultStockTypeID)
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.repo.PaymentsByOrder(gctx, orderID)
		return err
	})
	g.Go(func() (err error) {
		situation, err = s.repo.CurrentSituation(gctx, orderID)
		if errors.Is(err, ErrNoCurrentSituation) {
			return shared.ErrNotFound
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Aggregate{}, err
	}

	sit, err := s.catalog.SituationByID(situation.SituationID)
	if err != nil {
		return Aggregate{}, err
	}
	status, err := s.catalog.StatusByID(situation.StatusID)
	if err != nil {
		return Aggregate{}, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return Aggregate{
		Order:         order,
		Lines:         lines,
		Payments:      payments,
		Situation:     situation,
		SituationName: sit.Name,
		StatusCode:    status.Code,
		PaidToDate:    paid,
	}, nil
}

func (s *Service) buildLines(reqs []CreateOrderLineReq, defaultWarehouseID int64) ([]Line, decimal.Decimal, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, decimal.Zero, shared.NewValidation("order needs at least one product")
	}
	subtotal, discount := decimal.Zero, decimal.Zero
	lines := make([]Line, 0, len(reqs))
	for _, lr := range reqs {
		if lr.Quantity <= 0 {
			return nil, decimal.Zero, decimal.Zero, shared.NewValidation("line quantity must be positive")
		}
		if lr.UnitPrice.IsNegative() || lr.Discount.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, shared.NewValidation("line price and discount cannot be negative")
		}
		warehouseID := lr.WarehouseID
		if warehouseID == 0 {
			warehouseID = defaultWarehouseID
		}
		line := Line{
			VariationID: lr.VariationID,
			Quantity:    lr.Quantity,
			UnitPrice:   lr.UnitPrice,
			Discount:    lr.Discount,
			WarehouseID: warehouseID,
		}
		gross := lr.UnitPrice.Mul(decimal.NewFromInt(lr.Quantity))
		if lr.Discount.GreaterThan(gross) {
			return nil, decimal.Zero, decimal.Zero, shared.NewValidation("line discount exceeds the line amount")
		}
		subtotal = subtotal.Add(gross)
		discount = discount.Add(lr.Discount)
		lines = append(lines, line)
	}
	return lines, subtotal, discount, nil
}

// reserveLineTx holds availability for a line without touching the
// ledger: the counter minus already reserved quantity must cover the line,
// and a provisional movement records the intent.
func (s *Service) reserveLineTx(ctx context.Context, tx TxRepository, line *Line, actorID int64) error {
	st := tx.Stock()
	level, err := st.GetLevelForUpdate(ctx, stock.Key{
		VariationID: line.VariationID,
		WarehouseID: line.WarehouseID,
		StockTypeID: s.cfg.DefaultStockTypeID,
	})
	if err != nil && !errors.Is(err, stock.ErrLevelNotFound) {
		return err
	}
	reserved, err := st.ReservedQuantity(ctx, line.VariationID, line.WarehouseID)
	if err != nil {
		return err
	}
	if level.Quantity-reserved < line.Quantity {
		return fmt.Errorf("variation %d warehouse %d has %d available: %w",
			line.VariationID, line.WarehouseID, level.Quantity-reserved, shared.ErrInsufficientStock)
	}
	movementID, err := stock.RecordTx(ctx, st, stock.MovementInput{
		VariationID:    line.VariationID,
		Quantity:       -line.Quantity,
		WarehouseID:    line.WarehouseID,
		MovementTypeID: stock.MovementTypeSale,
		StockTypeID:    s.cfg.DefaultStockTypeID,
		OrderID:        &line.OrderID,
		ActorID:        actorID,
	})
	if err != nil {
		return err
	}
	line.Reservation = true
	line.MovementID = &movementID
	return nil
}

// deductLineTx takes stock out of the ledger immediately and records a
// completed, active movement.
func (s *Service) deductLineTx(ctx context.Context, tx TxRepository, line *Line, actorID int64) error {
	st := tx.Stock()
	if _, err := stock.ApplyDeltaTx(ctx, st, stock.DeltaInput{
		VariationID: line.VariationID,
		WarehouseID: line.WarehouseID,
		StockTypeID: s.cfg.DefaultStockTypeID,
		Delta:       -line.Quantity,
	}, false); err != nil {
		return err
	}
	movementID, err := stock.RecordTx(ctx, st, stock.MovementInput{
		VariationID:    line.VariationID,
		Quantity:       -line.Quantity,
		WarehouseID:    line.WarehouseID,
		MovementTypeID: stock.MovementTypeSale,
		StockTypeID:    s.cfg.DefaultStockTypeID,
		Completed:      true,
		IsActive:       true,
		OrderID:        &line.OrderID,
		ActorID:        actorID,
	})
	if err != nil {
		return err
	}
	line.Reservation = false
	line.MovementID = &movementID
	return nil
}

// releaseLinesTx undoes whatever the lines hold: reserved lines drop
// their hold, deducted lines flow back into the ledger through a
// compensating return movement.
func (s *Service) releaseLinesTx(ctx context.Context, tx TxRepository, lines []Line, actorID int64) error {
	st := tx.Stock()
	var provisional []int64
	for _, line := range lines {
		if line.Reservation {
			if line.MovementID != nil {
				provisional = append(provisional, *line.MovementID)
			}
			continue
		}
		if line.MovementID == nil {
			continue
		}
		if _, err := stock.ApplyDeltaTx(ctx, st, stock.DeltaInput{
			VariationID: line.VariationID,
			WarehouseID: line.WarehouseID,
			StockTypeID: s.cfg.DefaultStockTypeID,
			Delta:       line.Quantity,
		}, false); err != nil {
			return err
		}
		if _, err := stock.RecordTx(ctx, st, stock.MovementInput{
			VariationID:    line.VariationID,
			Quantity:       line.Quantity,
			WarehouseID:    line.WarehouseID,
			MovementTypeID: stock.MovementTypeReturn,
			StockTypeID:    s.cfg.DefaultStockTypeID,
			Completed:      true,
			IsActive:       true,
			OrderID:        &line.OrderID,
			ActorID:        actorID,
		}); err != nil {
			return err
		}
	}
	if err := st.SetMovementActive(ctx, provisional, false); err != nil {
		return err
	}
	if len(lines) > 0 {
		return tx.SetLinesReservation(ctx, lines[0].OrderID, false)
	}
	return nil
}

// recordIncomeTx books the received money as one income movement and
// stamps it onto the payment rows. The movement lands on the account
// behind the payment method, falling back to the default account.
func (s *Service) recordIncomeTx(ctx context.Context, tx TxRepository, orderID int64, amount decimal.Decimal, methodID *int64, actorID int64) error {
	accountID := s.cfg.DefaultAccountID
	if methodID != nil {
		resolved, err := tx.Finance().AccountForPaymentMethod(ctx, *methodID)
		switch {
		case err == nil:
			accountID = resolved
		case errors.Is(err, finance.ErrNoAccount):
			// keep the default account
		default:
			return err
		}
	}
	movementID, err := tx.Finance().InsertMovement(ctx, finance.Movement{
		AccountID: accountID,
		Kind:      finance.KindIncome,
		Amount:    amount,
		Concept:   "order " + strconv.FormatInt(orderID, 10) + " payment",
		OrderID:   &orderID,
		CreatedBy: actorID,
	})
	if err != nil {
		return fmt.Errorf("record income: %w", err)
	}
	return tx.SetPaymentsFinanceMovement(ctx, orderID, movementID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "order_id", orderID, "err", err)
	}
}
