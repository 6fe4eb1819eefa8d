package transfers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// RepositoryPort abstracts request persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Request, error)
	ItemsByRequest(ctx context.Context, requestID int64) ([]Item, error)
	CurrentSituation(ctx context.Context, requestID int64) (SituationRow, error)
}

// AuditPort records who did what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// transitions for the request workflow. Cancellation only before
// dispatch; after dispatch the goods are in transit and must be received.
var transitions = map[catalog.StatusCode][]catalog.StatusCode{
	catalog.CodePending:  {catalog.CodeApproved, catalog.CodeCancelled},
	catalog.CodeApproved: {catalog.CodeDispatch, catalog.CodeCancelled},
	catalog.CodeDispatch: {catalog.CodeReceived},
}

func transitionAllowed(from, to catalog.StatusCode) bool {
	for _, c := range transitions[from] {
		if c == to {
			return true
		}
	}
	return false
}

// Service drives the stock movement request workflow.
type Service struct {
	repo        RepositoryPort
	catalog     *catalog.Catalog
	audit       AuditPort
	logger      *slog.Logger
	stockTypeID int64
}

// NewService wires the transfer service.
func NewService(repo RepositoryPort, cat *catalog.Catalog, audit AuditPort, logger *slog.Logger, stockTypeID int64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if stockTypeID == 0 {
		stockTypeID = 1
	}
	return &Service{repo: repo, catalog: cat, audit: audit, logger: logger, stockTypeID: stockTypeID}
}

// Create registers a request with its movement pairs and puts it in the
// pending situation. Nothing touches the ledger yet.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Detail, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return Detail{}, shared.NewValidation("origin and destination warehouses must differ")
	}
	if len(req.Items) == 0 {
		return Detail{}, shared.NewValidation("request needs at least one item")
	}
	pending, err := s.catalog.SituationFor(catalog.ModuleTransfers, catalog.CodePending)
	if err != nil {
		return Detail{}, err
	}

	var requestID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		requestID, err = tx.InsertRequest(ctx, Request{
			Code:            uuid.NewString(),
			FromWarehouseID: req.FromWarehouseID,
			ToWarehouseID:   req.ToWarehouseID,
			Comment:         req.Comment,
			CreatedBy:       actorID,
		})
		if err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		for _, item := range req.Items {
			if item.Quantity <= 0 {
				return shared.NewValidation("item quantity must be positive")
			}
			outID, inID, err := stock.RecordPairTx(ctx, tx.Stock(), stock.TransferInput{
				VariationID:    item.VariationID,
				Quantity:       item.Quantity,
				OutWarehouseID: req.FromWarehouseID,
				InWarehouseID:  req.ToWarehouseID,
				MovementTypeID: stock.MovementTypeTransfer,
				StockTypeID:    s.stockTypeID,
				RequestID:      &requestID,
				ActorID:        actorID,
			})
			if err != nil {
				return err
			}
			if _, err := tx.InsertItem(ctx, Item{
				RequestID:     requestID,
				VariationID:   item.VariationID,
				Quantity:      item.Quantity,
				OutMovementID: outID,
				InMovementID:  inID,
			}); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		_, err = tx.InsertSituation(ctx, SituationRow{
			RequestID:   requestID,
			SituationID: pending.ID,
			StatusID:    pending.StatusID,
		})
		return err
	})
	if err != nil {
		return Detail{}, err
	}

	s.recordAudit(ctx, actorID, "transfer.create", requestID, nil)
	return s.Get(ctx, requestID)
}

// UpdateStatus moves a request through the workflow and applies the
// stage's side effects: approval activates the movement pairs, dispatch
// completes the outbound side and takes the stock out of the origin,
// reception completes the inbound side and lands it at the destination.
func (s *Service) UpdateStatus(ctx context.Context, requestID int64, req UpdateStatusRequest) (SituationRow, error) {
	actorID := shared.ActorFromContext(ctx)
	target, err := s.catalog.SituationByID(req.SituationID)
	if err != nil {
		return SituationRow{}, err
	}
	if target.Module != catalog.ModuleTransfers {
		return SituationRow{}, shared.NewValidation("situation does not belong to transfers")
	}
	targetStatus, err := s.catalog.StatusOf(target)
	if err != nil {
		return SituationRow{}, err
	}

	var inserted SituationRow
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.CurrentSituationForUpdate(ctx, requestID)
		hasCurrent := err == nil
		if err != nil {
			if !errors.Is(err, ErrNoCurrentSituation) {
				return err
			}
			// No history row to flip; a request is always created with
			// items, so an empty set means the request itself is gone.
			items, err := tx.Items(ctx, requestID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return shared.ErrNotFound
			}
		}
		if hasCurrent {
			curStatus, err := s.catalog.StatusByID(cur.StatusID)
			if err != nil {
				return err
			}
			if !transitionAllowed(curStatus.Code, targetStatus.Code) {
				return shared.NewValidation(fmt.Sprintf("transition %s to %s is not allowed", curStatus.Code, targetStatus.Code))
			}
		}

		switch targetStatus.Code {
		case catalog.CodeApproved:
			err = s.approveTx(ctx, tx, requestID, req.ItemIDs)
		case catalog.CodeDispatch:
			err = s.dispatchTx(ctx, tx, requestID)
		case catalog.CodeReceived:
			err = s.receiveTx(ctx, tx, requestID)
		case catalog.CodeCancelled:
			err = s.cancelTx(ctx, tx, requestID)
		}
		if err != nil {
			return err
		}

		if hasCurrent {
			if err := tx.CloseSituation(ctx, cur.ID); err != nil {
				return err
			}
		}
		inserted = SituationRow{
			RequestID:   requestID,
			SituationID: target.ID,
			StatusID:    target.StatusID,
			LastRow:     true,
		}
		inserted.ID, err = tx.InsertSituation(ctx, inserted)
		return err
	})
	if err != nil {
		return SituationRow{}, err
	}

	s.recordAudit(ctx, actorID, "transfer.transition", requestID, map[string]any{
		"situation_id": req.SituationID,
		"status":       string(targetStatus.Code),
	})
	return inserted, nil
}

// Get assembles the request read model.
func (s *Service) Get(ctx context.Context, requestID int64) (Detail, error) {
	request, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	items, err := s.repo.ItemsByRequest(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	situation, err := s.repo.CurrentSituation(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNoCurrentSituation) {
			return Detail{}, shared.ErrNotFound
		}
		return Detail{}, err
	}
	sit, err := s.catalog.SituationByID(situation.SituationID)
	if err != nil {
		return Detail{}, err
	}
	status, err := s.catalog.StatusByID(situation.StatusID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Request:       request,
		Items:         items,
		Situation:     situation,
		SituationName: sit.Name,
		StatusCode:    string(status.Code),
	}, nil
}

func (s *Service) approveTx(ctx context.Context, tx TxRepository, requestID int64, itemIDs []int64) error {
	if err := tx.ApproveItems(ctx, requestID, itemIDs); err != nil {
		return err
	}
	items, err := tx.Items(ctx, requestID)
	if err != nil {
		return err
	}
	var movementIDs []int64
	approvedAny := false
	for _, it := range items {
		if !it.Approved {
			continue
		}
		approvedAny = true
		movementIDs = append(movementIDs, it.OutMovementID, it.InMovementID)
	}
	if !approvedAny {
		return shared.NewValidation("approval matched no items")
	}
	return tx.Stock().SetMovementActive(ctx, movementIDs, true)
}

func (s *Service) dispatchTx(ctx context.Context, tx TxRepository, requestID int64) error {
	items, err := tx.Items(ctx, requestID)
	if err != nil {
		return err
	}
	st := tx.Stock()
	var outIDs []int64
	for _, it := range items {
		if !it.Approved {
			continue
		}
		mov, err := st.GetMovement(ctx, it.OutMovementID)
		if err != nil {
			return err
		}
		if _, err := stock.ApplyDeltaTx(ctx, st, stock.DeltaInput{
			VariationID: it.VariationID,
			WarehouseID: mov.WarehouseID,
			StockTypeID: s.stockTypeID,
			Delta:       -it.Quantity,
		}, false); err != nil {
			return fmt.Errorf("dispatch request %d: %w", requestID, err)
		}
		outIDs = append(outIDs, it.OutMovementID)
	}
	return st.SetMovementCompleted(ctx, outIDs)
}

func (s *Service) receiveTx(ctx context.Context, tx TxRepository, requestID int64) error {
	items, err := tx.Items(ctx, requestID)
	if err != nil {
		return err
	}
	st := tx.Stock()
	var inIDs []int64
	for _, it := range items {
		if !it.Approved {
			continue
		}
		mov, err := st.GetMovement(ctx, it.InMovementID)
		if err != nil {
			return err
		}
		if _, err := stock.ApplyDeltaTx(ctx, st, stock.DeltaInput{
			VariationID: it.VariationID,
			WarehouseID: mov.WarehouseID,
			StockTypeID: s.stockTypeID,
			Delta:       it.Quantity,
		}, false); err != nil {
			return fmt.Errorf("receive request %d: %w", requestID, err)
		}
		inIDs = append(inIDs, it.InMovementID)
	}
	return st.SetMovementCompleted(ctx, inIDs)
}

func (s *Service) cancelTx(ctx context.Context, tx TxRepository, requestID int64) error {
	items, err := tx.Items(ctx, requestID)
	if err != nil {
		return err
	}
	var movementIDs []int64
	for _, it := range items {
		movementIDs = append(movementIDs, it.OutMovementID, it.InMovementID)
	}
	return tx.Stock().SetMovementActive(ctx, movementIDs, false)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, requestID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement_request",
		EntityID: strconv.FormatInt(requestID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "request_id", requestID, "err", err)
	}
}
