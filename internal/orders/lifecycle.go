package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

// transitions is the closed set of allowed status moves. Confirmed orders
// cannot cancel because their stock and income already settled; they can
// only close.
var transitions = map[catalog.StatusCode][]catalog.StatusCode{
	catalog.CodeReserved:  {catalog.CodeConfirmed, catalog.CodeCancelled},
	catalog.CodePending:   {catalog.CodeConfirmed, catalog.CodeCancelled},
	catalog.CodeConfirmed: {catalog.CodeClosed},
}

func transitionAllowed(from, to catalog.StatusCode) bool {
	for _, c := range transitions[from] {
		if c == to {
			return true
		}
	}
	return false
}

// Transition moves an order to the target situation. The current history
// row is locked, the move validated against the transition table, side
// effects applied, and the history appended, all in one transaction.
func (s *Service) Transition(ctx context.Context, orderID, situationID int64) (SituationRow, error) {
	target, err := s.catalog.SituationByID(situationID)
	if err != nil {
		return SituationRow{}, err
	}
	if target.Module != catalog.ModuleOrders {
		return SituationRow{}, shared.NewValidation("situation does not belong to orders")
	}
	targetStatus, err := s.catalog.StatusOf(target)
	if err != nil {
		return SituationRow{}, err
	}

	actorID := shared.ActorFromContext(ctx)
	var inserted SituationRow
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.CurrentSituationForUpdate(ctx, orderID)
		hasCurrent := err == nil
		if err != nil {
			if !errors.Is(err, ErrNoCurrentSituation) {
				return err
			}
			// Orders imported without a situation trail have no row to
			// flip; verify the order exists and treat the move as its
			// first state.
			if _, err := tx.GetOrder(ctx, orderID); err != nil {
				return err
			}
		}
		if hasCurrent {
			curStatus, err := s.catalog.StatusByID(cur.StatusID)
			if err != nil {
				return err
			}
			if cur.SituationID == situationID {
				return shared.NewValidation("order is already in that situation")
			}
			if !transitionAllowed(curStatus.Code, targetStatus.Code) {
				return shared.NewValidation(fmt.Sprintf("transition %s to %s is not allowed", curStatus.Code, targetStatus.Code))
			}
		}

		switch targetStatus.Code {
		case catalog.CodeConfirmed:
			if err := s.confirmTx(ctx, tx, orderID, actorID); err != nil {
				return err
			}
		case catalog.CodeCancelled:
			lines, err := tx.Lines(ctx, orderID)
			if err != nil {
				return err
			}
			if err := s.releaseLinesTx(ctx, tx, lines, actorID); err != nil {
				return err
			}
		}

		if hasCurrent {
			if err := tx.CloseSituation(ctx, cur.ID); err != nil {
				return err
			}
		}
		inserted = SituationRow{
			OrderID:     orderID,
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

	s.recordAudit(ctx, actorID, "order.transition", orderID, map[string]any{
		"situation_id": situationID,
		"status":       string(targetStatus.Code),
	})
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", "err", err)
	}
	return inserted, nil
}

// confirmTx settles a confirmation: reserved lines turn their hold into a
// real deduction and their provisional movements go live; the money
// received so far is booked as income. Lines deducted at creation are
// left alone.
func (s *Service) confirmTx(ctx context.Context, tx TxRepository, orderID, actorID int64) error {
	lines, err := tx.Lines(ctx, orderID)
	if err != nil {
		return err
	}
	st := tx.Stock()
	var movementIDs []int64
	for _, line := range lines {
		if !line.Reservation {
			continue
		}
		if _, err := stock.ApplyDeltaTx(ctx, st, stock.DeltaInput{
			VariationID: line.VariationID,
			WarehouseID: line.WarehouseID,
			StockTypeID: s.cfg.DefaultStockTypeID,
			Delta:       -line.Quantity,
		}, false); err != nil {
			return fmt.Errorf("confirm order %d: %w", orderID, err)
		}
		if line.MovementID != nil {
			movementIDs = append(movementIDs, *line.MovementID)
		}
	}
	if err := st.SetMovementCompleted(ctx, movementIDs); err != nil {
		return err
	}
	if err := st.SetMovementActive(ctx, movementIDs, true); err != nil {
		return err
	}
	if err := tx.SetLinesReservation(ctx, orderID, false); err != nil {
		return err
	}

	payments, err := tx.Payments(ctx, orderID)
	if err != nil {
		return err
	}
	// Only payments without a ledger entry yet are booked, so a repeat
	// confirmation attempt cannot double-count income.
	unbooked := decimal.Zero
	var firstMethod *int64
	for _, p := range payments {
		if p.FinanceMovementID != nil {
			continue
		}
		unbooked = unbooked.Add(p.Amount)
		if firstMethod == nil && p.MethodID != nil {
			firstMethod = p.MethodID
		}
	}
	if unbooked.IsPositive() {
		return s.recordIncomeTx(ctx, tx, orderID, unbooked, firstMethod, actorID)
	}
	return nil
}

// Sweep support: sweepLabel names an order for error accumulation.
func sweepLabel(orderID int64) string {
	return "order " + strconv.FormatInt(orderID, 10)
}
