package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// SweepExpiredReservations cancels orders that sat reserved past the TTL.
// Each order is handled in its own transaction, so one failure never
// blocks the rest; failures are accumulated into the result. Orders that
// moved on between the scan and the cancel are skipped silently, which
// makes concurrent sweeps safe.
func (s *Service) SweepExpiredReservations(ctx context.Context) (SweepResult, error) {
	reserved, err := s.catalog.SituationFor(catalog.ModuleOrders, catalog.CodeReserved)
	if err != nil {
		return SweepResult{}, err
	}
	cancelled, err := s.catalog.SituationFor(catalog.ModuleOrders, catalog.CodeCancelled)
	if err != nil {
		return SweepResult{}, err
	}

	cutoff := time.Now().Add(-s.cfg.ReservationTTL)
	ids, err := s.repo.ExpiredReservations(ctx, reserved.StatusID, cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Errors: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.Transition(ctx, id, cancelled.ID); err != nil {
			if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrNotFound) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sweepLabel(id), err))
			continue
		}
		result.CancelledCount++
	}
	s.logger.Info("reservation sweep finished",
		"scanned", len(ids), "cancelled", result.CancelledCount, "failed", len(result.Errors))
	return result, nil
}
