package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vendimia-erp/vendimia-erp/internal/orders"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// systemActorID identifies sweeper-driven changes in movements and audit
// records. Profile 0 never exists, so the id cannot collide with a user.
const systemActorID int64 = 0

// NewReservationSweepHandler builds the handler that runs the sweep and
// logs its outcome. Per-order failures are reported by the sweep itself;
// the task only fails when the scan cannot run at all.
func NewReservationSweepHandler(svc *orders.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ctx = shared.ContextWithActor(ctx, systemActorID)
		result, err := svc.SweepExpiredReservations(ctx)
		if err != nil {
			logger.Error("reservation sweep failed", "err", err)
			return err
		}
		if len(result.Errors) > 0 {
			for _, msg := range result.Errors {
				logger.Warn("reservation sweep item failed", "detail", msg)
			}
		}
		logger.Info("reservation sweep done",
			"cancelled", result.CancelledCount, "failed", len(result.Errors))
		return nil
	}
}
