package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Level(ctx context.Context, key Key) (Level, error)
	ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger and movement operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeStock relaxes the outflow guard for historical data
	// migrations. Committed sales always run with the guard on.
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, allowNeg: cfg.AllowNegativeStock}
}

// ApplyDelta applies one signed ledger delta in its own transaction and
// returns the new quantity.
func (s *Service) ApplyDelta(ctx context.Context, d DeltaInput) (int64, error) {
	var newQty int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		qty, err := ApplyDeltaTx(ctx, tx, d, s.allowNeg)
		if err != nil {
			return err
		}
		newQty = qty
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.auditDelta(ctx, d, newQty)
	return newQty, nil
}

// ApplyDeltas applies several deltas as one all-or-nothing unit.
func (s *Service) ApplyDeltas(ctx context.Context, deltas []DeltaInput) error {
	if len(deltas) == 0 {
		return shared.NewValidation("stock: at least one delta required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return ApplyDeltasTx(ctx, tx, deltas, s.allowNeg)
	})
}

// Record appends one provisional movement without touching the ledger.
func (s *Service) Record(ctx context.Context, in MovementInput) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movementID, err := RecordTx(ctx, tx, in)
		if err != nil {
			return err
		}
		id = movementID
		return nil
	})
	return id, err
}

// RecordPair appends a linked OUT/IN movement pair for a transfer.
func (s *Service) RecordPair(ctx context.Context, in TransferInput) (outID, inID int64, err error) {
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, i, err := RecordPairTx(ctx, tx, in)
		if err != nil {
			return err
		}
		outID, inID = o, i
		return nil
	})
	return outID, inID, err
}

// Activate flips the is_active flag on the given movements.
func (s *Service) Activate(ctx context.Context, ids []int64, active bool) error {
	if len(ids) == 0 {
		return shared.NewValidation("stock: movement ids required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetMovementActive(ctx, ids, active)
	})
}

// Complete marks the given movements completed.
func (s *Service) Complete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return shared.NewValidation("stock: movement ids required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetMovementCompleted(ctx, ids)
	})
}

// Available computes sellable stock: the ledger counter minus quantities
// held by live reservations, which never deducted the counter.
func (s *Service) Available(ctx context.Context, key Key) (int64, error) {
	level, err := s.repo.Level(ctx, key)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return 0, err
	}
	reserved, err := s.repo.ReservedQuantity(ctx, key.VariationID, key.WarehouseID)
	if err != nil {
		return 0, err
	}
	return level.Quantity - reserved, nil
}

func (s *Service) auditDelta(ctx context.Context, d DeltaInput, newQty int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   "stock:delta",
		Entity:   "product_stock",
		EntityID: fmt.Sprintf("%d:%d:%d", d.VariationID, d.WarehouseID, d.StockTypeID),
		Meta: map[string]any{
			"delta":        d.Delta,
			"new_quantity": newQty,
		},
	})
}
