package invoicing

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// RepositoryPort abstracts invoice persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	ReceiptsByOrder(ctx context.Context, orderID int64) ([]ExistingReceipt, error)
	OrderTotals(ctx context.Context, orderID int64) (total, paid decimal.Decimal, err error)
}

// AuditPort records who did what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service gates and manages fiscal receipts.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService wires the invoicing service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Eligibility runs the creation rules against the order's current state.
func (s *Service) Eligibility(ctx context.Context, orderID int64, typeCode string) (EligibilityResponse, error) {
	total, paid, err := s.repo.OrderTotals(ctx, orderID)
	if err != nil {
		return EligibilityResponse{}, err
	}
	existing, err := s.repo.ReceiptsByOrder(ctx, orderID)
	if err != nil {
		return EligibilityResponse{}, err
	}
	return ValidateCreation(EligibilityInput{
		CandidateType: typeCode,
		Existing:      existing,
		PaymentsTotal: paid,
		OrderTotal:    total,
	}), nil
}

// Create registers an undeclared receipt after revalidating eligibility
// inside the transaction, so two concurrent creations cannot both pass.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Invoice{}, shared.ErrUnauthorized
	}

	var invoiceID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total, paid, err := tx.OrderTotals(ctx, req.OrderID)
		if err != nil {
			return err
		}
		existing, err := tx.ReceiptsByOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		verdict := ValidateCreation(EligibilityInput{
			CandidateType: req.TypeCode,
			Existing:      existing,
			PaymentsTotal: paid,
			OrderTotal:    total,
		})
		if !verdict.Valid {
			return shared.NewValidation(verdict.Reason)
		}
		invoiceID, err = tx.InsertInvoice(ctx, Invoice{
			TypeCode:        req.TypeCode,
			LinkedInvoiceID: verdict.LinkedInvoiceID,
			Total:           total,
			CreatedBy:       actorID,
		})
		if err != nil {
			return err
		}
		return tx.LinkToOrder(ctx, req.OrderID, invoiceID)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, actorID, "invoice.create", invoiceID, map[string]any{
		"order_id":  req.OrderID,
		"type_code": req.TypeCode,
	})
	return s.repo.Get(ctx, invoiceID)
}

// Emit assigns series and number and declares the receipt. A declared
// receipt is immutable, so a second emission fails.
func (s *Service) Emit(ctx context.Context, invoiceID int64, req EmitRequest) (Invoice, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Invoice{}, shared.ErrUnauthorized
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Declared {
			return shared.NewValidation("the receipt was already emitted")
		}
		return tx.MarkEmitted(ctx, invoiceID, req.Series, req.Number)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, actorID, "invoice.emit", invoiceID, map[string]any{
		"series": req.Series,
		"number": req.Number,
	})
	return s.repo.Get(ctx, invoiceID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "invoice_id", invoiceID, "err", err)
	}
}
