package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// ExistingReceipt is what the validator needs to know about a receipt
// already linked to the order.
type ExistingReceipt struct {
	ID       int64
	TypeCode string
	Declared bool
}

// EligibilityInput carries everything the decision needs; the function
// itself never touches storage.
type EligibilityInput struct {
	CandidateType string
	Existing      []ExistingReceipt
	PaymentsTotal decimal.Decimal
	OrderTotal    decimal.Decimal
}

// ValidateCreation decides whether a receipt of the candidate type may be
// created for an order. Rules are ordered; the first failing rule wins.
// On success for a note type the linked primary receipt is returned so
// the caller can reference it.
func ValidateCreation(in EligibilityInput) EligibilityResponse {
	if !IsPrimaryType(in.CandidateType) && !IsNoteType(in.CandidateType) {
		return EligibilityResponse{Reason: "unknown receipt type " + in.CandidateType}
	}

	var primary *ExistingReceipt
	for i := range in.Existing {
		r := in.Existing[i]
		if r.TypeCode == in.CandidateType {
			return EligibilityResponse{Reason: "a receipt of this type already exists for the order"}
		}
		if IsPrimaryType(r.TypeCode) && primary == nil {
			primary = &in.Existing[i]
		}
	}

	if IsPrimaryType(in.CandidateType) && primary != nil {
		return EligibilityResponse{Reason: "the order already has a primary receipt"}
	}
	if IsNoteType(in.CandidateType) {
		if primary == nil {
			return EligibilityResponse{Reason: "a note requires a primary receipt"}
		}
		if !primary.Declared {
			return EligibilityResponse{Reason: "the primary receipt has not been declared yet"}
		}
	}
	if !shared.SameAmount(in.PaymentsTotal, in.OrderTotal) {
		return EligibilityResponse{Reason: "payments do not cover the order total"}
	}

	resp := EligibilityResponse{Valid: true}
	if IsNoteType(in.CandidateType) && primary != nil {
		resp.LinkedInvoiceID = &primary.ID
		resp.LinkedTypeCode = primary.TypeCode
	}
	return resp
}
