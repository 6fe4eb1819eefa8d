package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error for transport mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindConfiguration     Kind = "configuration"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a missing or mismatched caller identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates rejected input, surfaced before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration indicates missing reference data such as an
	// unresolvable (module, status code) pair. Fatal, not retryable.
	ErrConfiguration = errors.New("configuration error")
	// ErrInsufficientStock indicates a ledger delta that would drive a
	// stock counter negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a concurrent transition raced and lost.
	ErrConflict = errors.New("conflict")
)

// DomainError pairs a machine kind with a human-readable message.
type DomainError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewValidation builds a validation error with a user-safe message.
func NewValidation(msg string) error {
	return &DomainError{Kind: KindValidation, Msg: msg, Err: ErrValidation}
}

// NewConfiguration builds a configuration error.
func NewConfiguration(msg string) error {
	return &DomainError{Kind: KindConfiguration, Msg: msg, Err: ErrConfiguration}
}

// UserSafeMessage extracts a message suitable for end users.
func UserSafeMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Msg
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrUnauthorized):
		return "You are not allowed to perform this action"
	case errors.Is(err, ErrInsufficientStock):
		return "Not enough stock to complete the operation"
	case errors.Is(err, ErrConflict):
		return "The record was modified concurrently, please retry"
	}
	return "An unexpected error occurred"
}
