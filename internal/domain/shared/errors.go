package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so wrapped copies of the
// common errors still match with errors.Is.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Ledger business outcomes. Callers map these to upgrade or quota prompts.
var (
	ErrInsufficientCredits = NewDomainError("INSUFFICIENT_CREDITS", "Not enough credits for this action")
	ErrQuotaExceeded       = NewDomainError("QUOTA_EXCEEDED", "Usage quota exceeded for this billing cycle")
	ErrInsufficientPool    = NewDomainError("INSUFFICIENT_POOL", "Team credit pool has not enough unallocated credits")
	ErrInsufficientUnused  = NewDomainError("INSUFFICIENT_UNUSED", "Member has not enough unused allocated credits")
	ErrBetaQuotaExceeded   = NewDomainError("BETA_QUOTA_EXCEEDED", "Beta quota exhausted")
)

// IntegrityError signals a broken ledger invariant. It is never a business
// outcome: the surrounding transaction must roll back and the error must be
// surfaced as a server fault.
type IntegrityError struct {
	Invariant string
	Subject   string
	Detail    string
}

// Error implements the error interface
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation [%s] on %s: %s", e.Invariant, e.Subject, e.Detail)
}

// NewIntegrityError creates a new integrity error
func NewIntegrityError(invariant, subject, detail string) *IntegrityError {
	return &IntegrityError{
		Invariant: invariant,
		Subject:   subject,
		Detail:    detail,
	}
}

// IsIntegrityError reports whether err (or anything it wraps) is an IntegrityError
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
