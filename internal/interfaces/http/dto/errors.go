package dto

import (
	"net/http"
	"strings"
)

// Error codes returned in the error envelope. Domain codes pass through
// unchanged so clients can branch on the same strings the ledger uses.

// General error codes
const (
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeIntegrityViolation = "INTEGRITY_VIOLATION"
)

// Input error codes
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInvalidJSON  = "INVALID_JSON"
	ErrCodeTooLarge     = "REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "INVALID_TOKEN"
)

// Resource error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "INVALID_STATE"
)

// Ledger error codes
const (
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeQuotaExceeded       = "QUOTA_EXCEEDED"
	ErrCodeBetaQuotaExceeded   = "BETA_QUOTA_EXCEEDED"
	ErrCodeInsufficientPool    = "INSUFFICIENT_POOL"
	ErrCodeInsufficientUnused  = "INSUFFICIENT_UNUSED"
	ErrCodePlanRequired        = "PLAN_REQUIRED"
	ErrCodeAlreadyMember       = "ALREADY_MEMBER"
	ErrCodeTeamFull            = "TEAM_FULL"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "RATE_LIMIT_EXCEEDED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes. Codes that are
// not listed but start with INVALID_ or UNKNOWN_ are input errors.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeIntegrityViolation: http.StatusInternalServerError,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusConflict,

	ErrCodeInsufficientCredits: http.StatusPaymentRequired,
	ErrCodeQuotaExceeded:       http.StatusTooManyRequests,
	ErrCodeBetaQuotaExceeded:   http.StatusTooManyRequests,
	ErrCodeInsufficientPool:    http.StatusUnprocessableEntity,
	ErrCodeInsufficientUnused:  http.StatusUnprocessableEntity,
	ErrCodePlanRequired:        http.StatusForbidden,
	ErrCodeAlreadyMember:       http.StatusConflict,
	ErrCodeTeamFull:            http.StatusConflict,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if isInputCode(code) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func isInputCode(code string) bool {
	return strings.HasPrefix(code, "INVALID_") || strings.HasPrefix(code, "UNKNOWN_")
}
