package dto

import (
	"net/http"
	"strings"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeRateLimited is used when a tenant exceeds its request allowance
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInsufficientBalance is used when an open item cannot absorb a settlement
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
	// ErrCodeUnbalancedSettlement is used when a save leaves money unapplied
	ErrCodeUnbalancedSettlement = "ERR_UNBALANCED_SETTLEMENT"
	// ErrCodeDuplicateDocument is used when a counterparty has two documents with one number
	ErrCodeDuplicateDocument = "ERR_DUPLICATE_DOCUMENT"
	// ErrCodeSettlementLocked is used when the session mode forbids the change
	ErrCodeSettlementLocked = "ERR_SETTLEMENT_LOCKED"
	// ErrCodeRecordMismatch is used when an EDIT session no longer matches its record
	ErrCodeRecordMismatch = "ERR_RECORD_MISMATCH"
	// ErrCodeInvalidSnapshot is used when a stored session cannot be restored
	ErrCodeInvalidSnapshot = "ERR_INVALID_SNAPSHOT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidTenant is used when the tenant header is not a UUID
	ErrCodeInvalidTenant = "ERR_INVALID_TENANT"
	// ErrCodeDocumentNotFound is used when a document is not part of the session
	ErrCodeDocumentNotFound = "ERR_DOCUMENT_NOT_FOUND"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation: http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeDocumentNotFound:    http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeSettlementLocked:    http.StatusConflict,
	ErrCodeRecordMismatch:      http.StatusConflict,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:         http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance:  http.StatusUnprocessableEntity,
	ErrCodeUnbalancedSettlement: http.StatusUnprocessableEntity,
	ErrCodeDuplicateDocument:    http.StatusUnprocessableEntity,

	ErrCodeInvalidSnapshot: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidInput:  http.StatusBadRequest,
	ErrCodeInvalidTenant: http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unlisted ERR_INVALID_* codes are input errors; anything else unknown is a 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "ERR_INVALID_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes whose API code is not simply ERR_<code>
var DomainErrorCodeMapping = map[string]string{
	"INVARIANT_VIOLATION": ErrCodeInternal,
	"INTERNAL_ERROR":      ErrCodeInternal,
	"VALIDATION_ERROR":    ErrCodeValidation,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the ERR_ format are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	if code == "" {
		return ErrCodeUnknown
	}
	if strings.HasPrefix(code, "ERR_") {
		return code
	}
	return "ERR_" + code
}
