package dto

import "net/http"

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
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
)

// Session error codes
const (
	// ErrCodeSessionRequired is used when a plan endpoint is called without a plan session
	ErrCodeSessionRequired = "ERR_SESSION_REQUIRED"
	// ErrCodeSessionExpired is used when the plan session is unknown or has expired
	ErrCodeSessionExpired = "ERR_SESSION_EXPIRED"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConcurrentUpdate is used when two requests edit the same plan at once
	ErrCodeConcurrentUpdate = "ERR_CONCURRENT_UPDATE"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for the plan's state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInvalidDeliveryDate is used for dates outside the delivery calendar
	ErrCodeInvalidDeliveryDate = "ERR_INVALID_DELIVERY_DATE"
	// ErrCodeUnserviceableAddress is used for postal codes outside the delivery area
	ErrCodeUnserviceableAddress = "ERR_UNSERVICEABLE_ADDRESS"
	// ErrCodeEmptySelection is used when a plan has nothing to deliver
	ErrCodeEmptySelection = "ERR_EMPTY_SELECTION"
	// ErrCodeCatalogUnavailable is used when the product catalog could not be loaded
	ErrCodeCatalogUnavailable = "ERR_CATALOG_UNAVAILABLE"
	// ErrCodePaymentFailed is used when the payment could not be created or verified
	ErrCodePaymentFailed = "ERR_PAYMENT_FAILED"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeSessionRequired: http.StatusUnauthorized,
	ErrCodeSessionExpired:  http.StatusNotFound,

	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeAlreadyExists:    http.StatusConflict,
	ErrCodeConcurrentUpdate: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:         http.StatusUnprocessableEntity,
	ErrCodeInvalidDeliveryDate:  http.StatusUnprocessableEntity,
	ErrCodeUnserviceableAddress: http.StatusUnprocessableEntity,
	ErrCodeEmptySelection:       http.StatusUnprocessableEntity,
	ErrCodeCatalogUnavailable:   http.StatusFailedDependency,
	ErrCodePaymentFailed:        http.StatusPaymentRequired,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"INVALID_DELIVERY_DATE": ErrCodeInvalidDeliveryDate,
	"UNSERVICEABLE_ADDRESS": ErrCodeUnserviceableAddress,
	"EMPTY_SELECTION":       ErrCodeEmptySelection,
	"CATALOG_UNAVAILABLE":   ErrCodeCatalogUnavailable,
	"PAYMENT_FAILED":        ErrCodePaymentFailed,
	"CONCURRENT_UPDATE":     ErrCodeConcurrentUpdate,
	"SESSION_EXPIRED":       ErrCodeSessionExpired,
	"VALIDATION_ERROR":      ErrCodeValidation,
	"INTERNAL_ERROR":        ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
