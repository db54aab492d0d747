package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same error code, so that errors built with
// NewDomainError match the sentinel values below via errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes used by the ordering engine
const (
	CodeInvalidDeliveryDate  = "INVALID_DELIVERY_DATE"
	CodeUnserviceableAddress = "UNSERVICEABLE_ADDRESS"
	CodeEmptySelection       = "EMPTY_SELECTION"
	CodeCatalogUnavailable   = "CATALOG_UNAVAILABLE"
	CodePaymentFailed        = "PAYMENT_FAILED"
	CodeConcurrentUpdate     = "CONCURRENT_UPDATE"
	CodeSessionExpired       = "SESSION_EXPIRED"
)

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "Operation not allowed in current state")

	ErrInvalidDeliveryDate  = NewDomainError(CodeInvalidDeliveryDate, "Date is not a valid delivery date")
	ErrUnserviceableAddress = NewDomainError(CodeUnserviceableAddress, "We do not deliver to this postal code yet")
	ErrEmptySelection       = NewDomainError(CodeEmptySelection, "Select at least one item before continuing")
	ErrCatalogUnavailable   = NewDomainError(CodeCatalogUnavailable, "Product catalog is temporarily unavailable")
	ErrPaymentFailed        = NewDomainError(CodePaymentFailed, "Payment could not be completed")
	ErrConcurrentUpdate     = NewDomainError(CodeConcurrentUpdate, "The plan was changed by another request, please retry")
	ErrSessionExpired       = NewDomainError(CodeSessionExpired, "Your plan session has expired, please start again")
)
