package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// ---------------------------------------------------------------------------
// Payment Gateway Errors
// ---------------------------------------------------------------------------

var (
	ErrPaymentInvalidAmount   = errors.New("payment: invalid payment amount")
	ErrPaymentInvalidCurrency = errors.New("payment: invalid currency")
	ErrPaymentInvalidID       = errors.New("payment: invalid payment ID")
	ErrPaymentNotFound        = errors.New("payment: payment not found")
	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayRequestFailed   = errors.New("payment: gateway request failed")
)

// PaymentStatus is the gateway-reported state of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusCanceled  PaymentStatus = "CANCELED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsValid returns true if the payment status is known
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusCanceled, PaymentStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// CreatePaymentRequest asks the gateway to collect an amount
type CreatePaymentRequest struct {
	// PlanID identifies the plan being paid for
	PlanID uuid.UUID
	// AmountMinor is the amount in the currency's minor unit
	AmountMinor int64
	// Currency of the amount
	Currency valueobject.Currency
	// Description is shown to the customer
	Description string
	// IdempotencyKey makes retries of one checkout attempt return the same payment
	IdempotencyKey string
}

// Validate validates the request
func (r *CreatePaymentRequest) Validate() error {
	if r.AmountMinor <= 0 {
		return ErrPaymentInvalidAmount
	}
	if r.Currency == "" {
		return ErrPaymentInvalidCurrency
	}
	return nil
}

// CreatePaymentResponse is returned when a payment has been created
type CreatePaymentResponse struct {
	// PaymentID is the gateway's identifier of the payment
	PaymentID string
	// ClientSecret lets the browser confirm the payment directly with the gateway
	ClientSecret string
	Status       PaymentStatus
}

// PaymentResult is the verified state of a payment
type PaymentResult struct {
	PaymentID   string
	Status      PaymentStatus
	AmountMinor int64
	Currency    valueobject.Currency
	// Confirmation is the opaque reference stored with the order
	Confirmation string
	// FailureMessage is set when the payment failed
	FailureMessage string
}

// PaymentGateway defines the port to the external payment collaborator.
// Implementations live in the infrastructure layer.
type PaymentGateway interface {
	// CreatePayment creates a payment for the customer to complete
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error)

	// QueryPayment returns the current state of a payment as reported by the gateway
	QueryPayment(ctx context.Context, paymentID string) (*PaymentResult, error)

	// CancelPayment cancels a payment that has not completed
	CancelPayment(ctx context.Context, paymentID string) error
}

// PaymentEvent is an asynchronous notification from the payment provider.
// Providers deliver notifications at least once, so handlers must tolerate repeats.
type PaymentEvent struct {
	ID        string
	Type      string
	PaymentID string
	// PlanID is uuid.Nil when the payment was not created by a plan checkout
	PlanID uuid.UUID
	// Status is empty for event types that do not change a payment's outcome
	Status PaymentStatus
}
