package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/selkies/backend/internal/domain/subscription"
)

// ErrStripeMissingWebhookSecret is returned when webhooks are enabled without a signing secret
var ErrStripeMissingWebhookSecret = errors.New("stripe: webhook signing secret is required")

// ErrWebhookSignature wraps every signature verification failure
var ErrWebhookSignature = errors.New("stripe: webhook signature verification failed")

// StripeWebhook verifies Stripe-Signature headers and decodes PaymentIntent events
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
}

// NewStripeWebhook creates a verifier for the endpoint's signing secret (whsec_...)
func NewStripeWebhook(secret string) (*StripeWebhook, error) {
	if secret == "" {
		return nil, ErrStripeMissingWebhookSecret
	}
	return &StripeWebhook{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Parse verifies payload against signature and maps it to a payment event.
// Event types other than PaymentIntent outcomes are returned with an empty Status.
func (w *StripeWebhook) Parse(payload []byte, signature string) (*subscription.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		Tolerance: w.tolerance,
		// Only stable PaymentIntent fields are read
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	out := &subscription.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case "payment_intent.succeeded":
		out.Status = subscription.PaymentStatusSucceeded
	case "payment_intent.payment_failed":
		out.Status = subscription.PaymentStatusFailed
	case "payment_intent.canceled":
		out.Status = subscription.PaymentStatusCanceled
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe: event %s has no data", event.ID)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("stripe: failed to decode payment intent in event %s: %w", event.ID, err)
	}
	out.PaymentID = intent.ID
	if raw, ok := intent.Metadata["plan_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			out.PlanID = id
		}
	}
	return out, nil
}
