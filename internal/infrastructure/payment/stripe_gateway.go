package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
)

// StripeGateway implements subscription.PaymentGateway with Stripe PaymentIntents.
// The browser confirms the intent with its client secret; the server only creates,
// inspects and cancels intents.
type StripeGateway struct {
	config *StripeConfig
	api    *client.API
	logger *zap.Logger
}

// StripeGatewayOption configures a StripeGateway
type StripeGatewayOption func(*StripeGateway)

// WithBackends replaces the Stripe HTTP backends, mainly for tests
func WithBackends(backends *stripe.Backends) StripeGatewayOption {
	return func(g *StripeGateway) {
		g.api = client.New(g.config.SecretKey, backends)
	}
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(cfg *StripeConfig, logger *zap.Logger, opts ...StripeGatewayOption) (*StripeGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &StripeGateway{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.api == nil {
		g.api = client.New(cfg.SecretKey, cfg.backends())
	}
	return g, nil
}

// CreatePayment creates a PaymentIntent for the plan total
func (g *StripeGateway) CreatePayment(ctx context.Context, req *subscription.CreatePaymentRequest) (*subscription.CreatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(string(req.Currency))),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("plan_id", req.PlanID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	g.logger.Debug("Creating Stripe payment intent",
		zap.String("plan_id", req.PlanID.String()),
		zap.Int64("amount", req.AmountMinor),
		zap.String("currency", string(req.Currency)))

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe payment intent",
			zap.String("plan_id", req.PlanID.String()),
			zap.Error(err))
		return nil, wrapStripeError("create payment intent", err)
	}

	g.logger.Info("Created Stripe payment intent",
		zap.String("plan_id", req.PlanID.String()),
		zap.String("payment_id", pi.ID),
		zap.String("status", string(pi.Status)))

	return &subscription.CreatePaymentResponse{
		PaymentID:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapIntentStatus(pi),
	}, nil
}

// QueryPayment fetches the PaymentIntent and reports its state
func (g *StripeGateway) QueryPayment(ctx context.Context, paymentID string) (*subscription.PaymentResult, error) {
	if err := validatePaymentID(paymentID); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(paymentID, params)
	if err != nil {
		g.logger.Error("Failed to get Stripe payment intent",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, wrapStripeError("get payment intent", err)
	}

	result := &subscription.PaymentResult{
		PaymentID:    pi.ID,
		Status:       mapIntentStatus(pi),
		AmountMinor:  pi.Amount,
		Currency:     valueobject.Currency(strings.ToUpper(string(pi.Currency))),
		Confirmation: pi.ID,
	}
	if pi.LastPaymentError != nil {
		result.FailureMessage = pi.LastPaymentError.Msg
	}
	return result, nil
}

// CancelPayment cancels a PaymentIntent that has not succeeded
func (g *StripeGateway) CancelPayment(ctx context.Context, paymentID string) error {
	if err := validatePaymentID(paymentID); err != nil {
		return err
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(paymentID, params); err != nil {
		g.logger.Error("Failed to cancel Stripe payment intent",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return wrapStripeError("cancel payment intent", err)
	}

	g.logger.Info("Cancelled Stripe payment intent", zap.String("payment_id", paymentID))
	return nil
}

var _ subscription.PaymentGateway = (*StripeGateway)(nil)

func validatePaymentID(id string) error {
	if !strings.HasPrefix(id, "pi_") {
		return subscription.ErrPaymentInvalidID
	}
	return nil
}

// mapIntentStatus maps a PaymentIntent onto the gateway-neutral status.
// An intent sent back to requires_payment_method after an attempt has failed.
func mapIntentStatus(pi *stripe.PaymentIntent) subscription.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return subscription.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return subscription.PaymentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return subscription.PaymentStatusFailed
		}
		return subscription.PaymentStatusPending
	default:
		return subscription.PaymentStatusPending
	}
}

func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("stripe: %s: %w", op, subscription.ErrPaymentNotFound)
		}
		return fmt.Errorf("stripe: %s: %w: %s", op, subscription.ErrGatewayRequestFailed, stripeErr.Msg)
	}
	return fmt.Errorf("stripe: %s: %w: %v", op, subscription.ErrGatewayRequestFailed, err)
}
