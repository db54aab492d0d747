package payment

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"

	"github.com/selkies/backend/internal/infrastructure/config"
)

// StripeConfig holds configuration for the Stripe PaymentIntents gateway
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string
	// IsTestMode indicates if using Stripe test mode
	IsTestMode bool
	// Timeout bounds each HTTP call to Stripe
	Timeout time.Duration
	// MaxNetworkRetries is how often the client retries idempotent requests
	MaxNetworkRetries int64
}

// Errors for configuration validation
var (
	ErrStripeMissingSecretKey = errors.New("stripe: secret key is required")
	ErrStripeTestKeyMismatch  = errors.New("stripe: test mode enabled but secret key is not a test key")
	ErrStripeLiveKeyMismatch  = errors.New("stripe: live mode enabled but secret key is not a live key")
)

// NewStripeConfig builds the gateway configuration from the payment section
func NewStripeConfig(cfg config.PaymentConfig) *StripeConfig {
	return &StripeConfig{
		SecretKey:         cfg.StripeAPIKey,
		IsTestMode:        cfg.StripeTestMode,
		Timeout:           cfg.StripeTimeout,
		MaxNetworkRetries: 2,
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return ErrStripeMissingSecretKey
	}
	if c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_test") {
		return ErrStripeTestKeyMismatch
	}
	if !c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_live") {
		return ErrStripeLiveKeyMismatch
	}
	return nil
}

// backends returns Stripe backends honouring the configured timeout and retries
func (c *StripeConfig) backends() *stripe.Backends {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(c.MaxNetworkRetries),
	})
}
