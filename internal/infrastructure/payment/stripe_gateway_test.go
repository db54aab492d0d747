package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/config"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	data, err := m.handler(method, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

func testConfig() *StripeConfig {
	return &StripeConfig{SecretKey: "sk_test_123456789", IsTestMode: true, Timeout: 5 * time.Second}
}

func newTestGateway(t *testing.T, handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)) *StripeGateway {
	t.Helper()
	mock := &mockBackend{handler: handler}
	g, err := NewStripeGateway(testConfig(), zap.NewNop(),
		WithBackends(&stripe.Backends{API: mock, Connect: mock, Uploads: mock}))
	require.NoError(t, err)
	return g
}

func intentJSON(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	base := map[string]any{
		"id":            "pi_123",
		"object":        "payment_intent",
		"amount":        15000,
		"currency":      "inr",
		"client_secret": "pi_123_secret_abc",
		"status":        "requires_payment_method",
	}
	for k, v := range fields {
		base[k] = v
	}
	b, err := json.Marshal(base)
	require.NoError(t, err)
	return b
}

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StripeConfig
		wantErr error
	}{
		{"valid test key", StripeConfig{SecretKey: "sk_test_abc", IsTestMode: true}, nil},
		{"valid live key", StripeConfig{SecretKey: "sk_live_abc"}, nil},
		{"missing key", StripeConfig{IsTestMode: true}, ErrStripeMissingSecretKey},
		{"test mode with live key", StripeConfig{SecretKey: "sk_live_abc", IsTestMode: true}, ErrStripeTestKeyMismatch},
		{"live mode with test key", StripeConfig{SecretKey: "sk_test_abc"}, ErrStripeLiveKeyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewStripeConfig(t *testing.T) {
	cfg := NewStripeConfig(config.PaymentConfig{
		Provider:       "stripe",
		StripeAPIKey:   "sk_test_x",
		StripeTestMode: true,
		StripeTimeout:  10 * time.Second,
	})
	assert.Equal(t, "sk_test_x", cfg.SecretKey)
	assert.True(t, cfg.IsTestMode)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewStripeGateway_InvalidConfig(t *testing.T) {
	_, err := NewStripeGateway(&StripeConfig{}, nil)
	assert.ErrorIs(t, err, ErrStripeMissingSecretKey)
}

func TestStripeGateway_CreatePayment(t *testing.T) {
	planID := uuid.New()

	t.Run("creates intent with amount, currency and idempotency key", func(t *testing.T) {
		var captured *stripe.PaymentIntentParams
		g := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
			assert.Equal(t, http.MethodPost, method)
			assert.Equal(t, "/v1/payment_intents", path)
			captured = params.(*stripe.PaymentIntentParams)
			return intentJSON(t, nil), nil
		})

		resp, err := g.CreatePayment(context.Background(), &subscription.CreatePaymentRequest{
			PlanID:         planID,
			AmountMinor:    15000,
			Currency:       "INR",
			Description:    "Recurring bakery delivery",
			IdempotencyKey: planID.String() + "-15000",
		})
		require.NoError(t, err)
		assert.Equal(t, "pi_123", resp.PaymentID)
		assert.Equal(t, "pi_123_secret_abc", resp.ClientSecret)
		assert.Equal(t, subscription.PaymentStatusPending, resp.Status)

		require.NotNil(t, captured)
		assert.Equal(t, int64(15000), *captured.Amount)
		assert.Equal(t, "inr", *captured.Currency)
		assert.Equal(t, "Recurring bakery delivery", *captured.Description)
		assert.Equal(t, planID.String(), captured.Metadata["plan_id"])
		require.NotNil(t, captured.IdempotencyKey)
		assert.Equal(t, planID.String()+"-15000", *captured.IdempotencyKey)
		assert.True(t, *captured.AutomaticPaymentMethods.Enabled)
	})

	t.Run("rejects invalid request without calling stripe", func(t *testing.T) {
		g := newTestGateway(t, func(string, string, stripe.ParamsContainer) ([]byte, error) {
			t.Fatal("stripe must not be called")
			return nil, nil
		})
		_, err := g.CreatePayment(context.Background(), &subscription.CreatePaymentRequest{
			PlanID: planID, AmountMinor: 0, Currency: "INR",
		})
		assert.ErrorIs(t, err, subscription.ErrPaymentInvalidAmount)
	})

	t.Run("stripe error is wrapped", func(t *testing.T) {
		g := newTestGateway(t, func(string, string, stripe.ParamsContainer) ([]byte, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."}
		})
		_, err := g.CreatePayment(context.Background(), &subscription.CreatePaymentRequest{
			PlanID: planID, AmountMinor: 100, Currency: "INR",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, subscription.ErrGatewayRequestFailed)
		assert.Contains(t, err.Error(), "Your card was declined.")
	})
}

func TestStripeGateway_QueryPayment(t *testing.T) {
	tests := []struct {
		name        string
		fields      map[string]any
		wantStatus  subscription.PaymentStatus
		wantFailure string
	}{
		{"succeeded", map[string]any{"status": "succeeded"}, subscription.PaymentStatusSucceeded, ""},
		{"canceled", map[string]any{"status": "canceled"}, subscription.PaymentStatusCanceled, ""},
		{"processing", map[string]any{"status": "processing"}, subscription.PaymentStatusPending, ""},
		{"requires action", map[string]any{"status": "requires_action"}, subscription.PaymentStatusPending, ""},
		{"not yet attempted", map[string]any{"status": "requires_payment_method"}, subscription.PaymentStatusPending, ""},
		{
			"declined attempt",
			map[string]any{
				"status":             "requires_payment_method",
				"last_payment_error": map[string]any{"message": "Your card has insufficient funds."},
			},
			subscription.PaymentStatusFailed,
			"Your card has insufficient funds.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(method, path string, _ stripe.ParamsContainer) ([]byte, error) {
				assert.Equal(t, http.MethodGet, method)
				assert.Equal(t, "/v1/payment_intents/pi_123", path)
				return intentJSON(t, tt.fields), nil
			})

			res, err := g.QueryPayment(context.Background(), "pi_123")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, int64(15000), res.AmountMinor)
			assert.Equal(t, "INR", string(res.Currency))
			assert.Equal(t, "pi_123", res.Confirmation)
			assert.Equal(t, tt.wantFailure, res.FailureMessage)
		})
	}
}

func TestStripeGateway_QueryPayment_Errors(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		g := newTestGateway(t, nil)
		_, err := g.QueryPayment(context.Background(), "ch_123")
		assert.ErrorIs(t, err, subscription.ErrPaymentInvalidID)
	})

	t.Run("missing intent", func(t *testing.T) {
		g := newTestGateway(t, func(string, string, stripe.ParamsContainer) ([]byte, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
		})
		_, err := g.QueryPayment(context.Background(), "pi_missing")
		assert.ErrorIs(t, err, subscription.ErrPaymentNotFound)
	})

	t.Run("network failure", func(t *testing.T) {
		g := newTestGateway(t, func(string, string, stripe.ParamsContainer) ([]byte, error) {
			return nil, errors.New("connection reset by peer")
		})
		_, err := g.QueryPayment(context.Background(), "pi_123")
		assert.ErrorIs(t, err, subscription.ErrGatewayRequestFailed)
	})
}

func TestStripeGateway_CancelPayment(t *testing.T) {
	t.Run("cancels with abandoned reason", func(t *testing.T) {
		var captured *stripe.PaymentIntentCancelParams
		g := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
			assert.Equal(t, http.MethodPost, method)
			assert.Equal(t, "/v1/payment_intents/pi_123/cancel", path)
			captured = params.(*stripe.PaymentIntentCancelParams)
			return intentJSON(t, map[string]any{"status": "canceled"}), nil
		})

		require.NoError(t, g.CancelPayment(context.Background(), "pi_123"))
		require.NotNil(t, captured)
		assert.Equal(t, "abandoned", *captured.CancellationReason)
	})

	t.Run("stripe refuses", func(t *testing.T) {
		g := newTestGateway(t, func(string, string, stripe.ParamsContainer) ([]byte, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "already succeeded"}
		})
		err := g.CancelPayment(context.Background(), "pi_123")
		assert.ErrorIs(t, err, subscription.ErrGatewayRequestFailed)
	})

	t.Run("invalid id", func(t *testing.T) {
		g := newTestGateway(t, nil)
		assert.ErrorIs(t, g.CancelPayment(context.Background(), ""), subscription.ErrPaymentInvalidID)
	})
}
