package payment

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/selkies/backend/internal/domain/subscription"
)

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func intentEvent(eventType, intentID, planID string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent","metadata":{"plan_id":%q}}}}`,
		eventType, intentID, planID)
}

func TestNewStripeWebhook(t *testing.T) {
	_, err := NewStripeWebhook("")
	assert.ErrorIs(t, err, ErrStripeMissingWebhookSecret)

	w, err := NewStripeWebhook(testWebhookSecret)
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestStripeWebhook_Parse(t *testing.T) {
	w, err := NewStripeWebhook(testWebhookSecret)
	require.NoError(t, err)
	planID := uuid.New()

	tests := []struct {
		eventType string
		want      subscription.PaymentStatus
	}{
		{"payment_intent.succeeded", subscription.PaymentStatusSucceeded},
		{"payment_intent.payment_failed", subscription.PaymentStatusFailed},
		{"payment_intent.canceled", subscription.PaymentStatusCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			body, header := signedEvent(t, intentEvent(tt.eventType, "pi_123", planID.String()))

			ev, err := w.Parse(body, header)
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, tt.eventType, ev.Type)
			assert.Equal(t, tt.want, ev.Status)
			assert.Equal(t, "pi_123", ev.PaymentID)
			assert.Equal(t, planID, ev.PlanID)
		})
	}

	t.Run("unrelated event type", func(t *testing.T) {
		body, header := signedEvent(t, `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

		ev, err := w.Parse(body, header)
		require.NoError(t, err)
		assert.Equal(t, "customer.created", ev.Type)
		assert.Empty(t, ev.Status)
		assert.Empty(t, ev.PaymentID)
	})

	t.Run("missing or malformed plan id", func(t *testing.T) {
		body, header := signedEvent(t, intentEvent("payment_intent.succeeded", "pi_9", "not-a-uuid"))

		ev, err := w.Parse(body, header)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, ev.PlanID)
	})

	t.Run("bad signature", func(t *testing.T) {
		body, _ := signedEvent(t, intentEvent("payment_intent.succeeded", "pi_123", planID.String()))

		_, err := w.Parse(body, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, ErrWebhookSignature)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := NewStripeWebhook("whsec_other")
		require.NoError(t, err)
		body, header := signedEvent(t, intentEvent("payment_intent.succeeded", "pi_123", planID.String()))

		_, err = other.Parse(body, header)
		assert.ErrorIs(t, err, ErrWebhookSignature)
	})
}
