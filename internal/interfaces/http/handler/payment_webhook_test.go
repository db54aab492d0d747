package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/cache"
)

// stubParser accepts the signature "good" only
type stubParser struct {
	event subscription.PaymentEvent
}

func (p stubParser) Parse(_ []byte, signature string) (*subscription.PaymentEvent, error) {
	if signature != "good" {
		return nil, errors.New("bad signature")
	}
	ev := p.event
	return &ev, nil
}

// MockPaymentEventHandler is a mock implementation of PaymentEventHandler
type MockPaymentEventHandler struct {
	mock.Mock
}

func (m *MockPaymentEventHandler) HandlePaymentEvent(ctx context.Context, event subscription.PaymentEvent) error {
	return m.Called(ctx, event).Error(0)
}

func newWebhookRouter(t *testing.T, events PaymentEventHandler) *gin.Engine {
	t.Helper()
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	parser := stubParser{event: subscription.PaymentEvent{
		ID: "evt_1", Type: "payment_intent.succeeded", PaymentID: "pi_1", PlanID: uuid.New(),
		Status: subscription.PaymentStatusSucceeded,
	}}
	r := gin.New()
	NewPaymentWebhookHandler(parser, events, store).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postWebhook(r *gin.Engine, signature, body string) (*httptest.ResponseRecorder, WebhookResponse) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp WebhookResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestPaymentWebhookHandler_Signature(t *testing.T) {
	events := new(MockPaymentEventHandler)
	r := newWebhookRouter(t, events)

	w, resp := postWebhook(r, "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Received)

	w, _ = postWebhook(r, "forged", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = postWebhook(r, "good", strings.Repeat("x", maxWebhookPayloadSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	events.AssertNotCalled(t, "HandlePaymentEvent", mock.Anything, mock.Anything)
}

func TestPaymentWebhookHandler_ProcessesOnce(t *testing.T) {
	events := new(MockPaymentEventHandler)
	events.On("HandlePaymentEvent", mock.Anything, mock.MatchedBy(func(ev subscription.PaymentEvent) bool {
		return ev.ID == "evt_1" && ev.PaymentID == "pi_1"
	})).Return(nil).Once()
	r := newWebhookRouter(t, events)

	w, resp := postWebhook(r, "good", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Received)
	assert.Equal(t, "evt_1", resp.EventID)
	assert.Equal(t, "payment_intent.succeeded", resp.EventType)
	assert.Equal(t, "Event processed", resp.Message)

	w, resp = postWebhook(r, "good", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Event already processed", resp.Message)

	events.AssertNumberOfCalls(t, "HandlePaymentEvent", 1)
}

func TestPaymentWebhookHandler_Failures(t *testing.T) {
	t.Run("business rejection is acknowledged", func(t *testing.T) {
		events := new(MockPaymentEventHandler)
		events.On("HandlePaymentEvent", mock.Anything, mock.Anything).
			Return(shared.NewDomainError(shared.CodePaymentFailed, "Payment amount does not match the plan total")).Once()
		r := newWebhookRouter(t, events)

		w, resp := postWebhook(r, "good", `{}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Received)
		assert.Equal(t, "Event received but not applied", resp.Message)

		// Not retried internally either
		w, resp = postWebhook(r, "good", `{}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Event already processed", resp.Message)
		events.AssertNumberOfCalls(t, "HandlePaymentEvent", 1)
	})

	t.Run("infrastructure error asks for a retry", func(t *testing.T) {
		events := new(MockPaymentEventHandler)
		events.On("HandlePaymentEvent", mock.Anything, mock.Anything).Return(errors.New("database down")).Once()
		events.On("HandlePaymentEvent", mock.Anything, mock.Anything).Return(nil).Once()
		r := newWebhookRouter(t, events)

		w, resp := postWebhook(r, "good", `{}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.False(t, resp.Received)

		// The claim was released, so the redelivery is applied
		w, resp = postWebhook(r, "good", `{}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Event processed", resp.Message)
		events.AssertNumberOfCalls(t, "HandlePaymentEvent", 2)
	})
}
