package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/logger"
)

// Stripe webhook bodies are small
const maxWebhookPayloadSize = 64 << 10

// PaymentEventParser verifies a provider webhook and decodes it
type PaymentEventParser interface {
	Parse(payload []byte, signature string) (*subscription.PaymentEvent, error)
}

// PaymentEventHandler applies a decoded payment event
type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, event subscription.PaymentEvent) error
}

// WebhookResponse is returned to the payment provider
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PaymentWebhookHandler receives Stripe webhooks. Stripe calls it directly,
// so it needs no plan session.
type PaymentWebhookHandler struct {
	parser PaymentEventParser
	events PaymentEventHandler
	seen   shared.IdempotencyStore
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(parser PaymentEventParser, events PaymentEventHandler, seen shared.IdempotencyStore) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{parser: parser, events: events, seen: seen}
}

// RegisterRoutes registers the webhook route
func (h *PaymentWebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.HandleStripe)
}

// HandleStripe verifies and applies one Stripe event. Deliveries already handled are
// acknowledged without being applied again. Business rejections are acknowledged too,
// since a retry cannot fix them; infrastructure errors return 500 so Stripe retries.
//
//	POST /api/v1/webhooks/stripe
func (h *PaymentWebhookHandler) HandleStripe(c *gin.Context) {
	log := logger.GetGinLogger(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Failed to read request body"})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, WebhookResponse{Message: "Payload too large"})
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, WebhookResponse{Message: "Missing Stripe-Signature header"})
		return
	}

	event, err := h.parser.Parse(payload, signature)
	if err != nil {
		log.Warn("Rejected webhook", zap.Error(err))
		c.JSON(http.StatusUnauthorized, WebhookResponse{Message: "Webhook signature verification failed"})
		return
	}
	resp := WebhookResponse{Received: true, EventID: event.ID, EventType: event.Type}
	ctx := c.Request.Context()

	first, err := h.seen.Claim(ctx, event.ID, shared.DefaultIdempotencyTTL)
	if err != nil {
		log.Error("Failed to record webhook delivery", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, WebhookResponse{EventID: event.ID, Message: "Try again later"})
		return
	}
	if !first {
		resp.Message = "Event already processed"
		c.JSON(http.StatusOK, resp)
		return
	}

	if err := h.events.HandlePaymentEvent(ctx, *event); err != nil {
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			log.Warn("Webhook event rejected",
				zap.String("event_id", event.ID),
				zap.String("code", domainErr.Code),
				zap.String("reason", domainErr.Message))
			resp.Message = "Event received but not applied"
			c.JSON(http.StatusOK, resp)
			return
		}

		if releaseErr := h.seen.Release(ctx, event.ID); releaseErr != nil {
			log.Warn("Failed to release webhook claim", zap.String("event_id", event.ID), zap.Error(releaseErr))
		}
		log.Error("Failed to apply webhook event", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, WebhookResponse{EventID: event.ID, Message: "Try again later"})
		return
	}

	resp.Message = "Event processed"
	c.JSON(http.StatusOK, resp)
}
