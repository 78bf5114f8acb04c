package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingapp "github.com/mvstudio/backend/internal/application/billing"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultWebhookMaxBodySize caps webhook payloads; Stripe events are small
const DefaultWebhookMaxBodySize int64 = 64 << 10

// WebhookProcessor verifies and applies a provider webhook
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error)
}

// StripeWebhookHandler receives Stripe webhooks. It is unauthenticated; the
// signature is the credential.
type StripeWebhookHandler struct {
	BaseHandler
	processor   WebhookProcessor
	maxBodySize int64
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor, maxBodySize int64) *StripeWebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultWebhookMaxBodySize
	}
	return &StripeWebhookHandler{processor: processor, maxBodySize: maxBodySize}
}

// StripeWebhookResponse is the acknowledgement sent back to Stripe
type StripeWebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleStripeWebhook handles POST /webhooks/stripe.
//
// Stripe retries every non-2xx answer. Failures a retry can fix, such as a
// database outage, answer 500; events that can never apply are acknowledged.
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Failed to read request body"})
		return
	}
	if int64(len(payload)) > h.maxBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, StripeWebhookResponse{Message: "Payload too large"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Missing Stripe-Signature header"})
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		log := logger.GetGinLogger(c)
		var domainErr *shared.DomainError
		switch {
		case errors.Is(err, billingapp.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Webhook signature verification failed"})
		case errors.As(err, &domainErr):
			log.Warn("Webhook event rejected", zap.String("code", domainErr.Code), zap.Error(err))
			c.JSON(http.StatusOK, StripeWebhookResponse{Received: true, Message: "Event rejected: " + domainErr.Code})
		default:
			log.Error("Webhook processing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, StripeWebhookResponse{Message: "Webhook processing failed"})
		}
		return
	}

	resp := StripeWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Message:   result.Message,
	}
	if result.Result != nil && result.Message == "" {
		resp.Message = result.Result.Message
	}
	c.JSON(http.StatusOK, resp)
}
