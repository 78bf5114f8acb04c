package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mvstudio/backend/internal/domain/billing"
	infrabilling "github.com/mvstudio/backend/internal/infrastructure/billing"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// BillingEventHandler applies decoded billing events
type BillingEventHandler interface {
	HandleEvent(ctx context.Context, event *billing.BillingEvent) (*ReconcileResult, error)
}

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// StripeWebhookService verifies Stripe webhooks and hands them to the reconciler
type StripeWebhookService struct {
	config  *infrabilling.StripeConfig
	handler BillingEventHandler
	logger  *zap.Logger
}

// StripeWebhookServiceConfig contains configuration for StripeWebhookService
type StripeWebhookServiceConfig struct {
	Config  *infrabilling.StripeConfig
	Handler BillingEventHandler
	Logger  *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(cfg StripeWebhookServiceConfig) *StripeWebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeWebhookService{
		config:  cfg.Config,
		handler: cfg.Handler,
		logger:  logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Processed bool             `json:"processed"`
	Message   string           `json:"message,omitempty"`
	Result    *ReconcileResult `json:"result,omitempty"`
}

// ProcessWebhook verifies and applies a Stripe webhook. Event types the ledger
// does not care about are acknowledged without processing.
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: s.config.IgnoreAPIVersionMismatch})
	if err != nil {
		s.logger.Warn("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	billingEvent, err := s.decode(event)
	if err != nil {
		s.logger.Error("Failed to decode webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return nil, err
	}
	if billingEvent == nil {
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
		return result, nil
	}
	if billingEvent.UserID == "" && billingEvent.CustomerID == "" {
		s.logger.Warn("Webhook event identifies no user or customer, skipping",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		result.Message = "No user or customer on event"
		return result, nil
	}

	reconciled, err := s.handler.HandleEvent(ctx, billingEvent)
	if err != nil {
		return nil, err
	}
	result.Processed = true
	result.Result = reconciled
	return result, nil
}

// decode maps a Stripe event onto a BillingEvent. It returns nil for event
// types the ledger ignores.
func (s *StripeWebhookService) decode(event stripe.Event) (*billing.BillingEvent, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	base := &billing.BillingEvent{ID: event.ID, Provider: infrabilling.ProviderStripe}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		return s.fromCheckout(base, &session), nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		base.Kind = billing.EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			base.Kind = billing.EventSubscriptionDeleted
		}
		return s.fromSubscription(base, &sub), nil

	case "invoice.paid":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
		}
		base.Kind = billing.EventInvoicePaid
		base.CustomerID = customerID(invoice.Customer)
		if invoice.Subscription != nil {
			base.SubscriptionID = invoice.Subscription.ID
		}
		base.BillingReason = string(invoice.BillingReason)
		base.AmountCents = invoice.AmountPaid
		base.Currency = string(invoice.Currency)
		base.Status = string(invoice.Status)
		base.CurrentPeriodEnd = unixTime(invoice.PeriodEnd)
		return base, nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal charge: %w", err)
		}
		base.Kind = billing.EventRefund
		base.CustomerID = customerID(charge.Customer)
		base.UserID = charge.Metadata[infrabilling.MetadataUserID]
		base.AmountCents = charge.AmountRefunded
		base.Currency = string(charge.Currency)
		return base, nil
	}
	return nil, nil
}

func (s *StripeWebhookService) fromCheckout(base *billing.BillingEvent, session *stripe.CheckoutSession) *billing.BillingEvent {
	base.Kind = billing.EventCheckoutCompleted
	base.UserID = session.Metadata[infrabilling.MetadataUserID]
	if base.UserID == "" {
		base.UserID = session.ClientReferenceID
	}
	base.CustomerID = customerID(session.Customer)
	if session.Subscription != nil {
		base.SubscriptionID = session.Subscription.ID
	}
	base.AmountCents = session.AmountTotal
	base.Currency = string(session.Currency)
	base.Status = string(session.PaymentStatus)

	if session.Mode == stripe.CheckoutSessionModeSubscription {
		base.Plan = billing.PlanTier(session.Metadata[infrabilling.MetadataPlanID])
		return base
	}
	base.PackID = session.Metadata[infrabilling.MetadataPackID]
	if raw := session.Metadata["credits"]; raw != "" {
		if credits, err := strconv.ParseInt(raw, 10, 64); err == nil && credits > 0 {
			base.Credits = credits
		}
	}
	return base
}

func (s *StripeWebhookService) fromSubscription(base *billing.BillingEvent, sub *stripe.Subscription) *billing.BillingEvent {
	base.UserID = sub.Metadata[infrabilling.MetadataUserID]
	base.CustomerID = customerID(sub.Customer)
	base.SubscriptionID = sub.ID
	base.Status = string(sub.Status)
	base.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	base.TrialEndsAt = unixTime(sub.TrialEnd)
	base.CurrentPeriodEnd = unixTime(sub.CurrentPeriodEnd)

	if planID := sub.Metadata[infrabilling.MetadataPlanID]; planID != "" {
		base.Plan = billing.PlanTier(planID)
	} else if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if plan, ok := s.config.PlanForPrice(item.Price.ID); ok {
				base.Plan = plan
				break
			}
		}
	}
	return base
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
