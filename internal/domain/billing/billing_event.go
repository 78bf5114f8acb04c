package billing

import (
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
)

// EventKind is a provider-neutral billing event
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.completed"
	EventInvoicePaid         EventKind = "invoice.paid"
	EventSubscriptionUpdated EventKind = "subscription.updated"
	EventSubscriptionDeleted EventKind = "subscription.deleted"
	EventRefund              EventKind = "refund"
)

// BillingReasonSubscriptionCycle marks a renewal invoice
const BillingReasonSubscriptionCycle = "subscription_cycle"

// IsValid returns true if the kind is handled by the reconciler
func (k EventKind) IsValid() bool {
	switch k {
	case EventCheckoutCompleted, EventInvoicePaid, EventSubscriptionUpdated, EventSubscriptionDeleted, EventRefund:
		return true
	}
	return false
}

// BillingEvent is a billing provider notification after it has been decoded.
// ID is the provider's event id and drives idempotency.
type BillingEvent struct {
	ID                string
	Provider          string
	Kind              EventKind
	UserID            string
	CustomerID        string
	SubscriptionID    string
	Plan              PlanTier
	PackID            string
	Credits           int64
	AmountCents       int64
	Currency          string
	BillingReason     string
	Status            string
	CancelAtPeriodEnd bool
	TrialEndsAt       *time.Time
	CurrentPeriodEnd  *time.Time
}

// IdempotencyKey is the ledger key for credit movements caused by this event
func (e *BillingEvent) IdempotencyKey() string {
	return e.Provider + ":" + e.ID
}

// Validate checks the fields every event needs
func (e *BillingEvent) Validate() error {
	if e.ID == "" || e.Provider == "" {
		return shared.NewDomainError("INVALID_EVENT", "Event id and provider are required")
	}
	if !e.Kind.IsValid() {
		return shared.NewDomainError("INVALID_EVENT", "Unknown event kind: "+string(e.Kind))
	}
	if e.UserID == "" && e.CustomerID == "" {
		return shared.NewDomainError("INVALID_EVENT", "Event must identify a user or customer")
	}
	if e.Credits < 0 || e.AmountCents < 0 {
		return shared.NewDomainError("INVALID_EVENT", "Amounts cannot be negative")
	}
	return nil
}
