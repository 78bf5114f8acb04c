package billing

import (
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
)

// Account is the billing view of a user. It is created lazily on first use and
// never hard-deleted.
type Account struct {
	UserID               string
	Plan                 PlanTier
	StripeCustomerID     *string
	StripeSubscriptionID *string
	TrialEndsAt          *time.Time
	CancelAtPeriodEnd    bool
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewAccount creates a free account for a user
func NewAccount(userID string) (*Account, error) {
	if userID == "" {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	now := time.Now()
	return &Account{
		UserID:    userID,
		Plan:      PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ChangePlan moves the account to another tier
func (a *Account) ChangePlan(tier PlanTier) error {
	if !tier.IsValid() {
		return shared.NewDomainError("INVALID_PLAN", "Unknown plan tier: "+string(tier))
	}
	a.Plan = tier
	a.UpdatedAt = time.Now()
	return nil
}

// AttachSubscription stores the billing provider references of an active subscription
func (a *Account) AttachSubscription(customerID, subscriptionID string) {
	if customerID != "" {
		a.StripeCustomerID = &customerID
	}
	if subscriptionID != "" {
		a.StripeSubscriptionID = &subscriptionID
	}
	a.UpdatedAt = time.Now()
}

// UpdateSubscriptionState records cancellation and period information
func (a *Account) UpdateSubscriptionState(cancelAtPeriodEnd bool, trialEndsAt, currentPeriodEnd *time.Time) {
	a.CancelAtPeriodEnd = cancelAtPeriodEnd
	a.TrialEndsAt = trialEndsAt
	a.CurrentPeriodEnd = currentPeriodEnd
	a.UpdatedAt = time.Now()
}

// Downgrade returns the account to the free tier. Existing credits are kept.
func (a *Account) Downgrade() {
	a.Plan = PlanFree
	a.StripeSubscriptionID = nil
	a.CancelAtPeriodEnd = false
	a.TrialEndsAt = nil
	a.CurrentPeriodEnd = nil
	a.UpdatedAt = time.Now()
}

// IsTrialing reports whether a trial is still running at now
func (a *Account) IsTrialing(now time.Time) bool {
	return a.TrialEndsAt != nil && now.Before(*a.TrialEndsAt)
}
