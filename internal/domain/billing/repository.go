package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// AccountRepository persists billing accounts
type AccountRepository interface {
	// GetOrCreate returns the account for a user, creating a free one if missing
	GetOrCreate(ctx context.Context, userID string) (*Account, error)
	FindByUserID(ctx context.Context, userID string) (*Account, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Account, error)
	Update(ctx context.Context, account *Account) error
}

// UsageCounterRepository persists usage counters. Mutations are conditional
// updates so they stay correct under concurrent requests.
type UsageCounterRepository interface {
	// GetOrCreate returns the counter for (user, feature), creating a zero one if missing
	GetOrCreate(ctx context.Context, userID string, feature FeatureType) (*UsageCounter, error)
	FindByID(ctx context.Context, id uuid.UUID) (*UsageCounter, error)
	// ResetIfVersion zeroes the counter only if its version still matches.
	// Returns false when another writer reset it first.
	ResetIfVersion(ctx context.Context, id uuid.UUID, version int64, now time.Time) (bool, error)
	// IncrementIfBelow adds one use only if usage_count < limit.
	// Returns the updated counter, or nil when the cap is reached.
	IncrementIfBelow(ctx context.Context, id uuid.UUID, limit int64) (*UsageCounter, error)
	ListByUser(ctx context.Context, userID string) ([]*UsageCounter, error)
}

// ProcessedEventRepository persists the billing provider event log
type ProcessedEventRepository interface {
	// Save upserts the row keyed by (provider, provider_event_id)
	Save(ctx context.Context, event *ProcessedEvent) error
	FindByProviderEventID(ctx context.Context, provider, providerEventID string) (*ProcessedEvent, error)
	List(ctx context.Context, filter shared.Filter) ([]*ProcessedEvent, int64, error)
}
