// Package credit holds the personal credit ledger: balances, the append-only
// transaction log, beta quotas and refund shortfalls awaiting review.
package credit

import (
	"fmt"
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
)

// Balance is a user's spendable personal credits.
// Invariants: Balance >= 0 and Balance == LifetimeEarned - LifetimeSpent.
type Balance struct {
	UserID         string
	Balance        int64
	LifetimeEarned int64
	LifetimeSpent  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBalance creates a zero balance for a user
func NewBalance(userID string) *Balance {
	now := time.Now()
	return &Balance{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Consistent reports whether both balance invariants hold
func (b *Balance) Consistent() bool {
	return b.Balance >= 0 && b.Balance == b.LifetimeEarned-b.LifetimeSpent
}

// CanAfford reports whether the balance covers cost
func (b *Balance) CanAfford(cost int64) bool {
	return b.Balance >= cost
}

// Verify returns an IntegrityError when an invariant is broken
func (b *Balance) Verify() error {
	if b.Balance < 0 {
		return shared.NewIntegrityError("balance_non_negative", "user:"+b.UserID,
			fmt.Sprintf("balance is %d", b.Balance))
	}
	if b.Balance != b.LifetimeEarned-b.LifetimeSpent {
		return shared.NewIntegrityError("balance_lifetime_consistency", "user:"+b.UserID,
			fmt.Sprintf("balance %d != earned %d - spent %d", b.Balance, b.LifetimeEarned, b.LifetimeSpent))
	}
	return nil
}
