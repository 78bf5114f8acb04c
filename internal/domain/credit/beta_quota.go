package credit

import (
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
)

// BetaQuota is a non-monetary usage allowance granted to beta testers, with a
// narrower sub-limit for Kling video calls.
type BetaQuota struct {
	UserID     string
	TotalQuota int64
	UsedCount  int64
	BonusQuota int64
	KlingLimit int64
	KlingUsed  int64
	IsActive   bool
	GrantedBy  string
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewBetaQuota creates an active quota for a user
func NewBetaQuota(userID string, total, klingLimit int64, grantedBy string) (*BetaQuota, error) {
	if userID == "" {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if total < 0 || klingLimit < 0 {
		return nil, shared.NewDomainError("INVALID_QUOTA", "Quota values cannot be negative")
	}
	now := time.Now()
	return &BetaQuota{
		UserID:     userID,
		TotalQuota: total,
		KlingLimit: klingLimit,
		IsActive:   true,
		GrantedBy:  grantedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Remaining returns uses left across the base and bonus allowance
func (q *BetaQuota) Remaining() int64 {
	left := q.TotalQuota + q.BonusQuota - q.UsedCount
	if left < 0 {
		return 0
	}
	return left
}

// KlingRemaining returns Kling uses left
func (q *BetaQuota) KlingRemaining() int64 {
	left := q.KlingLimit - q.KlingUsed
	if left < 0 {
		return 0
	}
	return left
}

// CanConsume reports whether one more use (optionally a Kling use) fits
func (q *BetaQuota) CanConsume(kling bool) bool {
	if !q.IsActive || q.Remaining() == 0 {
		return false
	}
	return !kling || q.KlingRemaining() > 0
}

// Deactivate stops the quota from being consumed
func (q *BetaQuota) Deactivate() {
	q.IsActive = false
	q.UpdatedAt = time.Now()
}
