package billing

import (
	"time"

	"github.com/google/uuid"
)

// UsageCounter tracks free uses of one feature by one user in the current cycle.
// Version guards the lazy reset so that concurrent readers reset at most once.
type UsageCounter struct {
	ID          uuid.UUID
	UserID      string
	Feature     FeatureType
	UsageCount  int64
	LastResetAt time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewUsageCounter creates a zeroed counter starting a cycle at now
func NewUsageCounter(userID string, feature FeatureType, now time.Time) *UsageCounter {
	return &UsageCounter{
		ID:          uuid.New(),
		UserID:      userID,
		Feature:     feature,
		UsageCount:  0,
		LastResetAt: now,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NeedsReset reports whether at least cycleMonths calendar months have passed
// since the last reset.
func (c *UsageCounter) NeedsReset(now time.Time, cycleMonths int) bool {
	if cycleMonths < 1 {
		cycleMonths = 1
	}
	return monthsBetween(c.LastResetAt, now) >= cycleMonths
}

// Remaining returns how many uses are left under limit
func (c *UsageCounter) Remaining(limit int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	if c.UsageCount >= limit {
		return 0
	}
	return limit - c.UsageCount
}

// NextResetAt returns the first instant at which the counter becomes stale
func (c *UsageCounter) NextResetAt(cycleMonths int) time.Time {
	if cycleMonths < 1 {
		cycleMonths = 1
	}
	y, m, _ := c.LastResetAt.Date()
	return time.Date(y, m+time.Month(cycleMonths), 1, 0, 0, 0, 0, c.LastResetAt.Location())
}

func monthsBetween(from, to time.Time) int {
	to = to.In(from.Location())
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
