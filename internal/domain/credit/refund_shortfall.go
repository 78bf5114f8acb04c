package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// ShortfallStatus tracks manual review of a refund that could not be fully clawed back
type ShortfallStatus string

const (
	ShortfallPending  ShortfallStatus = "pending"
	ShortfallResolved ShortfallStatus = "resolved"
	ShortfallWaived   ShortfallStatus = "waived"
)

// IsValid returns true if the status is known
func (s ShortfallStatus) IsValid() bool {
	switch s {
	case ShortfallPending, ShortfallResolved, ShortfallWaived:
		return true
	}
	return false
}

// RefundShortfall records credits a refund should have removed but could not,
// because the user had already spent them.
type RefundShortfall struct {
	ID             uuid.UUID
	UserID         string
	IdempotencyKey string
	Requested      int64
	Applied        int64
	Shortfall      int64
	Status         ShortfallStatus
	ResolvedBy     string
	ResolutionNote string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// NewRefundShortfall creates a pending shortfall record
func NewRefundShortfall(userID, key string, requested, applied int64) *RefundShortfall {
	return &RefundShortfall{
		ID:             uuid.New(),
		UserID:         userID,
		IdempotencyKey: key,
		Requested:      requested,
		Applied:        applied,
		Shortfall:      requested - applied,
		Status:         ShortfallPending,
		CreatedAt:      time.Now(),
	}
}

// Resolve closes the review with an outcome
func (s *RefundShortfall) Resolve(status ShortfallStatus, by, note string) error {
	if s.Status != ShortfallPending {
		return shared.NewDomainError("INVALID_STATE", "Shortfall already closed")
	}
	if status == ShortfallPending || !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Resolution must be resolved or waived")
	}
	now := time.Now()
	s.Status = status
	s.ResolvedBy = by
	s.ResolutionNote = note
	s.ResolvedAt = &now
	return nil
}
