package credit

import "github.com/mvstudio/backend/internal/domain/shared"

// Event types published after ledger commits
const (
	EventTypeCreditsDeducted     = "credit.deducted"
	EventTypeCreditsGranted      = "credit.granted"
	EventTypeDeductionRejected   = "credit.deduction_rejected"
	EventTypeRefundShortfall     = "credit.refund_shortfall"
	EventTypeAdminBypassRecorded = "credit.admin_bypass"
)

const subjectUser = "user"

// CreditsDeductedEvent is published after a successful charge
type CreditsDeductedEvent struct {
	shared.BaseDomainEvent
	UserID       string `json:"user_id"`
	Action       string `json:"action"`
	Cost         int64  `json:"cost"`
	Bucket       Bucket `json:"bucket"`
	BalanceAfter int64  `json:"balance_after"`
}

// NewCreditsDeductedEvent creates a CreditsDeductedEvent
func NewCreditsDeductedEvent(userID, action string, cost int64, bucket Bucket, balanceAfter int64) *CreditsDeductedEvent {
	return &CreditsDeductedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCreditsDeducted, subjectUser, userID),
		UserID:          userID,
		Action:          action,
		Cost:            cost,
		Bucket:          bucket,
		BalanceAfter:    balanceAfter,
	}
}

// DeductionRejectedEvent is published when a charge fails for lack of credits
type DeductionRejectedEvent struct {
	shared.BaseDomainEvent
	UserID         string `json:"user_id"`
	Action         string `json:"action"`
	Cost           int64  `json:"cost"`
	TotalAvailable int64  `json:"total_available"`
}

// NewDeductionRejectedEvent creates a DeductionRejectedEvent
func NewDeductionRejectedEvent(userID, action string, cost, totalAvailable int64) *DeductionRejectedEvent {
	return &DeductionRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDeductionRejected, subjectUser, userID),
		UserID:          userID,
		Action:          action,
		Cost:            cost,
		TotalAvailable:  totalAvailable,
	}
}

// CreditsGrantedEvent is published after credits are added
type CreditsGrantedEvent struct {
	shared.BaseDomainEvent
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	Source       Source `json:"source"`
	BalanceAfter int64  `json:"balance_after"`
}

// NewCreditsGrantedEvent creates a CreditsGrantedEvent
func NewCreditsGrantedEvent(userID string, amount int64, source Source, balanceAfter int64) *CreditsGrantedEvent {
	return &CreditsGrantedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCreditsGranted, subjectUser, userID),
		UserID:          userID,
		Amount:          amount,
		Source:          source,
		BalanceAfter:    balanceAfter,
	}
}

// RefundShortfallEvent is published when a refund could not be fully applied
type RefundShortfallEvent struct {
	shared.BaseDomainEvent
	UserID      string `json:"user_id"`
	ShortfallID string `json:"shortfall_id"`
	Requested   int64  `json:"requested"`
	Applied     int64  `json:"applied"`
	Shortfall   int64  `json:"shortfall"`
}

// NewRefundShortfallEvent creates a RefundShortfallEvent
func NewRefundShortfallEvent(s *RefundShortfall) *RefundShortfallEvent {
	return &RefundShortfallEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefundShortfall, subjectUser, s.UserID),
		UserID:          s.UserID,
		ShortfallID:     s.ID.String(),
		Requested:       s.Requested,
		Applied:         s.Applied,
		Shortfall:       s.Shortfall,
	}
}

// AdminBypassEvent is published when a staff role skips charging
type AdminBypassEvent struct {
	shared.BaseDomainEvent
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Cost   int64  `json:"cost"`
}

// NewAdminBypassEvent creates an AdminBypassEvent
func NewAdminBypassEvent(userID, action string, cost int64) *AdminBypassEvent {
	return &AdminBypassEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAdminBypassRecorded, subjectUser, userID),
		UserID:          userID,
		Action:          action,
		Cost:            cost,
	}
}
