package team

import "github.com/mvstudio/backend/internal/domain/shared"

// Event types published after team ledger commits
const (
	EventTypeCreditsAllocated = "team.credits_allocated"
	EventTypeCreditsReclaimed = "team.credits_reclaimed"
	EventTypePoolFunded       = "team.pool_funded"
)

const subjectTeam = "team"

// AllocationChangedEvent is published after an allocate or reclaim
type AllocationChangedEvent struct {
	shared.BaseDomainEvent
	TeamID       string         `json:"team_id"`
	MemberID     string         `json:"member_id"`
	Kind         AllocationKind `json:"kind"`
	Amount       int64          `json:"amount"`
	BalanceAfter int64          `json:"balance_after"`
	ActorID      string         `json:"actor_id"`
}

// NewAllocationChangedEvent creates an AllocationChangedEvent from a history row
func NewAllocationChangedEvent(a *CreditAllocation) *AllocationChangedEvent {
	eventType := EventTypeCreditsAllocated
	if a.Kind != AllocationKindAllocate {
		eventType = EventTypeCreditsReclaimed
	}
	return &AllocationChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, subjectTeam, a.TeamID.String()),
		TeamID:          a.TeamID.String(),
		MemberID:        a.MemberID.String(),
		Kind:            a.Kind,
		Amount:          a.Amount,
		BalanceAfter:    a.BalanceAfter,
		ActorID:         a.ActorID,
	}
}

// PoolFundedEvent is published when the owner moves personal credits into the pool
type PoolFundedEvent struct {
	shared.BaseDomainEvent
	TeamID    string `json:"team_id"`
	OwnerID   string `json:"owner_id"`
	Amount    int64  `json:"amount"`
	PoolAfter int64  `json:"pool_after"`
}

// NewPoolFundedEvent creates a PoolFundedEvent
func NewPoolFundedEvent(t *Team, amount int64) *PoolFundedEvent {
	return &PoolFundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePoolFunded, subjectTeam, t.ID.String()),
		TeamID:          t.ID.String(),
		OwnerID:         t.OwnerID,
		Amount:          amount,
		PoolAfter:       t.CreditPool,
	}
}
