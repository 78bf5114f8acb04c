package team

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AllocationKind distinguishes pushing credits to a member from pulling them back
type AllocationKind string

const (
	AllocationKindAllocate AllocationKind = "allocate"
	AllocationKindReclaim  AllocationKind = "reclaim"
	AllocationKindRelease  AllocationKind = "release"
)

// CreditAllocation is an append-only history row for member allocation changes.
// Amount is signed: positive for allocate, negative for reclaim and release.
type CreditAllocation struct {
	ID           uuid.UUID
	TeamID       uuid.UUID
	MemberID     uuid.UUID
	Amount       int64
	Kind         AllocationKind
	BalanceAfter int64
	ActorID      string
	Note         string
	CreatedAt    time.Time
}

// NewCreditAllocation creates a history row
func NewCreditAllocation(teamID, memberID uuid.UUID, kind AllocationKind, amount, balanceAfter int64, actorID, note string) *CreditAllocation {
	if kind != AllocationKindAllocate && amount > 0 {
		amount = -amount
	}
	return &CreditAllocation{
		ID:           uuid.New(),
		TeamID:       teamID,
		MemberID:     memberID,
		Amount:       amount,
		Kind:         kind,
		BalanceAfter: balanceAfter,
		ActorID:      actorID,
		Note:         note,
		CreatedAt:    time.Now(),
	}
}

// ActivityAction names a team audit entry
type ActivityAction string

const (
	ActivityTeamCreated     ActivityAction = "team_created"
	ActivityMemberJoined    ActivityAction = "member_joined"
	ActivityMemberRemoved   ActivityAction = "member_removed"
	ActivityPoolFunded      ActivityAction = "pool_funded"
	ActivityCreditsAllocate ActivityAction = "credits_allocated"
	ActivityCreditsReclaim  ActivityAction = "credits_reclaimed"
	ActivityCreditsConsumed ActivityAction = "credits_consumed"
)

// ActivityLog is an audit entry for anything that happens inside a team
type ActivityLog struct {
	ID           uuid.UUID
	TeamID       uuid.UUID
	ActorID      string
	TargetUserID string
	Action       ActivityAction
	Description  string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// NewActivityLog creates an audit entry
func NewActivityLog(teamID uuid.UUID, actorID string, action ActivityAction, description string) *ActivityLog {
	return &ActivityLog{
		ID:          uuid.New(),
		TeamID:      teamID,
		ActorID:     actorID,
		Action:      action,
		Description: description,
		Metadata:    map[string]any{},
		CreatedAt:   time.Now(),
	}
}

// WithTarget sets the user the action was applied to
func (a *ActivityLog) WithTarget(userID string) *ActivityLog {
	a.TargetUserID = userID
	return a
}

// With adds a metadata entry
func (a *ActivityLog) With(key string, value any) *ActivityLog {
	a.Metadata[key] = value
	return a
}

// MetadataJSON encodes metadata for storage
func (a *ActivityLog) MetadataJSON() string {
	if len(a.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(a.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}
