package team

import (
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/team"
)

// TeamResponse represents a team in API responses
type TeamResponse struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	InviteCode      string    `json:"invite_code,omitempty"`
	CreditPool      int64     `json:"credit_pool"`
	CreditAllocated int64     `json:"credit_allocated"`
	Unallocated     int64     `json:"unallocated"`
	MaxMembers      int       `json:"max_members"`
	CreatedAt       time.Time `json:"created_at"`
}

// MemberResponse represents a team member in API responses
type MemberResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	AllocatedCredits int64     `json:"allocated_credits"`
	UsedCredits      int64     `json:"used_credits"`
	Available        int64     `json:"available"`
	JoinedAt         time.Time `json:"joined_at"`
}

// AllocationResponse represents an allocation history row
type AllocationResponse struct {
	ID           uuid.UUID `json:"id"`
	MemberID     uuid.UUID `json:"member_id"`
	Kind         string    `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	ActorID      string    `json:"actor_id"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TeamCreditsResponse summarizes a team's pool, members and recent allocations
type TeamCreditsResponse struct {
	Team        TeamResponse         `json:"team"`
	Members     []MemberResponse     `json:"members"`
	Allocations []AllocationResponse `json:"allocations"`
}

// AllocationResult is the outcome of an allocate or reclaim
type AllocationResult struct {
	MemberID         uuid.UUID `json:"member_id"`
	AllocatedCredits int64     `json:"allocated_credits"`
	Available        int64     `json:"available"`
	TeamUnallocated  int64     `json:"team_unallocated"`
}

// ToTeamResponse converts a team to its response. The invite code is only
// exposed to members who manage credits.
func ToTeamResponse(t *team.Team, withInvite bool) TeamResponse {
	resp := TeamResponse{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		Name:            t.Name,
		CreditPool:      t.CreditPool,
		CreditAllocated: t.CreditAllocated,
		Unallocated:     t.Unallocated(),
		MaxMembers:      t.MaxMembers,
		CreatedAt:       t.CreatedAt,
	}
	if withInvite {
		resp.InviteCode = t.InviteCode
	}
	return resp
}

// ToMemberResponse converts a member to its response
func ToMemberResponse(m *team.Member) MemberResponse {
	return MemberResponse{
		ID:               m.ID,
		UserID:           m.UserID,
		Role:             string(m.Role),
		Status:           string(m.Status),
		AllocatedCredits: m.AllocatedCredits,
		UsedCredits:      m.UsedCredits,
		Available:        m.Available(),
		JoinedAt:         m.JoinedAt,
	}
}

// ToAllocationResponse converts a history row to its response
func ToAllocationResponse(a *team.CreditAllocation) AllocationResponse {
	return AllocationResponse{
		ID:           a.ID,
		MemberID:     a.MemberID,
		Kind:         string(a.Kind),
		Amount:       a.Amount,
		BalanceAfter: a.BalanceAfter,
		ActorID:      a.ActorID,
		Note:         a.Note,
		CreatedAt:    a.CreatedAt,
	}
}
