package team

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// MemberRole is a member's role inside a team
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// IsValid returns true if the role is known
func (r MemberRole) IsValid() bool {
	switch r {
	case MemberRoleOwner, MemberRoleAdmin, MemberRoleMember:
		return true
	}
	return false
}

// CanManageCredits is true for roles allowed to allocate and reclaim
func (r MemberRole) CanManageCredits() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin
}

// MemberStatus is the membership state
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusRemoved MemberStatus = "removed"
)

// Member is a user's seat in a team.
// Invariant: 0 <= UsedCredits <= AllocatedCredits.
type Member struct {
	shared.BaseEntity
	TeamID           uuid.UUID
	UserID           string
	Role             MemberRole
	Status           MemberStatus
	AllocatedCredits int64
	UsedCredits      int64
	JoinedAt         time.Time
	RemovedAt        *time.Time
}

// NewMember creates an active member with no allocation
func NewMember(teamID uuid.UUID, userID string, role MemberRole) (*Member, error) {
	if userID == "" {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if !role.IsValid() {
		return nil, shared.NewDomainError("INVALID_ROLE", "Unknown member role: "+string(role))
	}
	base := shared.NewBaseEntity()
	return &Member{
		BaseEntity: base,
		TeamID:     teamID,
		UserID:     userID,
		Role:       role,
		Status:     MemberStatusActive,
		JoinedAt:   base.CreatedAt,
	}, nil
}

// Available returns allocated credits not yet spent
func (m *Member) Available() int64 {
	return m.AllocatedCredits - m.UsedCredits
}

// IsActive reports whether the membership is active
func (m *Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// Verify returns an IntegrityError when the usage invariant is broken
func (m *Member) Verify() error {
	if m.UsedCredits < 0 || m.UsedCredits > m.AllocatedCredits {
		return shared.NewIntegrityError("member_used_within_allocated", "member:"+m.ID.String(),
			fmt.Sprintf("used %d, allocated %d", m.UsedCredits, m.AllocatedCredits))
	}
	return nil
}
