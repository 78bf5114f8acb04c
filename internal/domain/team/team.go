// Package team models enterprise teams and their shared credit pool.
//
// The pool is independent of the owner's personal balance. Credits only move
// between them through an explicit funding operation.
package team

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
)

// DefaultMaxMembers is the seat count of a new team
const DefaultMaxMembers = 10

// MaxAllocation caps a single allocate or reclaim call
const MaxAllocation int64 = 10000

// Team owns a credit pool that admins allocate to members.
// Invariant: 0 <= CreditAllocated <= CreditPool.
type Team struct {
	shared.BaseEntity
	OwnerID         string
	Name            string
	InviteCode      string
	CreditPool      int64
	CreditAllocated int64
	MaxMembers      int
}

// NewTeam creates an empty team
func NewTeam(ownerID, name string) (*Team, error) {
	if ownerID == "" {
		return nil, shared.NewDomainError("INVALID_OWNER", "Owner ID cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Team name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("INVALID_NAME", "Team name cannot exceed 100 characters")
	}
	code, err := GenerateInviteCode()
	if err != nil {
		return nil, err
	}
	return &Team{
		BaseEntity: shared.NewBaseEntity(),
		OwnerID:    ownerID,
		Name:       name,
		InviteCode: code,
		MaxMembers: DefaultMaxMembers,
	}, nil
}

// Unallocated returns pool credits not yet handed to members
func (t *Team) Unallocated() int64 {
	return t.CreditPool - t.CreditAllocated
}

// IsOwner reports whether userID owns the team
func (t *Team) IsOwner(userID string) bool {
	return t.OwnerID == userID
}

// Verify returns an IntegrityError when the pool invariant is broken
func (t *Team) Verify() error {
	if t.CreditAllocated < 0 || t.CreditAllocated > t.CreditPool {
		return shared.NewIntegrityError("team_allocated_within_pool", "team:"+t.ID.String(),
			fmt.Sprintf("allocated %d, pool %d", t.CreditAllocated, t.CreditPool))
	}
	return nil
}

// GenerateInviteCode returns a random 8 character code
func GenerateInviteCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// ValidateAmount checks an allocate or reclaim amount
func ValidateAmount(amount int64) error {
	if amount < 1 || amount > MaxAllocation {
		return shared.NewDomainError("INVALID_AMOUNT",
			fmt.Sprintf("Amount must be between 1 and %d", MaxAllocation))
	}
	return nil
}

// touch is used by mutators
func (t *Team) touch() {
	t.UpdatedAt = time.Now()
}

// Rename changes the team name
func (t *Team) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return shared.NewDomainError("INVALID_NAME", "Team name must be 1-100 characters")
	}
	t.Name = name
	t.touch()
	return nil
}
