package team

import (
	"context"

	"github.com/google/uuid"
)

// TeamRepository persists teams. Pool counters only change through guarded updates.
type TeamRepository interface {
	Create(ctx context.Context, t *Team) error
	FindByID(ctx context.Context, id uuid.UUID) (*Team, error)
	FindByOwner(ctx context.Context, ownerID string) (*Team, error)
	FindByInviteCode(ctx context.Context, code string) (*Team, error)
	// AddToPool grows the pool by amount
	AddToPool(ctx context.Context, id uuid.UUID, amount int64) (*Team, error)
	// ReserveAllocation moves amount from unallocated to allocated only if
	// credit_pool - credit_allocated >= amount. Returns nil when rejected.
	ReserveAllocation(ctx context.Context, id uuid.UUID, amount int64) (*Team, error)
	// ReleaseAllocation returns amount from allocated to unallocated only if
	// credit_allocated >= amount. Returns nil when rejected.
	ReleaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*Team, error)
}

// MemberRepository persists team members
type MemberRepository interface {
	Create(ctx context.Context, m *Member) error
	FindByID(ctx context.Context, id uuid.UUID) (*Member, error)
	// FindActiveByUser returns the user's active membership, if any
	FindActiveByUser(ctx context.Context, userID string) (*Member, error)
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*Member, error)
	CountActive(ctx context.Context, teamID uuid.UUID) (int64, error)
	// IncreaseAllocation adds amount to an active member's allocation.
	// Returns nil when the member is no longer active.
	IncreaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*Member, error)
	// DecreaseAllocation removes amount only if allocated - used >= amount.
	// Returns nil when rejected.
	DecreaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*Member, error)
	// Consume adds amount to used only if the member is active and
	// allocated - used >= amount. Returns nil when rejected.
	Consume(ctx context.Context, id uuid.UUID, amount int64) (*Member, error)
	// MarkRemoved sets status removed and zeroes the unused allocation.
	// Returns the released amount.
	MarkRemoved(ctx context.Context, id uuid.UUID) (int64, error)
}

// AllocationRepository appends allocation history
type AllocationRepository interface {
	Create(ctx context.Context, a *CreditAllocation) error
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*CreditAllocation, error)
}

// ActivityLogRepository appends team audit entries
type ActivityLogRepository interface {
	Create(ctx context.Context, a *ActivityLog) error
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*ActivityLog, error)
}
