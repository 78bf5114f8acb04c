package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"gorm.io/gorm"
)

// TeamMemberModel is the GORM model for team members
type TeamMemberModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TeamID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserID           string     `gorm:"type:varchar(64);not null;index"`
	Role             string     `gorm:"type:varchar(20);not null"`
	Status           string     `gorm:"type:varchar(20);not null;index"`
	AllocatedCredits int64      `gorm:"not null;default:0"`
	UsedCredits      int64      `gorm:"not null;default:0;check:chk_team_members_used_within_allocated,used_credits >= 0 AND used_credits <= allocated_credits"`
	JoinedAt         time.Time  `gorm:"not null"`
	RemovedAt        *time.Time
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TeamMemberModel) TableName() string {
	return "team_members"
}

// ToEntity converts the model to a domain entity
func (m *TeamMemberModel) ToEntity() *team.Member {
	return &team.Member{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TeamID:           m.TeamID,
		UserID:           m.UserID,
		Role:             team.MemberRole(m.Role),
		Status:           team.MemberStatus(m.Status),
		AllocatedCredits: m.AllocatedCredits,
		UsedCredits:      m.UsedCredits,
		JoinedAt:         m.JoinedAt,
		RemovedAt:        m.RemovedAt,
	}
}

// GormTeamMemberRepository implements team.MemberRepository
type GormTeamMemberRepository struct {
	db *gorm.DB
}

// NewGormTeamMemberRepository creates a new member repository
func NewGormTeamMemberRepository(db *gorm.DB) *GormTeamMemberRepository {
	return &GormTeamMemberRepository{db: db}
}

// Create inserts a member
func (r *GormTeamMemberRepository) Create(ctx context.Context, m *team.Member) error {
	return r.db.WithContext(ctx).Create(&TeamMemberModel{
		ID:               m.ID,
		TeamID:           m.TeamID,
		UserID:           m.UserID,
		Role:             string(m.Role),
		Status:           string(m.Status),
		AllocatedCredits: m.AllocatedCredits,
		UsedCredits:      m.UsedCredits,
		JoinedAt:         m.JoinedAt,
		RemovedAt:        m.RemovedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}).Error
}

// FindByID returns a member or shared.ErrNotFound
func (r *GormTeamMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*team.Member, error) {
	var model TeamMemberModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindActiveByUser returns the user's active membership or shared.ErrNotFound
func (r *GormTeamMemberRepository) FindActiveByUser(ctx context.Context, userID string) (*team.Member, error) {
	var model TeamMemberModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(team.MemberStatusActive)).
		Order("joined_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListByTeam returns active members in join order
func (r *GormTeamMemberRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*team.Member, error) {
	var models []TeamMemberModel
	if err := r.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", teamID, string(team.MemberStatusActive)).
		Order("joined_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	members := make([]*team.Member, len(models))
	for i := range models {
		members[i] = models[i].ToEntity()
	}
	return members, nil
}

// CountActive returns the number of active seats
func (r *GormTeamMemberRepository) CountActive(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TeamMemberModel{}).
		Where("team_id = ? AND status = ?", teamID, string(team.MemberStatusActive)).
		Count(&count).Error
	return count, err
}

// IncreaseAllocation adds amount to an active member's allocation
func (r *GormTeamMemberRepository) IncreaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*team.Member, error) {
	return r.guardedUpdate(ctx, id, "status = ?", []any{string(team.MemberStatusActive)}, map[string]any{
		"allocated_credits": gorm.Expr("allocated_credits + ?", amount),
	})
}

// DecreaseAllocation removes unused allocation
func (r *GormTeamMemberRepository) DecreaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*team.Member, error) {
	return r.guardedUpdate(ctx, id, "allocated_credits - used_credits >= ?", []any{amount}, map[string]any{
		"allocated_credits": gorm.Expr("allocated_credits - ?", amount),
	})
}

// Consume spends allocation of an active member
func (r *GormTeamMemberRepository) Consume(ctx context.Context, id uuid.UUID, amount int64) (*team.Member, error) {
	return r.guardedUpdate(ctx, id, "status = ? AND allocated_credits - used_credits >= ?",
		[]any{string(team.MemberStatusActive), amount}, map[string]any{
			"used_credits": gorm.Expr("used_credits + ?", amount),
		})
}

// MarkRemoved deactivates the member and shrinks the allocation to what was used.
// The update is conditioned on the allocated and used amounts just read so a
// concurrent allocate, reclaim or consume surfaces as shared.ErrConcurrencyConflict.
func (r *GormTeamMemberRepository) MarkRemoved(ctx context.Context, id uuid.UUID) (int64, error) {
	m, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if !m.IsActive() {
		return 0, shared.ErrInvalidState
	}

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&TeamMemberModel{}).
		Where("id = ? AND status = ? AND allocated_credits = ? AND used_credits = ?",
			id, string(team.MemberStatusActive), m.AllocatedCredits, m.UsedCredits).
		Updates(map[string]any{
			"status":            string(team.MemberStatusRemoved),
			"allocated_credits": m.UsedCredits,
			"removed_at":        now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, shared.ErrConcurrencyConflict
	}
	return m.Available(), nil
}

func (r *GormTeamMemberRepository) guardedUpdate(ctx context.Context, id uuid.UUID, guard string, args []any, updates map[string]any) (*team.Member, error) {
	updates["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&TeamMemberModel{}).
		Where("id = ?", id).
		Where(guard, args...).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

var _ team.MemberRepository = (*GormTeamMemberRepository)(nil)
