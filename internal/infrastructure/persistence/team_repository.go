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

// TeamModel is the GORM model for teams
type TeamModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID         string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name            string    `gorm:"type:varchar(100);not null"`
	InviteCode      string    `gorm:"type:varchar(16);not null;uniqueIndex"`
	CreditPool      int64     `gorm:"not null;default:0;check:chk_teams_pool_non_negative,credit_pool >= 0"`
	CreditAllocated int64     `gorm:"not null;default:0;check:chk_teams_allocated_within_pool,credit_allocated >= 0 AND credit_allocated <= credit_pool"`
	MaxMembers      int       `gorm:"not null;default:10"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TeamModel) TableName() string {
	return "teams"
}

// ToEntity converts the model to a domain entity
func (m *TeamModel) ToEntity() *team.Team {
	return &team.Team{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		OwnerID:         m.OwnerID,
		Name:            m.Name,
		InviteCode:      m.InviteCode,
		CreditPool:      m.CreditPool,
		CreditAllocated: m.CreditAllocated,
		MaxMembers:      m.MaxMembers,
	}
}

// TeamModelFromEntity creates a model from a domain entity
func TeamModelFromEntity(t *team.Team) *TeamModel {
	return &TeamModel{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		Name:            t.Name,
		InviteCode:      t.InviteCode,
		CreditPool:      t.CreditPool,
		CreditAllocated: t.CreditAllocated,
		MaxMembers:      t.MaxMembers,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// GormTeamRepository implements team.TeamRepository
type GormTeamRepository struct {
	db *gorm.DB
}

// NewGormTeamRepository creates a new team repository
func NewGormTeamRepository(db *gorm.DB) *GormTeamRepository {
	return &GormTeamRepository{db: db}
}

// Create inserts a team. A second team for the same owner returns shared.ErrAlreadyExists.
func (r *GormTeamRepository) Create(ctx context.Context, t *team.Team) error {
	err := r.db.WithContext(ctx).Create(TeamModelFromEntity(t)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// FindByID returns a team or shared.ErrNotFound
func (r *GormTeamRepository) FindByID(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByOwner returns the team owned by a user
func (r *GormTeamRepository) FindByOwner(ctx context.Context, ownerID string) (*team.Team, error) {
	return r.findOne(ctx, "owner_id = ?", ownerID)
}

// FindByInviteCode returns the team with the invite code
func (r *GormTeamRepository) FindByInviteCode(ctx context.Context, code string) (*team.Team, error) {
	return r.findOne(ctx, "invite_code = ?", code)
}

func (r *GormTeamRepository) findOne(ctx context.Context, where string, arg any) (*team.Team, error) {
	var model TeamModel
	if err := r.db.WithContext(ctx).Where(where, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// AddToPool grows the pool by amount
func (r *GormTeamRepository) AddToPool(ctx context.Context, id uuid.UUID, amount int64) (*team.Team, error) {
	return r.guardedUpdate(ctx, id, "1 = 1", nil, map[string]any{
		"credit_pool": gorm.Expr("credit_pool + ?", amount),
	}, true)
}

// ReserveAllocation moves amount into allocated when the pool has room
func (r *GormTeamRepository) ReserveAllocation(ctx context.Context, id uuid.UUID, amount int64) (*team.Team, error) {
	return r.guardedUpdate(ctx, id, "credit_pool - credit_allocated >= ?", []any{amount}, map[string]any{
		"credit_allocated": gorm.Expr("credit_allocated + ?", amount),
	}, false)
}

// ReleaseAllocation moves amount back out of allocated
func (r *GormTeamRepository) ReleaseAllocation(ctx context.Context, id uuid.UUID, amount int64) (*team.Team, error) {
	return r.guardedUpdate(ctx, id, "credit_allocated >= ?", []any{amount}, map[string]any{
		"credit_allocated": gorm.Expr("credit_allocated - ?", amount),
	}, false)
}

// guardedUpdate applies updates only when guard holds. A rejected guard yields
// (nil, nil) unless mustMatch is set, in which case the team is missing.
func (r *GormTeamRepository) guardedUpdate(ctx context.Context, id uuid.UUID, guard string, args []any, updates map[string]any, mustMatch bool) (*team.Team, error) {
	updates["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&TeamModel{}).
		Where("id = ?", id).
		Where(guard, args...).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if mustMatch {
			return nil, shared.ErrNotFound
		}
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

var _ team.TeamRepository = (*GormTeamRepository)(nil)
