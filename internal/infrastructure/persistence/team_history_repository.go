package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/team"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// TeamCreditAllocationModel is the GORM model for allocation history
type TeamCreditAllocationModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID       uuid.UUID `gorm:"type:uuid;not null;index:idx_team_allocations_team_created,priority:1"`
	MemberID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Amount       int64     `gorm:"not null"`
	Kind         string    `gorm:"type:varchar(20);not null"`
	BalanceAfter int64     `gorm:"not null"`
	ActorID      string    `gorm:"type:varchar(64);not null"`
	Note         string    `gorm:"type:varchar(500)"`
	CreatedAt    time.Time `gorm:"not null;index:idx_team_allocations_team_created,priority:2"`
}

// TableName returns the table name for the model
func (TeamCreditAllocationModel) TableName() string {
	return "team_credit_allocations"
}

// ToEntity converts the model to a domain entity
func (m *TeamCreditAllocationModel) ToEntity() *team.CreditAllocation {
	return &team.CreditAllocation{
		ID:           m.ID,
		TeamID:       m.TeamID,
		MemberID:     m.MemberID,
		Amount:       m.Amount,
		Kind:         team.AllocationKind(m.Kind),
		BalanceAfter: m.BalanceAfter,
		ActorID:      m.ActorID,
		Note:         m.Note,
		CreatedAt:    m.CreatedAt,
	}
}

// TeamActivityLogModel is the GORM model for the team audit log
type TeamActivityLogModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID       uuid.UUID `gorm:"type:uuid;not null;index:idx_team_activity_team_created,priority:1"`
	ActorID      string    `gorm:"type:varchar(64);not null"`
	TargetUserID string    `gorm:"type:varchar(64)"`
	Action       string    `gorm:"type:varchar(40);not null"`
	Description  string    `gorm:"type:varchar(500)"`
	Metadata     string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_team_activity_team_created,priority:2"`
}

// TableName returns the table name for the model
func (TeamActivityLogModel) TableName() string {
	return "team_activity_logs"
}

// ToEntity converts the model to a domain entity
func (m *TeamActivityLogModel) ToEntity() *team.ActivityLog {
	metadata := map[string]any{}
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}
	return &team.ActivityLog{
		ID:           m.ID,
		TeamID:       m.TeamID,
		ActorID:      m.ActorID,
		TargetUserID: m.TargetUserID,
		Action:       team.ActivityAction(m.Action),
		Description:  m.Description,
		Metadata:     metadata,
		CreatedAt:    m.CreatedAt,
	}
}

// GormTeamAllocationRepository implements team.AllocationRepository
type GormTeamAllocationRepository struct {
	db *gorm.DB
}

// NewGormTeamAllocationRepository creates a new allocation history repository
func NewGormTeamAllocationRepository(db *gorm.DB) *GormTeamAllocationRepository {
	return &GormTeamAllocationRepository{db: db}
}

// Create appends a history row
func (r *GormTeamAllocationRepository) Create(ctx context.Context, a *team.CreditAllocation) error {
	return r.db.WithContext(ctx).Create(&TeamCreditAllocationModel{
		ID:           a.ID,
		TeamID:       a.TeamID,
		MemberID:     a.MemberID,
		Amount:       a.Amount,
		Kind:         string(a.Kind),
		BalanceAfter: a.BalanceAfter,
		ActorID:      a.ActorID,
		Note:         a.Note,
		CreatedAt:    a.CreatedAt,
	}).Error
}

// ListByTeam returns the newest history rows first
func (r *GormTeamAllocationRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*team.CreditAllocation, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var models []TeamCreditAllocationModel
	if err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	rows := make([]*team.CreditAllocation, len(models))
	for i := range models {
		rows[i] = models[i].ToEntity()
	}
	return rows, nil
}

// GormTeamActivityRepository implements team.ActivityLogRepository
type GormTeamActivityRepository struct {
	db *gorm.DB
}

// NewGormTeamActivityRepository creates a new activity log repository
func NewGormTeamActivityRepository(db *gorm.DB) *GormTeamActivityRepository {
	return &GormTeamActivityRepository{db: db}
}

// Create appends an audit entry
func (r *GormTeamActivityRepository) Create(ctx context.Context, a *team.ActivityLog) error {
	return r.db.WithContext(ctx).Create(&TeamActivityLogModel{
		ID:           a.ID,
		TeamID:       a.TeamID,
		ActorID:      a.ActorID,
		TargetUserID: a.TargetUserID,
		Action:       string(a.Action),
		Description:  a.Description,
		Metadata:     a.MetadataJSON(),
		CreatedAt:    a.CreatedAt,
	}).Error
}

// ListByTeam returns the newest audit entries first
func (r *GormTeamActivityRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*team.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var models []TeamActivityLogModel
	if err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	logs := make([]*team.ActivityLog, len(models))
	for i := range models {
		logs[i] = models[i].ToEntity()
	}
	return logs, nil
}

var (
	_ team.AllocationRepository  = (*GormTeamAllocationRepository)(nil)
	_ team.ActivityLogRepository = (*GormTeamActivityRepository)(nil)
)
