package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BetaQuotaModel is the GORM model for beta tester allowances
type BetaQuotaModel struct {
	UserID     string    `gorm:"type:varchar(64);primaryKey"`
	TotalQuota int64     `gorm:"not null;default:0;check:chk_beta_quotas_total,total_quota >= 0"`
	UsedCount  int64     `gorm:"not null;default:0;check:chk_beta_quotas_used,used_count >= 0"`
	BonusQuota int64     `gorm:"not null;default:0"`
	KlingLimit int64     `gorm:"not null;default:0"`
	KlingUsed  int64     `gorm:"not null;default:0"`
	IsActive   bool      `gorm:"not null"`
	GrantedBy  string    `gorm:"type:varchar(64)"`
	Note       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (BetaQuotaModel) TableName() string {
	return "beta_quotas"
}

// ToEntity converts the model to a domain entity
func (m *BetaQuotaModel) ToEntity() *credit.BetaQuota {
	return &credit.BetaQuota{
		UserID:     m.UserID,
		TotalQuota: m.TotalQuota,
		UsedCount:  m.UsedCount,
		BonusQuota: m.BonusQuota,
		KlingLimit: m.KlingLimit,
		KlingUsed:  m.KlingUsed,
		IsActive:   m.IsActive,
		GrantedBy:  m.GrantedBy,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// GormBetaQuotaRepository implements credit.BetaQuotaRepository
type GormBetaQuotaRepository struct {
	db *gorm.DB
}

// NewGormBetaQuotaRepository creates a new beta quota repository
func NewGormBetaQuotaRepository(db *gorm.DB) *GormBetaQuotaRepository {
	return &GormBetaQuotaRepository{db: db}
}

// FindByUserID returns the user's beta quota or shared.ErrNotFound
func (r *GormBetaQuotaRepository) FindByUserID(ctx context.Context, userID string) (*credit.BetaQuota, error) {
	var model BetaQuotaModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Upsert sets the limits of a user's quota. Existing usage counters are kept.
func (r *GormBetaQuotaRepository) Upsert(ctx context.Context, q *credit.BetaQuota) error {
	model := &BetaQuotaModel{
		UserID:     q.UserID,
		TotalQuota: q.TotalQuota,
		BonusQuota: q.BonusQuota,
		KlingLimit: q.KlingLimit,
		IsActive:   q.IsActive,
		GrantedBy:  q.GrantedBy,
		Note:       q.Note,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_quota", "kling_limit", "is_active", "granted_by", "note", "updated_at"}),
		}).
		Create(model).Error
}

// Consume uses one unit in a single conditional UPDATE
func (r *GormBetaQuotaRepository) Consume(ctx context.Context, userID string, kling bool) (bool, error) {
	updates := map[string]any{
		"used_count": gorm.Expr("used_count + 1"),
		"updated_at": time.Now(),
	}
	query := r.db.WithContext(ctx).
		Model(&BetaQuotaModel{}).
		Where("user_id = ? AND is_active = ? AND used_count < total_quota + bonus_quota", userID, true)
	if kling {
		updates["kling_used"] = gorm.Expr("kling_used + 1")
		query = query.Where("kling_used < kling_limit")
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AddBonus grows the bonus allowance
func (r *GormBetaQuotaRepository) AddBonus(ctx context.Context, userID string, amount int64) (*credit.BetaQuota, error) {
	result := r.db.WithContext(ctx).
		Model(&BetaQuotaModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"bonus_quota": gorm.Expr("bonus_quota + ?", amount),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrNotFound
	}
	return r.FindByUserID(ctx, userID)
}

var _ credit.BetaQuotaRepository = (*GormBetaQuotaRepository)(nil)
