package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageCounterModel is the GORM model for per-feature usage counters
type UsageCounterModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_usage_counters_user_feature,priority:1"`
	Feature     string    `gorm:"type:varchar(30);not null;uniqueIndex:uq_usage_counters_user_feature,priority:2"`
	UsageCount  int64     `gorm:"not null;default:0;check:chk_usage_counters_non_negative,usage_count >= 0"`
	LastResetAt time.Time `gorm:"not null"`
	Version     int64     `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageCounterModel) TableName() string {
	return "usage_counters"
}

// ToEntity converts the model to a domain entity
func (m *UsageCounterModel) ToEntity() *billing.UsageCounter {
	return &billing.UsageCounter{
		ID:          m.ID,
		UserID:      m.UserID,
		Feature:     billing.FeatureType(m.Feature),
		UsageCount:  m.UsageCount,
		LastResetAt: m.LastResetAt,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// GormUsageCounterRepository implements billing.UsageCounterRepository
type GormUsageCounterRepository struct {
	db *gorm.DB
}

// NewGormUsageCounterRepository creates a new usage counter repository
func NewGormUsageCounterRepository(db *gorm.DB) *GormUsageCounterRepository {
	return &GormUsageCounterRepository{db: db}
}

// GetOrCreate returns the counter for (userID, feature), inserting a zero row if missing
func (r *GormUsageCounterRepository) GetOrCreate(ctx context.Context, userID string, feature billing.FeatureType) (*billing.UsageCounter, error) {
	c := billing.NewUsageCounter(userID, feature, time.Now())
	model := &UsageCounterModel{
		ID:          c.ID,
		UserID:      c.UserID,
		Feature:     string(c.Feature),
		LastResetAt: c.LastResetAt,
		Version:     c.Version,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}

	var found UsageCounterModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND feature = ?", userID, string(feature)).
		First(&found).Error; err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// FindByID returns a counter or shared.ErrNotFound
func (r *GormUsageCounterRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsageCounter, error) {
	var model UsageCounterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ResetIfVersion zeroes the counter with a compare-and-swap on version
func (r *GormUsageCounterRepository) ResetIfVersion(ctx context.Context, id uuid.UUID, version int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&UsageCounterModel{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"usage_count":   0,
			"last_reset_at": now,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementIfBelow counts one use only while usage_count < limit
func (r *GormUsageCounterRepository) IncrementIfBelow(ctx context.Context, id uuid.UUID, limit int64) (*billing.UsageCounter, error) {
	result := r.db.WithContext(ctx).
		Model(&UsageCounterModel{}).
		Where("id = ? AND usage_count < ?", id, limit).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

// ListByUser returns all counters of a user ordered by feature
func (r *GormUsageCounterRepository) ListByUser(ctx context.Context, userID string) ([]*billing.UsageCounter, error) {
	var models []UsageCounterModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("feature ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	counters := make([]*billing.UsageCounter, len(models))
	for i := range models {
		counters[i] = models[i].ToEntity()
	}
	return counters, nil
}

var _ billing.UsageCounterRepository = (*GormUsageCounterRepository)(nil)
