package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// RefundShortfallModel is the GORM model for refunds that exceeded the balance
type RefundShortfallModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID         string     `gorm:"type:varchar(64);not null;index"`
	IdempotencyKey string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	Requested      int64      `gorm:"not null"`
	Applied        int64      `gorm:"not null"`
	Shortfall      int64      `gorm:"not null;check:chk_refund_shortfalls_positive,shortfall > 0"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	ResolvedBy     string     `gorm:"type:varchar(64)"`
	ResolutionNote string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"not null"`
	ResolvedAt     *time.Time
}

// TableName returns the table name for the model
func (RefundShortfallModel) TableName() string {
	return "refund_shortfalls"
}

// ToEntity converts the model to a domain entity
func (m *RefundShortfallModel) ToEntity() *credit.RefundShortfall {
	return &credit.RefundShortfall{
		ID:             m.ID,
		UserID:         m.UserID,
		IdempotencyKey: m.IdempotencyKey,
		Requested:      m.Requested,
		Applied:        m.Applied,
		Shortfall:      m.Shortfall,
		Status:         credit.ShortfallStatus(m.Status),
		ResolvedBy:     m.ResolvedBy,
		ResolutionNote: m.ResolutionNote,
		CreatedAt:      m.CreatedAt,
		ResolvedAt:     m.ResolvedAt,
	}
}

// RefundShortfallModelFromEntity creates a model from a domain entity
func RefundShortfallModelFromEntity(s *credit.RefundShortfall) *RefundShortfallModel {
	return &RefundShortfallModel{
		ID:             s.ID,
		UserID:         s.UserID,
		IdempotencyKey: s.IdempotencyKey,
		Requested:      s.Requested,
		Applied:        s.Applied,
		Shortfall:      s.Shortfall,
		Status:         string(s.Status),
		ResolvedBy:     s.ResolvedBy,
		ResolutionNote: s.ResolutionNote,
		CreatedAt:      s.CreatedAt,
		ResolvedAt:     s.ResolvedAt,
	}
}

// GormRefundShortfallRepository implements credit.RefundShortfallRepository
type GormRefundShortfallRepository struct {
	db *gorm.DB
}

// NewGormRefundShortfallRepository creates a new shortfall repository
func NewGormRefundShortfallRepository(db *gorm.DB) *GormRefundShortfallRepository {
	return &GormRefundShortfallRepository{db: db}
}

// Create inserts a shortfall
func (r *GormRefundShortfallRepository) Create(ctx context.Context, s *credit.RefundShortfall) error {
	return r.db.WithContext(ctx).Create(RefundShortfallModelFromEntity(s)).Error
}

// FindByID returns a shortfall or shared.ErrNotFound
func (r *GormRefundShortfallRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.RefundShortfall, error) {
	var model RefundShortfallModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// List returns a page of shortfalls. An empty status lists all.
func (r *GormRefundShortfallRepository) List(ctx context.Context, status credit.ShortfallStatus, filter shared.Filter) ([]*credit.RefundShortfall, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&RefundShortfallModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if userID, ok := filter.Filters["user_id"].(string); ok && userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []RefundShortfallModel
	if err := query.Order("created_at " + filter.OrderDir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*credit.RefundShortfall, len(models))
	for i := range models {
		items[i] = models[i].ToEntity()
	}
	return items, total, nil
}

// Update saves the resolution fields of a pending shortfall.
// Returns shared.ErrConcurrencyConflict when it was already resolved.
func (r *GormRefundShortfallRepository) Update(ctx context.Context, s *credit.RefundShortfall) error {
	result := r.db.WithContext(ctx).
		Model(&RefundShortfallModel{}).
		Where("id = ? AND status = ?", s.ID, string(credit.ShortfallPending)).
		Updates(map[string]any{
			"status":          string(s.Status),
			"resolved_by":     s.ResolvedBy,
			"resolution_note": s.ResolutionNote,
			"resolved_at":     s.ResolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ credit.RefundShortfallRepository = (*GormRefundShortfallRepository)(nil)
