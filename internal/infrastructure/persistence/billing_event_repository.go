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

// BillingEventModel is the GORM model for the billing provider event log
type BillingEventModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider        string    `gorm:"type:varchar(20);not null;uniqueIndex:uq_billing_events_provider_event,priority:1"`
	ProviderEventID string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_billing_events_provider_event,priority:2"`
	EventType       string    `gorm:"type:varchar(100);not null"`
	UserID          string    `gorm:"type:varchar(64);index"`
	Status          string    `gorm:"type:varchar(20);not null"`
	Message         string    `gorm:"type:text"`
	ProcessedAt     time.Time `gorm:"not null;index"`
}

// TableName returns the table name for the model
func (BillingEventModel) TableName() string {
	return "billing_events"
}

// ToEntity converts the model to a domain entity
func (m *BillingEventModel) ToEntity() *billing.ProcessedEvent {
	return &billing.ProcessedEvent{
		ID:              m.ID,
		Provider:        m.Provider,
		ProviderEventID: m.ProviderEventID,
		EventType:       m.EventType,
		UserID:          m.UserID,
		Status:          billing.ProcessedEventStatus(m.Status),
		Message:         m.Message,
		ProcessedAt:     m.ProcessedAt,
	}
}

// GormBillingEventRepository implements billing.ProcessedEventRepository
type GormBillingEventRepository struct {
	db *gorm.DB
}

// NewGormBillingEventRepository creates a new billing event repository
func NewGormBillingEventRepository(db *gorm.DB) *GormBillingEventRepository {
	return &GormBillingEventRepository{db: db}
}

// Save upserts the event keyed by (provider, provider_event_id) so a
// redelivered event overwrites an earlier failed attempt.
func (r *GormBillingEventRepository) Save(ctx context.Context, e *billing.ProcessedEvent) error {
	model := &BillingEventModel{
		ID:              e.ID,
		Provider:        e.Provider,
		ProviderEventID: e.ProviderEventID,
		EventType:       e.EventType,
		UserID:          e.UserID,
		Status:          string(e.Status),
		Message:         e.Message,
		ProcessedAt:     e.ProcessedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"event_type", "user_id", "status", "message", "processed_at"}),
		}).
		Create(model).Error
}

// FindByProviderEventID returns the event or shared.ErrNotFound
func (r *GormBillingEventRepository) FindByProviderEventID(ctx context.Context, provider, providerEventID string) (*billing.ProcessedEvent, error) {
	var model BillingEventModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// List returns a page of events, newest first. Supported filters: "status", "user_id".
func (r *GormBillingEventRepository) List(ctx context.Context, filter shared.Filter) ([]*billing.ProcessedEvent, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&BillingEventModel{})
	for _, column := range []string{"status", "user_id"} {
		if v, ok := filter.Filters[column].(string); ok && v != "" {
			query = query.Where(column+" = ?", v)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []BillingEventModel
	if err := query.Order("processed_at " + filter.OrderDir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	events := make([]*billing.ProcessedEvent, len(models))
	for i := range models {
		events[i] = models[i].ToEntity()
	}
	return events, total, nil
}

var _ billing.ProcessedEventRepository = (*GormBillingEventRepository)(nil)
