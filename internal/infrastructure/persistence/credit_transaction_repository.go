package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditTransactionModel is the GORM model for the append-only credit ledger
type CreditTransactionModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID         string     `gorm:"type:varchar(64);not null;index:idx_credit_tx_user_created,priority:1;uniqueIndex:uq_credit_tx_idempotency,priority:1"`
	Amount         int64      `gorm:"not null"`
	Type           string     `gorm:"type:varchar(10);not null"`
	Source         string     `gorm:"type:varchar(20);not null"`
	Bucket         string     `gorm:"type:varchar(10);not null;default:'personal'"`
	Action         string     `gorm:"type:varchar(50)"`
	Description    string     `gorm:"type:text"`
	BalanceAfter   int64      `gorm:"not null"`
	IdempotencyKey *string    `gorm:"type:varchar(255);uniqueIndex:uq_credit_tx_idempotency,priority:2"`
	TeamID         *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_credit_tx_user_created,priority:2"`
}

// TableName returns the table name for the model
func (CreditTransactionModel) TableName() string {
	return "credit_transactions"
}

// ToEntity converts the model to a domain entity
func (m *CreditTransactionModel) ToEntity() *credit.Transaction {
	return &credit.Transaction{
		ID:             m.ID,
		UserID:         m.UserID,
		Amount:         m.Amount,
		Type:           credit.TransactionType(m.Type),
		Source:         credit.Source(m.Source),
		Bucket:         credit.Bucket(m.Bucket),
		Action:         m.Action,
		Description:    m.Description,
		BalanceAfter:   m.BalanceAfter,
		IdempotencyKey: m.IdempotencyKey,
		TeamID:         m.TeamID,
		CreatedAt:      m.CreatedAt,
	}
}

// CreditTransactionModelFromEntity creates a model from a domain entity
func CreditTransactionModelFromEntity(t *credit.Transaction) *CreditTransactionModel {
	return &CreditTransactionModel{
		ID:             t.ID,
		UserID:         t.UserID,
		Amount:         t.Amount,
		Type:           string(t.Type),
		Source:         string(t.Source),
		Bucket:         string(t.Bucket),
		Action:         t.Action,
		Description:    t.Description,
		BalanceAfter:   t.BalanceAfter,
		IdempotencyKey: t.IdempotencyKey,
		TeamID:         t.TeamID,
		CreatedAt:      t.CreatedAt,
	}
}

// GormCreditTransactionRepository implements credit.TransactionRepository
type GormCreditTransactionRepository struct {
	db *gorm.DB
}

// NewGormCreditTransactionRepository creates a new transaction repository
func NewGormCreditTransactionRepository(db *gorm.DB) *GormCreditTransactionRepository {
	return &GormCreditTransactionRepository{db: db}
}

// Append inserts the row. A duplicate (user_id, idempotency_key) inserts
// nothing and returns false.
func (r *GormCreditTransactionRepository) Append(ctx context.Context, tx *credit.Transaction) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(CreditTransactionModelFromEntity(tx))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByIdempotencyKey returns the row recorded under key for userID
func (r *GormCreditTransactionRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*credit.Transaction, error) {
	var model CreditTransactionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListByUser returns a page of the user's transactions.
// Supported filters: "source", "type", "bucket".
func (r *GormCreditTransactionRepository) ListByUser(ctx context.Context, userID string, filter shared.Filter) ([]*credit.Transaction, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&CreditTransactionModel{}).Where("user_id = ?", userID)
	for _, column := range []string{"source", "type", "bucket"} {
		if v, ok := filter.Filters[column].(string); ok && v != "" {
			query = query.Where(column+" = ?", v)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []CreditTransactionModel
	if err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: filter.OrderDir == "desc"}).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return toTransactions(models), total, nil
}

// ListPersonalInOrder returns every personal-bucket row, oldest first
func (r *GormCreditTransactionRepository) ListPersonalInOrder(ctx context.Context, userID string) ([]*credit.Transaction, error) {
	var models []CreditTransactionModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND bucket = ?", userID, string(credit.BucketPersonal)).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toTransactions(models), nil
}

func toTransactions(models []CreditTransactionModel) []*credit.Transaction {
	txs := make([]*credit.Transaction, len(models))
	for i := range models {
		txs[i] = models[i].ToEntity()
	}
	return txs
}

var _ credit.TransactionRepository = (*GormCreditTransactionRepository)(nil)
