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

// CreditBalanceModel is the GORM model for personal credit balances
type CreditBalanceModel struct {
	UserID         string    `gorm:"type:varchar(64);primaryKey"`
	Balance        int64     `gorm:"not null;default:0;check:chk_credit_balances_non_negative,balance >= 0"`
	LifetimeEarned int64     `gorm:"not null;default:0"`
	LifetimeSpent  int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (CreditBalanceModel) TableName() string {
	return "credit_balances"
}

// ToEntity converts the model to a domain entity
func (m *CreditBalanceModel) ToEntity() *credit.Balance {
	return &credit.Balance{
		UserID:         m.UserID,
		Balance:        m.Balance,
		LifetimeEarned: m.LifetimeEarned,
		LifetimeSpent:  m.LifetimeSpent,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// GormCreditBalanceRepository implements credit.BalanceRepository
type GormCreditBalanceRepository struct {
	db *gorm.DB
}

// NewGormCreditBalanceRepository creates a new balance repository
func NewGormCreditBalanceRepository(db *gorm.DB) *GormCreditBalanceRepository {
	return &GormCreditBalanceRepository{db: db}
}

// GetOrCreate returns the user's balance, inserting a zero row on first use.
// Concurrent first calls race on the primary key and both read the winner.
func (r *GormCreditBalanceRepository) GetOrCreate(ctx context.Context, userID string) (*credit.Balance, error) {
	model := &CreditBalanceModel{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

// FindByUserID returns the user's balance or shared.ErrNotFound
func (r *GormCreditBalanceRepository) FindByUserID(ctx context.Context, userID string) (*credit.Balance, error) {
	var model CreditBalanceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Debit subtracts amount in one conditional UPDATE. The WHERE clause is the
// only place the non-negative balance rule is enforced for concurrent writers.
func (r *GormCreditBalanceRepository) Debit(ctx context.Context, userID string, amount int64) (*credit.Balance, error) {
	result := r.db.WithContext(ctx).
		Model(&CreditBalanceModel{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":        gorm.Expr("balance - ?", amount),
			"lifetime_spent": gorm.Expr("lifetime_spent + ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByUserID(ctx, userID)
}

// Credit adds amount to the balance and lifetime earned, creating the row if needed
func (r *GormCreditBalanceRepository) Credit(ctx context.Context, userID string, amount int64) (*credit.Balance, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	result := r.db.WithContext(ctx).
		Model(&CreditBalanceModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":         gorm.Expr("balance + ?", amount),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", amount),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	return r.FindByUserID(ctx, userID)
}

var _ credit.BalanceRepository = (*GormCreditBalanceRepository)(nil)
