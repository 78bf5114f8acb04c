package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountModel is the GORM model for billing accounts
type AccountModel struct {
	UserID               string     `gorm:"type:varchar(64);primaryKey"`
	Plan                 string     `gorm:"type:varchar(20);not null;default:'free'"`
	StripeCustomerID     *string    `gorm:"type:varchar(100);uniqueIndex"`
	StripeSubscriptionID *string    `gorm:"type:varchar(100);index"`
	TrialEndsAt          *time.Time
	CancelAtPeriodEnd    bool       `gorm:"not null"`
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time  `gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (AccountModel) TableName() string {
	return "billing_accounts"
}

// ToEntity converts the model to a domain entity
func (m *AccountModel) ToEntity() *billing.Account {
	return &billing.Account{
		UserID:               m.UserID,
		Plan:                 billing.PlanTier(m.Plan),
		StripeCustomerID:     m.StripeCustomerID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		TrialEndsAt:          m.TrialEndsAt,
		CancelAtPeriodEnd:    m.CancelAtPeriodEnd,
		CurrentPeriodEnd:     m.CurrentPeriodEnd,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// AccountModelFromEntity creates a model from a domain entity
func AccountModelFromEntity(a *billing.Account) *AccountModel {
	return &AccountModel{
		UserID:               a.UserID,
		Plan:                 string(a.Plan),
		StripeCustomerID:     a.StripeCustomerID,
		StripeSubscriptionID: a.StripeSubscriptionID,
		TrialEndsAt:          a.TrialEndsAt,
		CancelAtPeriodEnd:    a.CancelAtPeriodEnd,
		CurrentPeriodEnd:     a.CurrentPeriodEnd,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

// GormAccountRepository implements billing.AccountRepository
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new account repository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// GetOrCreate returns the user's account, creating a free one on first use
func (r *GormAccountRepository) GetOrCreate(ctx context.Context, userID string) (*billing.Account, error) {
	account, err := billing.NewAccount(userID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(AccountModelFromEntity(account)).Error; err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

// FindByUserID returns the account or shared.ErrNotFound
func (r *GormAccountRepository) FindByUserID(ctx context.Context, userID string) (*billing.Account, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

// FindByStripeCustomerID returns the account linked to a Stripe customer
func (r *GormAccountRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*billing.Account, error) {
	return r.findOne(ctx, "stripe_customer_id = ?", customerID)
}

func (r *GormAccountRepository) findOne(ctx context.Context, where string, arg any) (*billing.Account, error) {
	var model AccountModel
	if err := r.db.WithContext(ctx).Where(where, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Update saves every column of the account
func (r *GormAccountRepository) Update(ctx context.Context, account *billing.Account) error {
	model := AccountModelFromEntity(account)
	model.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(model).Error
}

var _ billing.AccountRepository = (*GormAccountRepository)(nil)
