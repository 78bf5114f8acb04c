package persistence

import (
	"context"

	creditapp "github.com/mvstudio/backend/internal/application/credit"
	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/team"
	"gorm.io/gorm"
)

// GormTransactionScope implements the credit ledger TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos creditapp.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// GormTeamTransactionScope implements the team ledger TransactionScope.
type GormTeamTransactionScope struct {
	db *gorm.DB
}

// NewGormTeamTransactionScope creates a new GormTeamTransactionScope.
func NewGormTeamTransactionScope(db *gorm.DB) *GormTeamTransactionScope {
	return &GormTeamTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormTeamTransactionScope) Execute(ctx context.Context, fn func(repos teamapp.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) TeamRepo() team.TeamRepository {
	return NewGormTeamRepository(r.tx)
}

func (r *gormTransactionalRepositories) MemberRepo() team.MemberRepository {
	return NewGormTeamMemberRepository(r.tx)
}

func (r *gormTransactionalRepositories) AllocationRepo() team.AllocationRepository {
	return NewGormTeamAllocationRepository(r.tx)
}

func (r *gormTransactionalRepositories) ActivityRepo() team.ActivityLogRepository {
	return NewGormTeamActivityRepository(r.tx)
}

func (r *gormTransactionalRepositories) BalanceRepo() credit.BalanceRepository {
	return NewGormCreditBalanceRepository(r.tx)
}

func (r *gormTransactionalRepositories) TransactionRepo() credit.TransactionRepository {
	return NewGormCreditTransactionRepository(r.tx)
}

func (r *gormTransactionalRepositories) BetaQuotaRepo() credit.BetaQuotaRepository {
	return NewGormBetaQuotaRepository(r.tx)
}

func (r *gormTransactionalRepositories) ShortfallRepo() credit.RefundShortfallRepository {
	return NewGormRefundShortfallRepository(r.tx)
}

var (
	_ creditapp.TransactionScope          = (*GormTransactionScope)(nil)
	_ teamapp.TransactionScope            = (*GormTeamTransactionScope)(nil)
	_ creditapp.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
