package team

import (
	"context"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/team"
)

// TransactionScope provides transactional access to the team ledger repositories.
// Every allocate, reclaim and consume runs inside one Execute call.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Repositories are the repositories available inside a transaction.
// Personal balance repositories are included because funding the pool
// debits the owner in the same unit of work.
type Repositories interface {
	TeamRepo() team.TeamRepository
	MemberRepo() team.MemberRepository
	AllocationRepo() team.AllocationRepository
	ActivityRepo() team.ActivityLogRepository
	BalanceRepo() credit.BalanceRepository
	TransactionRepo() credit.TransactionRepository
}

// NoOpTransactionScope runs fn against plain repositories without a transaction.
// Used in tests.
type NoOpTransactionScope struct {
	teamRepo        team.TeamRepository
	memberRepo      team.MemberRepository
	allocationRepo  team.AllocationRepository
	activityRepo    team.ActivityLogRepository
	balanceRepo     credit.BalanceRepository
	transactionRepo credit.TransactionRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories
func NewNoOpTransactionScope(
	teamRepo team.TeamRepository,
	memberRepo team.MemberRepository,
	allocationRepo team.AllocationRepository,
	activityRepo team.ActivityLogRepository,
	balanceRepo credit.BalanceRepository,
	transactionRepo credit.TransactionRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		teamRepo:        teamRepo,
		memberRepo:      memberRepo,
		allocationRepo:  allocationRepo,
		activityRepo:    activityRepo,
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos Repositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) TeamRepo() team.TeamRepository             { return s.teamRepo }
func (s *NoOpTransactionScope) MemberRepo() team.MemberRepository         { return s.memberRepo }
func (s *NoOpTransactionScope) AllocationRepo() team.AllocationRepository { return s.allocationRepo }
func (s *NoOpTransactionScope) ActivityRepo() team.ActivityLogRepository  { return s.activityRepo }
func (s *NoOpTransactionScope) BalanceRepo() credit.BalanceRepository     { return s.balanceRepo }
func (s *NoOpTransactionScope) TransactionRepo() credit.TransactionRepository {
	return s.transactionRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ Repositories = (*NoOpTransactionScope)(nil)
