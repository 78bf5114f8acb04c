//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	creditapp "github.com/mvstudio/backend/internal/application/credit"
	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/persistence"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(tdb *TestDB) *creditapp.LedgerService {
	db := tdb.DB
	return creditapp.NewLedgerService(creditapp.LedgerServiceConfig{
		Scope:        persistence.NewGormTransactionScope(db),
		Balances:     persistence.NewGormCreditBalanceRepository(db),
		Transactions: persistence.NewGormCreditTransactionRepository(db),
		BetaQuotas:   persistence.NewGormBetaQuotaRepository(db),
		Shortfalls:   persistence.NewGormRefundShortfallRepository(db),
		Members:      persistence.NewGormTeamMemberRepository(db),
		Publisher:    &testutil.RecordingPublisher{},
		Config:       creditapp.DefaultLedgerConfig(),
	})
}

func newTeams(tdb *TestDB) *teamapp.TeamService {
	db := tdb.DB
	return teamapp.NewTeamService(teamapp.TeamServiceConfig{
		Scope:       persistence.NewGormTeamTransactionScope(db),
		Teams:       persistence.NewGormTeamRepository(db),
		Members:     persistence.NewGormTeamMemberRepository(db),
		Allocations: persistence.NewGormTeamAllocationRepository(db),
		Accounts:    persistence.NewGormAccountRepository(db),
		Publisher:   &testutil.RecordingPublisher{},
	})
}

func TestLedger_ConcurrentDeductNeverOverspends(t *testing.T) {
	tdb := NewTestDB(t)
	ledger := newLedger(tdb)
	ctx := context.Background()

	_, err := ledger.Credit(ctx, creditapp.CreditRequest{UserID: "u1", Amount: 100, Source: credit.SourceBonus})
	require.NoError(t, err)

	var charged atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "storyboard"})
			if !assert.NoError(t, err) {
				return
			}
			if res.Success {
				charged.Add(1)
			} else {
				assert.Equal(t, creditapp.OutcomeInsufficientCredits, res.Outcome)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), charged.Load())

	balance, err := ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.Balance)
	assert.Equal(t, int64(90), balance.LifetimeSpent)

	report, err := ledger.VerifyLedger(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 7, report.Transactions)
}

func TestLedger_ConcurrentGrantWithSameKeyAppliesOnce(t *testing.T) {
	tdb := NewTestDB(t)
	ledger := newLedger(tdb)
	ctx := context.Background()

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Credit(ctx, creditapp.CreditRequest{
				UserID:         "u1",
				Amount:         200,
				Source:         credit.SourcePurchase,
				IdempotencyKey: "cs_test_123",
			})
			if assert.NoError(t, err) && res.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	balance, err := ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance.Balance)
}

func TestTeam_ConcurrentAllocationsStayWithinPool(t *testing.T) {
	tdb := NewTestDB(t)
	teams := newTeams(tdb)
	ctx := context.Background()

	accounts := persistence.NewGormAccountRepository(tdb.DB)
	account, err := accounts.GetOrCreate(ctx, "owner1")
	require.NoError(t, err)
	require.NoError(t, account.ChangePlan(billing.PlanEnterprise))
	require.NoError(t, accounts.Update(ctx, account))

	created, err := teams.CreateTeam(ctx, "owner1", shared.RoleUser, "Studio")
	require.NoError(t, err)
	_, err = persistence.NewGormCreditBalanceRepository(tdb.DB).Credit(ctx, "owner1", 100)
	require.NoError(t, err)
	_, err = teams.FundPool(ctx, created.ID, "owner1", 100)
	require.NoError(t, err)

	members := make([]*teamapp.MemberResponse, 0, 5)
	for i := 0; i < 5; i++ {
		m, err := teams.JoinTeam(ctx, fmt.Sprintf("member%d", i), created.InviteCode)
		require.NoError(t, err)
		members = append(members, m)
	}

	var granted atomic.Int32
	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := teams.Allocate(ctx, created.ID, m.ID, 30, "owner1")
			if err == nil {
				granted.Add(1)
				return
			}
			assert.ErrorIs(t, err, shared.ErrInsufficientPool)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())

	credits, err := teams.GetTeamCredits(ctx, created.ID, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), credits.Team.CreditAllocated)
	assert.Equal(t, int64(10), credits.Team.Unallocated)
}
