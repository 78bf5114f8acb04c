package credit_test

import (
	"context"
	"testing"

	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"github.com/mvstudio/backend/internal/infrastructure/persistence"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db        *gorm.DB
	service   *creditapp.LedgerService
	publisher *testutil.RecordingPublisher
	logs      *observer.ObservedLogs
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t, persistence.Models()...)
	core, logs := observer.New(zap.DebugLevel)
	publisher := &testutil.RecordingPublisher{}

	service := creditapp.NewLedgerService(creditapp.LedgerServiceConfig{
		Scope:        persistence.NewGormTransactionScope(db),
		Balances:     persistence.NewGormCreditBalanceRepository(db),
		Transactions: persistence.NewGormCreditTransactionRepository(db),
		BetaQuotas:   persistence.NewGormBetaQuotaRepository(db),
		Shortfalls:   persistence.NewGormRefundShortfallRepository(db),
		Members:      persistence.NewGormTeamMemberRepository(db),
		Publisher:    publisher,
		Logger:       zap.New(core),
		Config:       creditapp.DefaultLedgerConfig(),
	})
	return &ledgerFixture{db: db, service: service, publisher: publisher, logs: logs}
}

func (f *ledgerFixture) grant(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.service.Credit(context.Background(), creditapp.CreditRequest{
		UserID: userID,
		Amount: amount,
		Source: credit.SourceBonus,
	})
	require.NoError(t, err)
}

func (f *ledgerFixture) joinTeam(t *testing.T, userID string, allocated int64) *team.Member {
	t.Helper()
	ctx := context.Background()
	tm, err := team.NewTeam("owner-"+userID, "Studio")
	require.NoError(t, err)
	tm.CreditPool = allocated
	tm.CreditAllocated = allocated
	require.NoError(t, persistence.NewGormTeamRepository(f.db).Create(ctx, tm))

	m, err := team.NewMember(tm.ID, userID, team.MemberRoleMember)
	require.NoError(t, err)
	m.AllocatedCredits = allocated
	require.NoError(t, persistence.NewGormTeamMemberRepository(f.db).Create(ctx, m))
	return m
}

func TestLedgerService_GrantThenCharge(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.grant(t, "u1", 10)

	res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "storyboard"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, creditapp.OutcomeInsufficientCredits, res.Outcome)
	assert.Equal(t, int64(15), res.Cost)

	credited, err := f.service.Credit(ctx, creditapp.CreditRequest{
		UserID:         "u1",
		Amount:         50,
		Source:         credit.SourcePurchase,
		IdempotencyKey: "evt_123",
	})
	require.NoError(t, err)
	assert.True(t, credited.Applied)
	assert.Equal(t, int64(60), credited.BalanceAfter)

	again, err := f.service.Credit(ctx, creditapp.CreditRequest{
		UserID:         "u1",
		Amount:         50,
		Source:         credit.SourcePurchase,
		IdempotencyKey: "evt_123",
	})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, int64(60), again.BalanceAfter)

	res, err = f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "storyboard"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, creditapp.SourcePersonal, res.Source)
	assert.Equal(t, int64(45), res.BalanceAfter)
	assert.False(t, res.LowBalance)

	report, err := f.service.VerifyLedger(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(45), report.ReplayedSum)

	assert.Equal(t, []string{
		credit.EventTypeCreditsGranted,
		credit.EventTypeDeductionRejected,
		credit.EventTypeCreditsGranted,
		credit.EventTypeCreditsDeducted,
	}, f.publisher.Types())
}

func TestLedgerService_Deduct(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown action", func(t *testing.T) {
		f := newLedgerFixture(t)
		_, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Action: "teleport"})
		assert.Error(t, err)
	})

	t.Run("falls back to team allocation", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 3)
		m := f.joinTeam(t, "u1", 20)

		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "mvAnalysis"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, creditapp.SourceTeam, res.Source)
		assert.Equal(t, int64(12), res.BalanceAfter)

		member, err := persistence.NewGormTeamMemberRepository(f.db).FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(8), member.UsedCredits)

		balance, err := f.service.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), balance.Balance, "personal balance untouched by team charge")

		report, err := f.service.VerifyLedger(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, report.Consistent)

		available, err := f.service.GetAvailableCredits(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(15), available.TotalAvailable)
		require.NotNil(t, available.TeamID)
		assert.Equal(t, m.TeamID, *available.TeamID)
	})

	t.Run("personal balance is charged before team allocation", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 20)
		m := f.joinTeam(t, "u1", 20)

		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "mvAnalysis"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, creditapp.SourcePersonal, res.Source)
		assert.Equal(t, int64(12), res.BalanceAfter)

		member, err := persistence.NewGormTeamMemberRepository(f.db).FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), member.UsedCredits, "team allocation untouched")
	})

	t.Run("insufficient in both buckets changes nothing", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 3)
		m := f.joinTeam(t, "u1", 5)

		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "mvAnalysis"})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, creditapp.OutcomeInsufficientCredits, res.Outcome)

		balance, err := f.service.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), balance.Balance)

		member, err := persistence.NewGormTeamMemberRepository(f.db).FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), member.UsedCredits)

		page, err := f.service.ListTransactions(ctx, "u1", shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, page.Items, 1, "only the grant is recorded")
		assert.Equal(t, int64(3), page.Items[0].Amount)
	})

	t.Run("staff bypass writes a zero row", func(t *testing.T) {
		f := newLedgerFixture(t)
		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "admin1", Role: shared.RoleAdmin, Action: "klingVideo"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, creditapp.OutcomeAdminBypass, res.Outcome)
		assert.Equal(t, int64(80), res.Cost)

		page, err := f.service.ListTransactions(ctx, "admin1", shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(0), page.Items[0].Amount)
		assert.Equal(t, string(credit.SourceAdmin), page.Items[0].Source)
		assert.Equal(t, 1, f.logs.FilterMessage("Staff credit bypass").Len())
	})

	t.Run("low balance flag", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 12)
		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D"})
		require.NoError(t, err)
		assert.True(t, res.LowBalance)
		assert.Equal(t, int64(7), res.BalanceAfter)
	})

	t.Run("beta quota exhaustion rolls back the charge", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 100)
		_, err := f.service.GrantBetaQuota(ctx, creditapp.GrantBetaQuotaRequest{
			UserID:     "u1",
			TotalQuota: 5,
			KlingLimit: 0,
			IsActive:   true,
			GrantedBy:  "admin1",
		})
		require.NoError(t, err)

		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "klingVideo", UseBetaQuota: true})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, creditapp.OutcomeBetaQuotaExceeded, res.Outcome)

		balance, err := f.service.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance.Balance)

		res, err = f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D", UseBetaQuota: true})
		require.NoError(t, err)
		assert.True(t, res.Success)

		quota, err := f.service.GetBetaQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), quota.UsedCount)
	})

	t.Run("insufficient credits leave no rows", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 2)
		ok, err := f.service.HasEnoughCredits(ctx, "u1", shared.RoleUser, "rapid3D")
		require.NoError(t, err)
		assert.False(t, ok)

		res, err := f.service.Deduct(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D"})
		require.NoError(t, err)
		assert.Equal(t, creditapp.OutcomeInsufficientCredits, res.Outcome)
		assert.Equal(t, int64(2), res.BalanceAfter)

		page, err := f.service.ListTransactions(ctx, "u1", shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})
}

func TestLedgerService_DeductBatch(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.grant(t, "u1", 12)

	res, err := f.service.DeductBatch(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D"}, 4)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Generated)
	assert.True(t, res.Fallback)
	assert.Equal(t, int64(10), res.TotalCost)
	assert.Equal(t, int64(2), res.RemainingBalance)

	_, err = f.service.DeductBatch(ctx, creditapp.DeductRequest{UserID: "u1", Action: "rapid3D"}, 0)
	assert.Error(t, err)
	_, err = f.service.DeductBatch(ctx, creditapp.DeductRequest{UserID: "u1", Action: "rapid3D"}, 21)
	assert.Error(t, err)
}

func TestLedgerService_DeductBatchAcrossBuckets(t *testing.T) {
	ctx := context.Background()

	t.Run("units never split across buckets", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 3)
		f.joinTeam(t, "u1", 3)

		res, err := f.service.DeductBatch(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D"}, 2)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, 0, res.Generated)
		assert.True(t, res.Fallback)
		assert.NotContains(t, f.publisher.Types(), credit.EventTypeDeductionRejected)
	})

	t.Run("personal then team", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 7)
		f.joinTeam(t, "u1", 5)

		res, err := f.service.DeductBatch(ctx, creditapp.DeductRequest{UserID: "u1", Role: shared.RoleUser, Action: "rapid3D"}, 4)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Generated)
		assert.Equal(t, []string{creditapp.SourcePersonal, creditapp.SourceTeam}, res.Sources)
		assert.Equal(t, int64(2), res.RemainingBalance)
		assert.NotContains(t, f.publisher.Types(), credit.EventTypeDeductionRejected)
	})
}

func TestLedgerService_Credit(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	_, err := f.service.Credit(ctx, creditapp.CreditRequest{UserID: "u1", Amount: 0, Source: credit.SourceBonus})
	assert.Error(t, err)

	_, err = f.service.Credit(ctx, creditapp.CreditRequest{UserID: "u1", Amount: 5, Source: credit.SourceUsage})
	assert.Error(t, err, "usage cannot grant credits")

	_, err = f.service.Credit(ctx, creditapp.CreditRequest{Amount: 5, Source: credit.SourceBonus})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestLedgerService_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("full refund", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 50)
		res, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 30, IdempotencyKey: "stripe:ch_1"})
		require.NoError(t, err)
		assert.Equal(t, int64(30), res.Applied)
		assert.Equal(t, int64(0), res.Shortfall)
		assert.Equal(t, int64(20), res.BalanceAfter)
		assert.Nil(t, res.ShortfallID)

		dup, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 30, IdempotencyKey: "stripe:ch_1"})
		require.NoError(t, err)
		assert.True(t, dup.Duplicate)
		assert.Equal(t, int64(20), dup.BalanceAfter)
	})

	t.Run("shortfall is clamped and recorded", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.grant(t, "u1", 20)
		res, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 58, IdempotencyKey: "stripe:ch_2"})
		require.NoError(t, err)
		assert.Equal(t, int64(20), res.Applied)
		assert.Equal(t, int64(38), res.Shortfall)
		assert.Equal(t, int64(0), res.BalanceAfter)
		require.NotNil(t, res.ShortfallID)
		assert.Equal(t, 1, f.logs.FilterMessage("Refund shortfall recorded for manual review").Len())

		pending, err := f.service.ListShortfalls(ctx, "pending", shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, pending.Items, 1)
		assert.Equal(t, int64(38), pending.Items[0].Shortfall)

		resolved, err := f.service.ResolveShortfall(ctx, *res.ShortfallID, "waived", "admin1", "goodwill")
		require.NoError(t, err)
		assert.Equal(t, "waived", resolved.Status)

		_, err = f.service.ResolveShortfall(ctx, *res.ShortfallID, "resolved", "admin1", "")
		assert.Error(t, err)

		report, err := f.service.VerifyLedger(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, report.Consistent)
	})

	t.Run("refund of an empty balance still records the key", func(t *testing.T) {
		f := newLedgerFixture(t)
		res, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 10, IdempotencyKey: "stripe:ch_3"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Applied)
		assert.Equal(t, int64(10), res.Shortfall)

		dup, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 10, IdempotencyKey: "stripe:ch_3"})
		require.NoError(t, err)
		assert.True(t, dup.Duplicate)
	})

	t.Run("rejects non-positive credits", func(t *testing.T) {
		f := newLedgerFixture(t)
		_, err := f.service.Refund(ctx, creditapp.RefundRequest{UserID: "u1", Credits: 0})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestLedgerService_VerifyLedger_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.grant(t, "u1", 20)

	require.NoError(t, f.db.Exec("UPDATE credit_balances SET balance = 25 WHERE user_id = ?", "u1").Error)

	report, err := f.service.VerifyLedger(ctx, "u1")
	require.Error(t, err)
	assert.True(t, shared.IsIntegrityError(err))
	require.NotNil(t, report)
	assert.False(t, report.Consistent)
	assert.Equal(t, int64(20), report.ReplayedSum)
	assert.Equal(t, 1, f.logs.FilterMessage("Credit ledger integrity violation").Len())
}

func TestLedgerService_BetaBonus(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	_, err := f.service.AddBetaBonus(ctx, "u1", 0)
	assert.Error(t, err)

	_, err = f.service.AddBetaBonus(ctx, "u1", 5)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.service.GrantBetaQuota(ctx, creditapp.GrantBetaQuotaRequest{UserID: "u1", TotalQuota: 2, KlingLimit: 1, IsActive: true})
	require.NoError(t, err)
	quota, err := f.service.AddBetaBonus(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), quota.Remaining)
}
