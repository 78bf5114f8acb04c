package team_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"github.com/mvstudio/backend/internal/infrastructure/persistence"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type teamFixture struct {
	db        *gorm.DB
	service   *teamapp.TeamService
	publisher *testutil.RecordingPublisher
}

func newTeamFixture(t *testing.T, scope func(db *gorm.DB) teamapp.TransactionScope) *teamFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t, persistence.Models()...)
	if scope == nil {
		scope = func(db *gorm.DB) teamapp.TransactionScope { return persistence.NewGormTeamTransactionScope(db) }
	}
	publisher := &testutil.RecordingPublisher{}
	service := teamapp.NewTeamService(teamapp.TeamServiceConfig{
		Scope:       scope(db),
		Teams:       persistence.NewGormTeamRepository(db),
		Members:     persistence.NewGormTeamMemberRepository(db),
		Allocations: persistence.NewGormTeamAllocationRepository(db),
		Accounts:    persistence.NewGormAccountRepository(db),
		Publisher:   publisher,
	})
	return &teamFixture{db: db, service: service, publisher: publisher}
}

func (f *teamFixture) fundOwner(t *testing.T, ownerID string, amount int64) {
	t.Helper()
	_, err := persistence.NewGormCreditBalanceRepository(f.db).Credit(context.Background(), ownerID, amount)
	require.NoError(t, err)
}

// setupTeam creates an enterprise owner with a funded pool and one member.
func (f *teamFixture) setupTeam(t *testing.T, pool int64) (*teamapp.TeamResponse, *teamapp.MemberResponse) {
	t.Helper()
	ctx := context.Background()
	accounts := persistence.NewGormAccountRepository(f.db)
	account, err := accounts.GetOrCreate(ctx, "owner1")
	require.NoError(t, err)
	require.NoError(t, account.ChangePlan(billing.PlanEnterprise))
	require.NoError(t, accounts.Update(ctx, account))

	created, err := f.service.CreateTeam(ctx, "owner1", shared.RoleUser, "Studio")
	require.NoError(t, err)

	f.fundOwner(t, "owner1", pool)
	_, err = f.service.FundPool(ctx, created.ID, "owner1", pool)
	require.NoError(t, err)

	member, err := f.service.JoinTeam(ctx, "u2", created.InviteCode)
	require.NoError(t, err)
	return created, member
}

func TestTeamService_CreateTeam(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, nil)

	_, err := f.service.CreateTeam(ctx, "free1", shared.RoleUser, "Studio")
	assert.Error(t, err, "free plan cannot create teams")

	created, err := f.service.CreateTeam(ctx, "staff1", shared.RoleAdmin, "Staff Studio")
	require.NoError(t, err)
	assert.NotEmpty(t, created.InviteCode)

	_, err = f.service.CreateTeam(ctx, "staff1", shared.RoleAdmin, "Again")
	assert.Error(t, err)

	_, err = f.service.JoinTeam(ctx, "u3", "NOPE1234")
	assert.Error(t, err)
}

func TestTeamService_AllocateAndReclaim(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, nil)
	created, member := f.setupTeam(t, 100)

	res, err := f.service.Allocate(ctx, created.ID, member.ID, 60, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.AllocatedCredits)
	assert.Equal(t, int64(40), res.TeamUnallocated)

	_, err = f.service.Allocate(ctx, created.ID, member.ID, 41, "owner1")
	assert.ErrorIs(t, err, shared.ErrInsufficientPool)

	_, err = f.service.Allocate(ctx, created.ID, member.ID, 10, "u2")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	ok, err := f.service.ConsumeTeamCredits(ctx, created.ID, member.ID, 50)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.service.ConsumeTeamCredits(ctx, created.ID, member.ID, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.service.Reclaim(ctx, created.ID, member.ID, 11, "owner1")
	assert.ErrorIs(t, err, shared.ErrInsufficientUnused)

	res, err = f.service.Reclaim(ctx, created.ID, member.ID, 10, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.AllocatedCredits)
	assert.Equal(t, int64(0), res.Available)
	assert.Equal(t, int64(50), res.TeamUnallocated)

	credits, err := f.service.GetTeamCredits(ctx, created.ID, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), credits.Team.CreditPool)
	assert.Equal(t, int64(50), credits.Team.CreditAllocated)
	require.Len(t, credits.Allocations, 2)

	var net int64
	for _, a := range credits.Allocations {
		net += a.Amount
	}
	assert.Equal(t, int64(50), net)

	assert.Contains(t, f.publisher.Types(), team.EventTypeCreditsAllocated)
	assert.Contains(t, f.publisher.Types(), team.EventTypeCreditsReclaimed)
}

func TestTeamService_FundPool(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, nil)
	created, _ := f.setupTeam(t, 30)

	_, err := f.service.FundPool(ctx, created.ID, "owner1", 1)
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)

	_, err = f.service.FundPool(ctx, created.ID, "u2", 1)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	rows, err := persistence.NewGormCreditTransactionRepository(f.db).ListPersonalInOrder(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(-30), rows[0].Amount)
	assert.Equal(t, credit.SourceTeam, rows[0].Source)
}

func TestTeamService_RemoveMember(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, nil)
	created, member := f.setupTeam(t, 100)

	_, err := f.service.Allocate(ctx, created.ID, member.ID, 40, "owner1")
	require.NoError(t, err)
	_, err = f.service.ConsumeTeamCredits(ctx, created.ID, member.ID, 15)
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveMember(ctx, created.ID, member.ID, "owner1"))

	credits, err := f.service.GetTeamCredits(ctx, created.ID, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), credits.Team.CreditAllocated, "spent credits stay allocated")
	assert.Len(t, credits.Members, 1)

	err = f.service.RemoveMember(ctx, created.ID, member.ID, "owner1")
	assert.Error(t, err)

	_, err = f.service.GetTeamCredits(ctx, created.ID, "u2")
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestTeamService_WithoutTransaction(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, func(db *gorm.DB) teamapp.TransactionScope {
		return teamapp.NewNoOpTransactionScope(
			persistence.NewGormTeamRepository(db),
			persistence.NewGormTeamMemberRepository(db),
			persistence.NewGormTeamAllocationRepository(db),
			persistence.NewGormTeamActivityRepository(db),
			persistence.NewGormCreditBalanceRepository(db),
			persistence.NewGormCreditTransactionRepository(db),
		)
	})
	created, member := f.setupTeam(t, 20)

	res, err := f.service.Allocate(ctx, created.ID, member.ID, 20, "owner1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TeamUnallocated)
}

// staleMemberRepo serves a snapshot taken before a concurrent change
type staleMemberRepo struct {
	team.MemberRepository
	snapshot *team.Member
}

func (r *staleMemberRepo) FindByID(ctx context.Context, id uuid.UUID) (*team.Member, error) {
	if r.snapshot != nil && r.snapshot.ID == id {
		m := *r.snapshot
		return &m, nil
	}
	return r.MemberRepository.FindByID(ctx, id)
}

func TestTeamService_AllocateToMemberRemovedMeanwhile(t *testing.T) {
	ctx := context.Background()
	var members *staleMemberRepo
	f := newTeamFixture(t, func(db *gorm.DB) teamapp.TransactionScope {
		members = &staleMemberRepo{MemberRepository: persistence.NewGormTeamMemberRepository(db)}
		return teamapp.NewNoOpTransactionScope(
			persistence.NewGormTeamRepository(db),
			members,
			persistence.NewGormTeamAllocationRepository(db),
			persistence.NewGormTeamActivityRepository(db),
			persistence.NewGormCreditBalanceRepository(db),
			persistence.NewGormCreditTransactionRepository(db),
		)
	})
	created, member := f.setupTeam(t, 100)

	repo := persistence.NewGormTeamMemberRepository(f.db)
	active, err := repo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	members.snapshot = active
	_, err = repo.MarkRemoved(ctx, member.ID)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, err = f.service.Allocate(ctx, created.ID, member.ID, 10, "owner1")
	})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.NotContains(t, f.publisher.Types(), team.EventTypeCreditsAllocated)
}

// failingMemberRepo fails membership lookups the way a dropped connection would
type failingMemberRepo struct {
	team.MemberRepository
	err error
}

func (r *failingMemberRepo) FindActiveByUser(context.Context, string) (*team.Member, error) {
	return nil, r.err
}

func TestTeamService_GetTeamCreditsMembershipLookup(t *testing.T) {
	ctx := context.Background()
	f := newTeamFixture(t, nil)
	created, _ := f.setupTeam(t, 50)

	_, err := f.service.GetTeamCredits(ctx, created.ID, "stranger")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	storageErr := errors.New("connection reset by peer")
	service := teamapp.NewTeamService(teamapp.TeamServiceConfig{
		Scope:       persistence.NewGormTeamTransactionScope(f.db),
		Teams:       persistence.NewGormTeamRepository(f.db),
		Members:     &failingMemberRepo{MemberRepository: persistence.NewGormTeamMemberRepository(f.db), err: storageErr},
		Allocations: persistence.NewGormTeamAllocationRepository(f.db),
		Accounts:    persistence.NewGormAccountRepository(f.db),
	})
	_, err = service.GetTeamCredits(ctx, created.ID, "u2")
	assert.ErrorIs(t, err, storageErr)
	assert.NotErrorIs(t, err, shared.ErrForbidden)
}
