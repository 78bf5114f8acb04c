package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createTeam(t *testing.T, db *gorm.DB, owner string, pool int64) *team.Team {
	t.Helper()
	tm, err := team.NewTeam(owner, "Studio "+owner)
	require.NoError(t, err)
	tm.CreditPool = pool
	require.NoError(t, NewGormTeamRepository(db).Create(context.Background(), tm))
	return tm
}

func createMember(t *testing.T, db *gorm.DB, teamID uuid.UUID, userID string, allocated int64) *team.Member {
	t.Helper()
	m, err := team.NewMember(teamID, userID, team.MemberRoleMember)
	require.NoError(t, err)
	m.AllocatedCredits = allocated
	require.NoError(t, NewGormTeamMemberRepository(db).Create(context.Background(), m))
	return m
}

func TestGormTeamRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormTeamRepository(db)
	tm := createTeam(t, db, "owner1", 100)

	t.Run("lookups", func(t *testing.T) {
		byOwner, err := repo.FindByOwner(ctx, "owner1")
		require.NoError(t, err)
		assert.Equal(t, tm.ID, byOwner.ID)

		byCode, err := repo.FindByInviteCode(ctx, tm.InviteCode)
		require.NoError(t, err)
		assert.Equal(t, tm.ID, byCode.ID)

		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("one team per owner", func(t *testing.T) {
		dup, err := team.NewTeam("owner1", "Second")
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)
	})

	t.Run("reserve respects unallocated pool", func(t *testing.T) {
		updated, err := repo.ReserveAllocation(ctx, tm.ID, 70)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, int64(30), updated.Unallocated())

		rejected, err := repo.ReserveAllocation(ctx, tm.ID, 31)
		require.NoError(t, err)
		assert.Nil(t, rejected)
	})

	t.Run("release cannot go below zero", func(t *testing.T) {
		rejected, err := repo.ReleaseAllocation(ctx, tm.ID, 71)
		require.NoError(t, err)
		assert.Nil(t, rejected)

		updated, err := repo.ReleaseAllocation(ctx, tm.ID, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(50), updated.CreditAllocated)
	})

	t.Run("fund pool", func(t *testing.T) {
		updated, err := repo.AddToPool(ctx, tm.ID, 25)
		require.NoError(t, err)
		assert.Equal(t, int64(125), updated.CreditPool)
		assert.NoError(t, updated.Verify())

		_, err = repo.AddToPool(ctx, uuid.New(), 25)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTeamMemberRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormTeamMemberRepository(db)
	tm := createTeam(t, db, "owner1", 100)
	m := createMember(t, db, tm.ID, "u2", 30)

	t.Run("consume within allocation", func(t *testing.T) {
		updated, err := repo.Consume(ctx, m.ID, 20)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, int64(10), updated.Available())

		rejected, err := repo.Consume(ctx, m.ID, 11)
		require.NoError(t, err)
		assert.Nil(t, rejected)
	})

	t.Run("decrease only touches unused credits", func(t *testing.T) {
		rejected, err := repo.DecreaseAllocation(ctx, m.ID, 11)
		require.NoError(t, err)
		assert.Nil(t, rejected)

		updated, err := repo.DecreaseAllocation(ctx, m.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(25), updated.AllocatedCredits)
	})

	t.Run("active lookups", func(t *testing.T) {
		active, err := repo.FindActiveByUser(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, m.ID, active.ID)

		count, err := repo.CountActive(ctx, tm.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("mark removed releases unused allocation", func(t *testing.T) {
		released, err := repo.MarkRemoved(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), released)

		removed, err := repo.FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, team.MemberStatusRemoved, removed.Status)
		assert.Equal(t, int64(20), removed.AllocatedCredits)
		assert.Equal(t, int64(0), removed.Available())

		_, err = repo.MarkRemoved(ctx, m.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)

		_, err = repo.FindActiveByUser(ctx, "u2")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		members, err := repo.ListByTeam(ctx, tm.ID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("removed members cannot consume or receive", func(t *testing.T) {
		consumed, err := repo.Consume(ctx, m.ID, 1)
		require.NoError(t, err)
		assert.Nil(t, consumed)

		increased, err := repo.IncreaseAllocation(ctx, m.ID, 1)
		require.NoError(t, err)
		assert.Nil(t, increased)
	})
}

func TestGormTeamHistoryRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tm := createTeam(t, db, "owner1", 100)
	m := createMember(t, db, tm.ID, "u2", 0)

	allocations := NewGormTeamAllocationRepository(db)
	require.NoError(t, allocations.Create(ctx, team.NewCreditAllocation(tm.ID, m.ID, team.AllocationKindAllocate, 30, 30, "owner1", "")))
	require.NoError(t, allocations.Create(ctx, team.NewCreditAllocation(tm.ID, m.ID, team.AllocationKindReclaim, 10, 20, "owner1", "unused")))

	rows, err := allocations.ListByTeam(ctx, tm.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var sum int64
	for _, r := range rows {
		sum += r.Amount
	}
	assert.Equal(t, int64(20), sum)

	activity := NewGormTeamActivityRepository(db)
	entry := team.NewActivityLog(tm.ID, "owner1", team.ActivityCreditsAllocate, "allocated").
		WithTarget("u2").
		With("amount", 30)
	require.NoError(t, activity.Create(ctx, entry))

	logs, err := activity.ListByTeam(ctx, tm.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "u2", logs[0].TargetUserID)
	assert.EqualValues(t, 30, logs[0].Metadata["amount"])
}

func TestGormTransactionScope_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	boom := errors.New("boom")

	err := scope.Execute(ctx, func(repos creditapp.TransactionalRepositories) error {
		if _, err := repos.BalanceRepo().Credit(ctx, "u1", 50); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewGormCreditBalanceRepository(db).FindByUserID(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = scope.Execute(ctx, func(repos creditapp.TransactionalRepositories) error {
		_, err := repos.BalanceRepo().Credit(ctx, "u1", 50)
		return err
	})
	require.NoError(t, err)

	b, err := NewGormCreditBalanceRepository(db).FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.Balance)
}

func TestGormTeamMemberRepository_MarkRemovedGuardsAllocation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	id := uuid.New()
	columns := []string{"id", "team_id", "user_id", "role", "status", "allocated_credits", "used_credits", "joined_at", "removed_at", "created_at", "updated_at"}
	now := time.Now()
	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "team_members"`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(id.String(), uuid.New().String(), "u2", "member", "active", int64(40), int64(15), now, nil, now, now))
	// an allocation committed after the read no longer matches the guard
	mockDB.Mock.ExpectExec(`UPDATE "team_members" SET .+ WHERE .*allocated_credits = \$\d+ AND used_credits = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewGormTeamMemberRepository(mockDB.DB)
	released, err := repo.MarkRemoved(context.Background(), id)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, int64(0), released)
	mockDB.ExpectationsWereMet(t)
}
