package team

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTeam(t *testing.T) {
	t.Run("valid team", func(t *testing.T) {
		tm, err := NewTeam("owner1", "  Studio A  ")
		require.NoError(t, err)
		assert.Equal(t, "Studio A", tm.Name)
		assert.Equal(t, DefaultMaxMembers, tm.MaxMembers)
		assert.Len(t, tm.InviteCode, 8)
		assert.NotEqual(t, uuid.Nil, tm.ID)
	})

	t.Run("rejects empty owner", func(t *testing.T) {
		_, err := NewTeam("", "Studio")
		assert.Error(t, err)
	})

	t.Run("rejects long name", func(t *testing.T) {
		_, err := NewTeam("owner1", strings.Repeat("x", 101))
		assert.Error(t, err)
	})

	t.Run("invite codes differ", func(t *testing.T) {
		a, err := GenerateInviteCode()
		require.NoError(t, err)
		b, err := GenerateInviteCode()
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestTeam_Verify(t *testing.T) {
	tm, err := NewTeam("owner1", "Studio")
	require.NoError(t, err)

	tm.CreditPool, tm.CreditAllocated = 100, 60
	assert.Equal(t, int64(40), tm.Unallocated())
	assert.NoError(t, tm.Verify())

	tm.CreditAllocated = 101
	err = tm.Verify()
	require.Error(t, err)
	assert.True(t, shared.IsIntegrityError(err))
}

func TestMember(t *testing.T) {
	_, err := NewMember(uuid.New(), "u1", MemberRole("boss"))
	assert.Error(t, err)

	m, err := NewMember(uuid.New(), "u1", MemberRoleMember)
	require.NoError(t, err)
	assert.True(t, m.IsActive())
	assert.False(t, m.Role.CanManageCredits())
	assert.True(t, MemberRoleAdmin.CanManageCredits())

	m.AllocatedCredits, m.UsedCredits = 50, 20
	assert.Equal(t, int64(30), m.Available())
	assert.NoError(t, m.Verify())

	m.UsedCredits = 51
	assert.True(t, shared.IsIntegrityError(m.Verify()))
}

func TestValidateAmount(t *testing.T) {
	assert.Error(t, ValidateAmount(0))
	assert.Error(t, ValidateAmount(MaxAllocation+1))
	assert.NoError(t, ValidateAmount(1))
	assert.NoError(t, ValidateAmount(MaxAllocation))
}

func TestCreditAllocation_Sign(t *testing.T) {
	teamID, memberID := uuid.New(), uuid.New()

	a := NewCreditAllocation(teamID, memberID, AllocationKindAllocate, 30, 30, "owner1", "")
	assert.Equal(t, int64(30), a.Amount)

	r := NewCreditAllocation(teamID, memberID, AllocationKindReclaim, 10, 20, "owner1", "")
	assert.Equal(t, int64(-10), r.Amount)

	ev := NewAllocationChangedEvent(r)
	assert.Equal(t, EventTypeCreditsReclaimed, ev.EventType())
	assert.Equal(t, teamID.String(), ev.SubjectID())
}

func TestActivityLog_Metadata(t *testing.T) {
	log := NewActivityLog(uuid.New(), "owner1", ActivityCreditsAllocate, "allocated").
		WithTarget("u2").
		With("amount", 30)

	assert.Equal(t, "u2", log.TargetUserID)
	assert.JSONEq(t, `{"amount":30}`, log.MetadataJSON())

	empty := NewActivityLog(uuid.New(), "owner1", ActivityTeamCreated, "")
	assert.Equal(t, "{}", empty.MetadataJSON())
}
