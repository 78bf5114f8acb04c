package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventSerializer_LedgerEvents(t *testing.T) {
	s := NewEventSerializer()
	RegisterLedgerEvents(s)

	for _, eventType := range LedgerEventTypes {
		assert.True(t, s.IsRegistered(eventType), eventType)
	}

	original := credit.NewCreditsDeductedEvent("u1", "klingVideo", 80, credit.BucketTeam, 120)
	data, err := s.Serialize(original)
	require.NoError(t, err)

	decoded, err := s.Deserialize(credit.EventTypeCreditsDeducted, data)
	require.NoError(t, err)
	got, ok := decoded.(*credit.CreditsDeductedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), got.EventID())
	assert.Equal(t, credit.BucketTeam, got.Bucket)
	assert.Equal(t, int64(120), got.BalanceAfter)

	_, err = s.Deserialize("credit.unknown", data)
	assert.Error(t, err)
}

func TestLedgerEventLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	serializer := NewEventSerializer()
	RegisterLedgerEvents(serializer)
	l := NewLedgerEventLogger(serializer, zap.New(core))
	ctx := context.Background()

	shortfall := &credit.RefundShortfall{ID: uuid.New(), UserID: "u1", Requested: 58, Applied: 20, Shortfall: 38}
	require.NoError(t, l.Handle(ctx, credit.NewRefundShortfallEvent(shortfall)))
	require.NoError(t, l.Handle(ctx, credit.NewDeductionRejectedEvent("u1", "storyboard", 15, 10)))
	require.NoError(t, l.Handle(ctx, team.NewPoolFundedEvent(&team.Team{BaseEntity: shared.BaseEntity{ID: uuid.New()}, OwnerID: "o1", CreditPool: 100}, 100)))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].ContextMap()["payload"].(string)), &payload))
	assert.EqualValues(t, 38, payload["shortfall"])
	assert.Equal(t, "u1", entries[0].ContextMap()["subject_id"])
}
