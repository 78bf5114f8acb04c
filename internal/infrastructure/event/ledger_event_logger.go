package event

import (
	"context"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LedgerEventLogger writes every ledger event to the log as an audit line
type LedgerEventLogger struct {
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewLedgerEventLogger creates a LedgerEventLogger
func NewLedgerEventLogger(serializer *EventSerializer, logger *zap.Logger) *LedgerEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerEventLogger{serializer: serializer, logger: logger.Named("ledger_events")}
}

// EventTypes returns the ledger event types
func (l *LedgerEventLogger) EventTypes() []string {
	return LedgerEventTypes
}

// Handle logs ev with its JSON payload
func (l *LedgerEventLogger) Handle(_ context.Context, ev shared.DomainEvent) error {
	payload, err := l.serializer.Serialize(ev)
	if err != nil {
		return err
	}
	if ce := l.logger.Check(levelFor(ev.EventType()), "Ledger event"); ce != nil {
		ce.Write(
			zap.String("event_id", ev.EventID().String()),
			zap.String("event_type", ev.EventType()),
			zap.String("subject_type", ev.SubjectType()),
			zap.String("subject_id", ev.SubjectID()),
			zap.Time("occurred_at", ev.OccurredAt()),
			zap.String("payload", string(payload)))
	}
	return nil
}

func levelFor(eventType string) zapcore.Level {
	switch eventType {
	case credit.EventTypeRefundShortfall:
		return zapcore.WarnLevel
	case credit.EventTypeDeductionRejected, credit.EventTypeAdminBypassRecorded:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

var _ shared.EventHandler = (*LedgerEventLogger)(nil)
