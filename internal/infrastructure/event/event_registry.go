package event

import (
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/team"
)

// LedgerEventTypes lists every event the credit and team ledgers publish
var LedgerEventTypes = []string{
	credit.EventTypeCreditsDeducted,
	credit.EventTypeCreditsGranted,
	credit.EventTypeDeductionRejected,
	credit.EventTypeRefundShortfall,
	credit.EventTypeAdminBypassRecorded,
	team.EventTypeCreditsAllocated,
	team.EventTypeCreditsReclaimed,
	team.EventTypePoolFunded,
}

// RegisterLedgerEvents registers the ledger's event types with serializer
func RegisterLedgerEvents(serializer *EventSerializer) {
	serializer.Register(credit.EventTypeCreditsDeducted, &credit.CreditsDeductedEvent{})
	serializer.Register(credit.EventTypeCreditsGranted, &credit.CreditsGrantedEvent{})
	serializer.Register(credit.EventTypeDeductionRejected, &credit.DeductionRejectedEvent{})
	serializer.Register(credit.EventTypeRefundShortfall, &credit.RefundShortfallEvent{})
	serializer.Register(credit.EventTypeAdminBypassRecorded, &credit.AdminBypassEvent{})
	serializer.Register(team.EventTypeCreditsAllocated, &team.AllocationChangedEvent{})
	serializer.Register(team.EventTypeCreditsReclaimed, &team.AllocationChangedEvent{})
	serializer.Register(team.EventTypePoolFunded, &team.PoolFundedEvent{})
}
