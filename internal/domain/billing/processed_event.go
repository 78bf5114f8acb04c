package billing

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedEventStatus is the outcome recorded for a provider event
type ProcessedEventStatus string

const (
	ProcessedEventApplied ProcessedEventStatus = "processed"
	ProcessedEventIgnored ProcessedEventStatus = "ignored"
	ProcessedEventFailed  ProcessedEventStatus = "failed"
)

// ProcessedEvent is the audit row for one billing provider event
type ProcessedEvent struct {
	ID              uuid.UUID
	Provider        string
	ProviderEventID string
	EventType       string
	UserID          string
	Status          ProcessedEventStatus
	Message         string
	ProcessedAt     time.Time
}

// NewProcessedEvent creates an audit row for an event
func NewProcessedEvent(provider, providerEventID, eventType string) *ProcessedEvent {
	return &ProcessedEvent{
		ID:              uuid.New(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Status:          ProcessedEventApplied,
		ProcessedAt:     time.Now(),
	}
}

// Fail marks the event as failed with an error message
func (e *ProcessedEvent) Fail(err error) {
	e.Status = ProcessedEventFailed
	if err != nil {
		e.Message = err.Error()
	}
}

// Ignore marks the event as acknowledged without ledger effect
func (e *ProcessedEvent) Ignore(reason string) {
	e.Status = ProcessedEventIgnored
	e.Message = reason
}
