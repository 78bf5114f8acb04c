package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents something that happened to a ledger subject
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// SubjectID is the owner of the change: a user ID or a team ID.
	SubjectID() string
	SubjectType() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject_id"`
	SubjType  string    `json:"subject_type"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// SubjectID returns the ID of the subject that produced this event
func (e *BaseDomainEvent) SubjectID() string {
	return e.Subject
}

// SubjectType returns the kind of subject
func (e *BaseDomainEvent) SubjectType() string {
	return e.SubjType
}

// NewBaseDomainEvent creates a new base domain event
func NewBaseDomainEvent(eventType, subjectType, subjectID string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Subject:   subjectID,
		SubjType:  subjectType,
	}
}
