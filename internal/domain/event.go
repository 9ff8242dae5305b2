package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of domain event.
type EventType string

const (
	EventInstanceCreated           EventType = "INSTANCE_CREATED"
	EventInstanceStateChanged      EventType = "INSTANCE_STATE_CHANGED"
	EventInstanceDeletionRequested EventType = "INSTANCE_DELETION_REQUESTED"
	EventEnvironmentArchived       EventType = "ENVIRONMENT_ARCHIVED"
	EventQuotaUpdated              EventType = "QUOTA_UPDATED"
)

// DomainEvent is emitted after the change it describes has been committed.
// Handlers observe; they never veto.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// StateChangedPayload is the payload of EventInstanceStateChanged.
type StateChangedPayload struct {
	From InstanceState `json:"from"`
	To   InstanceState `json:"to"`
}

// ToJSON converts payload to JSON bytes.
func (p StateChangedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ArchivedPayload is the payload of EventEnvironmentArchived.
type ArchivedPayload struct {
	Status           EnvironmentStatus `json:"status"`
	FlaggedInstances int               `json:"flagged_instances"`
}

// ToJSON converts payload to JSON bytes.
func (p ArchivedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}
