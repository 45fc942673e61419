package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published
type EventType string

const (
	// Provisioning events
	EventTenantProvisioned        EventType = "tenant.provisioned"
	EventProvisioningCompensated  EventType = "tenant.provisioning_compensated"

	// Agent events
	EventAgentAssigned EventType = "agent.assigned"

	// Identity events
	EventUserSignedIn EventType = "user.signed_in"
)

// Event represents a single event in the system
type Event struct {
	// ID is a unique identifier for this event (for idempotency)
	ID string

	// Type is the event type
	Type EventType

	// Timestamp is when the event occurred
	Timestamp time.Time

	// OrgID is the organization this event belongs to (optional for system events)
	OrgID string

	// Payload contains event-specific data
	Payload map[string]interface{}
}

// NewEvent creates a new event with the given type and payload
func NewEvent(eventType EventType, orgID string, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OrgID:     orgID,
		Payload:   payload,
	}
}
