package events

import "time"

// DomainEvent is implemented by all events that describe something that
// happened in the scanning domain.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	OccurredAt() time.Time
}

// EventMetadata carries transport-level position information for a consumed
// event. It is populated by the messaging infrastructure, not by publishers.
type EventMetadata struct {
	// Partition identifies the partition the event was consumed from.
	Partition int32
	// Offset is the position of the event within its partition.
	Offset int64
}

// EventEnvelope wraps a domain event payload with the routing and positioning
// information the messaging layer needs to deliver and acknowledge it.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a JobID that events can be partitioned by.
	Key string

	// Timestamp records when this envelope was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any

	// Metadata carries transport position details for consumed events.
	Metadata EventMetadata
}
