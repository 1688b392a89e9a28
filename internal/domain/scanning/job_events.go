package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelar/facetrace/internal/domain/events"
)

// Event types for scan job lifecycle.
const (
	// EventTypeJobRequested is published when a caller submits a job for
	// execution. It is the delivery unit of the queue/dispatch layer.
	EventTypeJobRequested events.EventType = "ScanJobRequested"

	// EventTypeJobCompleted is published when a job reaches the completed state.
	EventTypeJobCompleted events.EventType = "ScanJobCompleted"

	// EventTypeJobFailed is published when a job reaches the failed state.
	EventTypeJobFailed events.EventType = "ScanJobFailed"

	// EventTypeJobCancelled is published when an external cancel request lands.
	EventTypeJobCancelled events.EventType = "ScanJobCancelled"
)

// JobRequestedEvent signals that a scan job is ready to be picked up by a
// worker. Delivery is at-least-once; consumers must tolerate redelivery of
// jobs that already reached a terminal state.
type JobRequestedEvent struct {
	occurredAt time.Time

	JobID uuid.UUID
	// Attempt is the delivery attempt number, starting at 1.
	Attempt int
}

// NewJobRequestedEvent creates a new job requested event.
func NewJobRequestedEvent(jobID uuid.UUID) JobRequestedEvent {
	return JobRequestedEvent{
		occurredAt: time.Now(),
		JobID:      jobID,
		Attempt:    1,
	}
}

// ReconstructJobRequestedEvent recreates an event from its wire form.
// This should only be used by the serialization layer.
func ReconstructJobRequestedEvent(jobID uuid.UUID, attempt int, occurredAt time.Time) JobRequestedEvent {
	return JobRequestedEvent{
		occurredAt: occurredAt,
		JobID:      jobID,
		Attempt:    attempt,
	}
}

// EventType returns the type of this event.
func (e JobRequestedEvent) EventType() events.EventType { return EventTypeJobRequested }

// OccurredAt returns when this event occurred.
func (e JobRequestedEvent) OccurredAt() time.Time { return e.occurredAt }

// JobLifecycleEvent signals that a job reached a terminal state. It exists for
// observers (notifications, audit); the pipeline itself does not consume it.
type JobLifecycleEvent struct {
	occurredAt time.Time
	eventType  events.EventType

	JobID  uuid.UUID
	Status JobStatus
}

// NewJobCompletedEvent creates a lifecycle event for a completed job.
func NewJobCompletedEvent(jobID uuid.UUID) JobLifecycleEvent {
	return JobLifecycleEvent{
		occurredAt: time.Now(),
		eventType:  EventTypeJobCompleted,
		JobID:      jobID,
		Status:     JobStatusCompleted,
	}
}

// NewJobFailedEvent creates a lifecycle event for a failed job.
func NewJobFailedEvent(jobID uuid.UUID) JobLifecycleEvent {
	return JobLifecycleEvent{
		occurredAt: time.Now(),
		eventType:  EventTypeJobFailed,
		JobID:      jobID,
		Status:     JobStatusFailed,
	}
}

// NewJobCancelledEvent creates a lifecycle event for a cancelled job.
func NewJobCancelledEvent(jobID uuid.UUID) JobLifecycleEvent {
	return JobLifecycleEvent{
		occurredAt: time.Now(),
		eventType:  EventTypeJobCancelled,
		JobID:      jobID,
		Status:     JobStatusCancelled,
	}
}

// ReconstructJobLifecycleEvent recreates a lifecycle event from its wire form.
// This should only be used by the serialization layer.
func ReconstructJobLifecycleEvent(
	eventType events.EventType,
	jobID uuid.UUID,
	status JobStatus,
	occurredAt time.Time,
) JobLifecycleEvent {
	return JobLifecycleEvent{
		occurredAt: occurredAt,
		eventType:  eventType,
		JobID:      jobID,
		Status:     status,
	}
}

// EventType returns the type of this event.
func (e JobLifecycleEvent) EventType() events.EventType { return e.eventType }

// OccurredAt returns when this event occurred.
func (e JobLifecycleEvent) OccurredAt() time.Time { return e.occurredAt }
