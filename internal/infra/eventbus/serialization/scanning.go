package serialization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
)

// RegisterEventSerializers initializes the serialization system by registering
// handlers for all supported event types. This runs during package init,
// before any event processing can occur.
func RegisterEventSerializers() {
	RegisterSerializeFunc(scanning.EventTypeJobRequested, serializeJobRequested)
	RegisterDeserializeFunc(scanning.EventTypeJobRequested, deserializeJobRequested)

	for _, et := range []events.EventType{
		scanning.EventTypeJobCompleted,
		scanning.EventTypeJobFailed,
		scanning.EventTypeJobCancelled,
	} {
		RegisterSerializeFunc(et, serializeJobLifecycle)
		RegisterDeserializeFunc(et, deserializeJobLifecycle(et))
	}
}

// jobRequestedWire is the JSON wire form of scanning.JobRequestedEvent.
type jobRequestedWire struct {
	JobID      uuid.UUID `json:"job_id"`
	Attempt    int       `json:"attempt"`
	OccurredAt time.Time `json:"occurred_at"`
}

func serializeJobRequested(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.JobRequestedEvent)
	if !ok {
		return nil, fmt.Errorf("serializeJobRequested: payload is not scanning.JobRequestedEvent")
	}
	return json.Marshal(jobRequestedWire{
		JobID:      evt.JobID,
		Attempt:    evt.Attempt,
		OccurredAt: evt.OccurredAt(),
	})
}

func deserializeJobRequested(data []byte) (any, error) {
	var wire jobRequestedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal JobRequestedEvent: %w", err)
	}
	return scanning.ReconstructJobRequestedEvent(wire.JobID, wire.Attempt, wire.OccurredAt), nil
}

// jobLifecycleWire is the JSON wire form of scanning.JobLifecycleEvent.
type jobLifecycleWire struct {
	JobID      uuid.UUID `json:"job_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func serializeJobLifecycle(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.JobLifecycleEvent)
	if !ok {
		return nil, fmt.Errorf("serializeJobLifecycle: payload is not scanning.JobLifecycleEvent")
	}
	return json.Marshal(jobLifecycleWire{
		JobID:      evt.JobID,
		Status:     evt.Status.String(),
		OccurredAt: evt.OccurredAt(),
	})
}

func deserializeJobLifecycle(eventType events.EventType) DeserializeFunc {
	return func(data []byte) (any, error) {
		var wire jobLifecycleWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("unmarshal JobLifecycleEvent: %w", err)
		}
		return scanning.ReconstructJobLifecycleEvent(
			eventType, wire.JobID, scanning.ParseJobStatus(wire.Status), wire.OccurredAt), nil
	}
}
