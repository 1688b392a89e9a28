// Package serialization provides a registry-based system for serializing and
// deserializing domain events in the event bus infrastructure. It acts as a
// translation layer between domain objects and their JSON wire format
// representations.
//
// The package implements a registry pattern where serialization and
// deserialization functions are registered for each event type. This keeps the
// domain layer clean of serialization concerns and allows new event types to
// be added without modifying existing code.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/avelar/facetrace/internal/domain/events"
)

// SerializeFunc converts a domain object into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain object.
type DeserializeFunc func(data []byte) (any, error)

// Global registries map event types to their serialization functions.
// This allows for dynamic dispatch based on event type at runtime.
var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for a given event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for a given event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered
// serializer for its event type. Returns an error if no serializer is
// registered for the given event type.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

// DeserializePayload converts bytes back into a domain object using the
// registered deserializer for its event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

// universalEnvelope is the wire wrapper carrying the event type alongside the
// serialized payload so consumers can route before fully decoding.
type universalEnvelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}

// SerializeEventEnvelope wraps a payload with its event type into the
// universal wire envelope.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, err
	}

	env := universalEnvelope{EventType: eventType, Payload: payloadBytes}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal universal envelope: %w", err)
	}
	return data, nil
}

// UnmarshalUniversalEnvelope splits a wire message into its event type and raw
// payload bytes.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal universal envelope: %w", err)
	}
	if env.EventType == "" {
		return "", nil, fmt.Errorf("universal envelope missing event type")
	}
	return env.EventType, env.Payload, nil
}

func init() {
	RegisterEventSerializers()
}
