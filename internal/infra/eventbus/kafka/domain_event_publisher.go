package kafka

import (
	"context"

	"github.com/avelar/facetrace/internal/domain/events"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// DomainEventPublisher implements the events.DomainEventPublisher interface
// using Kafka as the underlying message transport. It adapts domain-level
// events to the event bus abstraction for reliable, asynchronous event
// distribution.
type DomainEventPublisher struct {
	eventBus events.EventBus
}

// NewDomainEventPublisher creates a new publisher that will distribute domain
// events through the provided event bus. The event bus handles the actual
// interaction with Kafka.
func NewDomainEventPublisher(bus events.EventBus) *DomainEventPublisher {
	return &DomainEventPublisher{eventBus: bus}
}

// PublishDomainEvent sends a domain event through the Kafka event bus. It
// wraps the event in an envelope carrying its type and original timestamp.
func (pub *DomainEventPublisher) PublishDomainEvent(
	ctx context.Context,
	event events.DomainEvent,
	opts ...events.PublishOption,
) error {
	evt := events.EventEnvelope{
		Type:      event.EventType(),
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}
	return pub.eventBus.Publish(ctx, evt, opts...)
}
