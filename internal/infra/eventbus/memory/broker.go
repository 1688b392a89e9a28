// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent message broker suitable for testing
// and development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avelar/facetrace/internal/domain/events"
)

// Broker provides an in-memory implementation of the events.EventBus
// interface. It enables decoupled communication between components through
// message passing, making it useful for testing and development environments
// where persistence is not required.
type Broker struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]events.HandlerFunc
	closed   bool
}

// NewBroker creates and initializes a new in-memory event broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]events.HandlerFunc)}
}

var _ events.EventBus = (*Broker)(nil)

// Publish delivers an event synchronously to all handlers subscribed to its
// type, stopping at the first handler error. The handler list is copied before
// iteration to avoid holding the lock during delivery.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("broker is closed")
	}
	handlersCopy := make([]events.HandlerFunc, len(b.handlers[event.Type]))
	copy(handlersCopy, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		if err := ctx.Err(); err != nil {
			return err
		}

		var ackErr error
		ack := func(err error) { ackErr = err }
		if err := handler(ctx, event, ack); err != nil {
			return err
		}
		if ackErr != nil {
			return ackErr
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. The handler is
// removed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker is closed")
	}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	b.mu.Unlock()

	return nil
}

// Close shuts the broker down; subsequent publishes and subscribes fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[events.EventType][]events.HandlerFunc)
	return nil
}
