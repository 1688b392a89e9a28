package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
)

func TestBrokerPublishDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	var received []events.EventEnvelope
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeJobRequested},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			received = append(received, evt)
			ack(nil)
			return nil
		})
	require.NoError(t, err)

	evt := scanning.NewJobRequestedEvent(uuid.New())
	err = broker.Publish(ctx, events.EventEnvelope{
		Type:    scanning.EventTypeJobRequested,
		Payload: evt,
	}, events.WithKey(evt.JobID.String()))
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, scanning.EventTypeJobRequested, received[0].Type)
	assert.Equal(t, evt.JobID.String(), received[0].Key)
}

func TestBrokerPublishSkipsUnrelatedTypes(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	called := false
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeJobCompleted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			called = true
			ack(nil)
			return nil
		})
	require.NoError(t, err)

	err = broker.Publish(ctx, events.EventEnvelope{Type: scanning.EventTypeJobRequested})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestBrokerPublishStopsOnHandlerError(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	wantErr := errors.New("handler exploded")
	require.NoError(t, broker.Subscribe(ctx, []events.EventType{scanning.EventTypeJobRequested},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			return wantErr
		}))

	err := broker.Publish(ctx, events.EventEnvelope{Type: scanning.EventTypeJobRequested})
	require.ErrorIs(t, err, wantErr)
}

func TestBrokerRejectsNilHandler(t *testing.T) {
	broker := NewBroker()
	err := broker.Subscribe(context.Background(), []events.EventType{scanning.EventTypeJobRequested}, nil)
	require.Error(t, err)
}

func TestBrokerClose(t *testing.T) {
	broker := NewBroker()
	require.NoError(t, broker.Close())

	err := broker.Publish(context.Background(), events.EventEnvelope{Type: scanning.EventTypeJobRequested})
	require.Error(t, err)

	err = broker.Subscribe(context.Background(), []events.EventType{scanning.EventTypeJobRequested},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error { return nil })
	require.Error(t, err)
}
