// Package kafka provides a Kafka-based implementation of the event bus for
// asynchronous messaging.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/eventbus/serialization"
	"github.com/avelar/facetrace/pkg/common/logger"
)

// EventBusMetrics defines metrics operations needed to monitor Kafka message
// handling. It enables tracking of successful and failed message
// publishing/consumption.
type EventBusMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// EventBusConfig contains settings for connecting to and interacting with
// Kafka brokers. It defines the topics, consumer group, and client identifiers
// needed for message routing.
type EventBusConfig struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// JobRequestsTopic carries scan job submissions from the API to workers.
	JobRequestsTopic string
	// JobLifecycleTopic carries terminal job state notifications for observers.
	JobLifecycleTopic string

	// GroupID identifies the consumer group for this broker instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the type of service (e.g., "controller", "api").
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements the EventBus interface using Kafka as the underlying
// message broker. It handles publishing and subscribing to domain events
// across distributed services.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to their Kafka topics.
	topicMap map[events.EventType]string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

// NewEventBus assembles an event bus from an already-connected producer and
// consumer group.
func NewEventBus(
	producer sarama.SyncProducer,
	consumerGroup sarama.ConsumerGroup,
	cfg *EventBusConfig,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka event bus")
	}

	logger = logger.With(
		"component", "kafka_event_bus",
		"client_id", cfg.ClientID,
		"group_id", cfg.GroupID,
		"service_type", cfg.ServiceType,
	)

	topicMap := map[events.EventType]string{
		scanning.EventTypeJobRequested: cfg.JobRequestsTopic,  // api -> controller
		scanning.EventTypeJobCompleted: cfg.JobLifecycleTopic, // controller -> observers
		scanning.EventTypeJobFailed:    cfg.JobLifecycleTopic, // controller -> observers
		scanning.EventTypeJobCancelled: cfg.JobLifecycleTopic, // controller -> observers
	}

	return &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicMap:      topicMap,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
	}, nil
}

// Publish sends a domain event to the Kafka topic configured for its type.
// It handles serialization, routing based on event type, and includes
// observability instrumentation for tracing and metrics.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	ctx, span := startProducerSpan(ctx, topic, b.tracer)
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}

	if pParams.Key != "" {
		event.Key = pParams.Key
		span.SetAttributes(attribute.String("event.key", event.Key))
	}

	msgBytes, err := serialization.SerializeEventEnvelope(event.Type, event.Payload)
	if err != nil {
		span.RecordError(err)
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(msgBytes),
	}

	injectTraceContext(ctx, kafkaMsg)

	partition, offset, err := b.producer.SendMessage(kafkaMsg)
	if err != nil {
		b.metrics.IncPublishError(ctx, topic)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	b.metrics.IncMessagePublished(ctx, topic)

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", event.Key,
	)

	return nil
}

// Subscribe registers a handler function to process domain events from
// specified event types. It manages consumer group membership and message
// processing in a separate goroutine.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	ctx, span := b.tracer.Start(ctx, "kafka_event_bus.subscribe",
		trace.WithAttributes(attribute.String("component", "kafka_event_bus")))
	defer span.End()

	// Collect unique topics for the requested event types.
	var topics []string
	topicSet := make(map[string]struct{})
	for _, et := range eventTypes {
		topic, ok := b.topicMap[et]
		if !ok {
			span.RecordError(fmt.Errorf("subscribe: unknown event type %s", et))
			span.SetStatus(codes.Error, "unknown event type")
			return fmt.Errorf("subscribe: unknown event type %s", et)
		}
		if _, seen := topicSet[topic]; !seen {
			topicSet[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}

	span.AddEvent("topics_collected", trace.WithAttributes(attribute.StringSlice("topics", topics)))

	go b.consumeLoop(ctx, topics, handler)
	b.logger.Info(ctx, "Subscribed to events", "event_types", eventTypes)

	return nil
}

// Close gracefully shuts down the producer and consumer group.
func (b *EventBus) Close() error {
	if err := b.producer.Close(); err != nil {
		return fmt.Errorf("closing producer: %w", err)
	}
	return b.consumerGroup.Close()
}

// consumeLoop maintains a continuous consumer group session for processing messages.
func (b *EventBus) consumeLoop(ctx context.Context, topics []string, handler events.HandlerFunc) {
	cgHandler := &eventConsumerHandler{
		userHandler: handler,
		logger:      b.logger,
		tracer:      b.tracer,
		metrics:     b.metrics,
	}

	for {
		if err := b.consumerGroup.Consume(ctx, topics, cgHandler); err != nil {
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// eventConsumerHandler implements sarama.ConsumerGroupHandler to process Kafka
// messages and convert them into domain events for the application.
type eventConsumerHandler struct {
	userHandler events.HandlerFunc

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

func (h *eventConsumerHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(),
		"Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *eventConsumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(),
		"Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition, deserializing
// them into domain events and invoking the user-provided handler.
func (h *eventConsumerHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())

	// Track the latest processed offset for periodic commits.
	lastCommit := time.Now()
	commitInterval := 1 * time.Second

	for msg := range claim.Messages() {
		func() {
			msgCtx := extractTraceContext(sess.Context(), msg)
			msgCtx, span := startConsumerSpan(msgCtx, msg, h.tracer)
			defer span.End()

			evtType, payloadBytes, err := serialization.UnmarshalUniversalEnvelope(msg.Value)
			if err != nil {
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			payloadObj, err := serialization.DeserializePayload(evtType, payloadBytes)
			if err != nil {
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			dEvent := events.EventEnvelope{
				Type:      evtType,
				Key:       string(msg.Key),
				Timestamp: time.Now(),
				Payload:   payloadObj,
				Metadata: events.EventMetadata{
					Partition: claim.Partition(),
					Offset:    msg.Offset,
				},
			}

			consumeLogger.Debug(msgCtx, "Received Kafka message",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"event_type", evtType,
				"key", dEvent.Key,
			)

			ack := func(err error) {
				ackCtx, ackSpan := h.tracer.Start(msgCtx, "kafka_consumer.acknowledge",
					trace.WithLinks(trace.LinkFromContext(msgCtx)),
				)
				defer ackSpan.End()

				if err != nil {
					consumeLogger.Error(ackCtx, "Failed to acknowledge message", "error", err)
					h.metrics.IncConsumeError(ackCtx, msg.Topic)
					ackSpan.RecordError(err)
					ackSpan.SetStatus(codes.Error, "failed to acknowledge message")
					return
				}
				h.metrics.IncMessageConsumed(ackCtx, msg.Topic)

				sess.MarkMessage(msg, "")

				// Commit offsets periodically rather than per message.
				if time.Since(lastCommit) > commitInterval {
					sess.Commit()
					lastCommit = time.Now()
				}
			}

			if err := h.userHandler(msgCtx, dEvent, ack); err != nil {
				consumeLogger.Error(msgCtx, "Failed to handle message", "error", err)
				span.RecordError(err)
			}
		}()
	}

	return nil
}
