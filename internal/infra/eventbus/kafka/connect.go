package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/pkg/common/logger"
)

// ConnectEventBus creates an EventBus instance using the provided Kafka
// client. It retries establishing producer and consumer group connections with
// exponential backoff for up to 5 minutes, which covers broker unavailability
// during startup ordering in containerized deployments.
func ConnectEventBus(
	cfg *EventBusConfig,
	client sarama.Client,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (events.EventBus, error) {
	var eventBus events.EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}

		consumerGroup, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
		if err != nil {
			producer.Close() // Clean up on failure
			return fmt.Errorf("creating consumer group: %w", err)
		}

		eventBus, err = NewEventBus(producer, consumerGroup, cfg, logger, metrics, tracer)
		if err != nil {
			producer.Close()
			consumerGroup.Close()
			return fmt.Errorf("creating event bus: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return eventBus, nil
}
