// Package dispatch implements the queue consume loop of the scan pipeline:
// at-least-once handling of job-requested deliveries, a bounded retry budget
// with exponential backoff, terminal failure marking, and a health snapshot
// for external monitoring.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/avelar/facetrace/internal/app/scanning"
	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

// JobProcessor runs one delivery of a scan job and records terminal failures.
// The orchestrator satisfies this.
type JobProcessor interface {
	// ProcessJob executes the job to a terminal state. A returned error is
	// retried within the dispatcher's budget.
	ProcessJob(ctx context.Context, jobID uuid.UUID) error

	// MarkFailed records a terminal failure with the last captured error
	// message after the retry budget is exhausted.
	MarkFailed(ctx context.Context, jobID uuid.UUID, message string) error
}

// Config tunes the dispatcher's retry budget.
type Config struct {
	// MaxAttempts is the total number of processing attempts per delivery,
	// including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt; each subsequent
	// wait doubles.
	InitialBackoff time.Duration
}

// DefaultConfig matches the pipeline's delivery contract: 3 attempts total
// with waits of 5s, 10s, 20s between them.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialBackoff: 5 * time.Second}
}

// HealthSnapshot is a passive observability surface over the dispatcher's
// counters and broker connectivity. Active counts deliveries currently
// executing a processing attempt; Waiting counts deliveries parked in a
// backoff wait between attempts.
type HealthSnapshot struct {
	Waiting         int64 `json:"waiting"`
	Active          int64 `json:"active"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	BrokerConnected bool  `json:"broker_connected"`
}

// Dispatcher consumes job-requested events and drives each through the
// processor with the configured retry budget. Deliveries are acknowledged
// after reaching a terminal outcome, so a crash mid-processing leads to
// redelivery rather than loss.
type Dispatcher struct {
	cfg Config

	eventBus  events.EventBus
	processor JobProcessor
	tokens    scanning.TokenStore

	waiting   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	brokerConnected atomic.Bool

	logger *logger.Logger
	tracer trace.Tracer
}

// NewDispatcher returns a Dispatcher over the given event bus and processor.
func NewDispatcher(
	cfg Config,
	eventBus events.EventBus,
	processor JobProcessor,
	tokens scanning.TokenStore,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Dispatcher {
	logger = logger.With("component", "dispatcher")
	return &Dispatcher{
		cfg:       cfg,
		eventBus:  eventBus,
		processor: processor,
		tokens:    tokens,
		logger:    logger,
		tracer:    tracer,
	}
}

// Run subscribes to job-requested events and blocks until the context is
// cancelled or the subscription fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.eventBus.Subscribe(
		ctx,
		[]events.EventType{scanning.EventTypeJobRequested},
		d.handleDelivery,
	); err != nil {
		d.brokerConnected.Store(false)
		return fmt.Errorf("subscribing to job requests: %w", err)
	}
	d.brokerConnected.Store(true)
	d.logger.Info(ctx, "Dispatcher subscribed to job requests")

	<-ctx.Done()
	d.brokerConnected.Store(false)
	return ctx.Err()
}

// Health returns the current counters and broker connectivity state.
func (d *Dispatcher) Health() HealthSnapshot {
	return HealthSnapshot{
		Waiting:         d.waiting.Load(),
		Active:          d.active.Load(),
		Completed:       d.completed.Load(),
		Failed:          d.failed.Load(),
		BrokerConnected: d.brokerConnected.Load(),
	}
}

// handleDelivery processes one job-requested delivery to a terminal outcome
// and acknowledges it. The ack is always success: after the retry budget the
// job is durably marked failed, so redelivering the message would be wasted
// work.
func (d *Dispatcher) handleDelivery(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	requested, ok := evt.Payload.(scanning.JobRequestedEvent)
	if !ok {
		err := fmt.Errorf("unexpected payload type %T for %s", evt.Payload, evt.Type)
		d.logger.Error(ctx, "Dropping malformed delivery", "error", err)
		ack(nil)
		return err
	}

	logger := d.logger.With("operation", "handle_delivery", "job_id", requested.JobID)
	ctx, span := d.tracer.Start(ctx, "dispatcher.handle_delivery",
		trace.WithAttributes(
			attribute.String("job_id", requested.JobID.String()),
			attribute.Int("max_attempts", d.cfg.MaxAttempts),
		),
	)
	defer span.End()

	d.logCorrelation(ctx, logger, requested.JobID)

	d.active.Add(1)
	defer d.active.Add(-1)

	if err := d.processWithRetry(ctx, logger, span, requested.JobID); err != nil {
		d.failed.Add(1)
		span.SetStatus(codes.Error, "job processing exhausted retries")
		ack(nil)
		return err
	}

	d.completed.Add(1)
	span.SetStatus(codes.Ok, "job processed")
	ack(nil)
	return nil
}

// processWithRetry runs the processor up to MaxAttempts times, waiting an
// exponentially growing interval between attempts. A missing job is
// non-recoverable and short-circuits the budget.
func (d *Dispatcher) processWithRetry(
	ctx context.Context,
	logger *logger.Logger,
	span trace.Span,
	jobID uuid.UUID,
) error {
	intervals := backoff.NewExponentialBackOff()
	intervals.InitialInterval = d.cfg.InitialBackoff
	intervals.Multiplier = 2
	intervals.RandomizationFactor = 0
	intervals.MaxInterval = 10 * time.Minute
	intervals.MaxElapsedTime = 0

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.processor.ProcessJob(ctx, jobID)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "Job processed after retry", "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		span.RecordError(err)
		span.AddEvent("processing_attempt_failed", trace.WithAttributes(
			attribute.Int("attempt", attempt),
		))

		if errors.Is(err, scanning.ErrJobNotFound) {
			logger.Error(ctx, "Job record missing, not retrying", "error", err)
			return d.giveUp(ctx, logger, jobID, err)
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		wait := intervals.NextBackOff()
		logger.Warn(ctx, "Job processing failed, backing off",
			"attempt", attempt, "backoff", wait, "error", err)

		// While parked in backoff the delivery counts as waiting, not
		// active. The caller's deferred active decrement expects the gauge
		// restored on every exit path.
		d.active.Add(-1)
		d.waiting.Add(1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			d.waiting.Add(-1)
			d.active.Add(1)
			return fmt.Errorf("dispatcher shutting down mid-retry: %w", ctx.Err())
		}
		d.waiting.Add(-1)
		d.active.Add(1)
	}

	logger.Error(ctx, "Retry budget exhausted, marking job failed",
		"attempts", d.cfg.MaxAttempts, "error", lastErr)
	return d.giveUp(ctx, logger, jobID, lastErr)
}

// giveUp durably records the terminal failure. A missing job has nothing to
// mark; everything else must land on the job row so callers see the cause.
func (d *Dispatcher) giveUp(ctx context.Context, logger *logger.Logger, jobID uuid.UUID, cause error) error {
	if !errors.Is(cause, scanning.ErrJobNotFound) {
		if err := d.processor.MarkFailed(ctx, jobID, cause.Error()); err != nil {
			logger.Error(ctx, "Failed to mark job failed", "error", err)
		}
	}
	return fmt.Errorf("processing job %s: %w", jobID, cause)
}

// logCorrelation ties the pickup back to the originating API request via the
// short-lived submission token. Best effort; a missing token is normal for
// redeliveries and expired submissions.
func (d *Dispatcher) logCorrelation(ctx context.Context, logger *logger.Logger, jobID uuid.UUID) {
	requestID, err := d.tokens.GetAndDelete(ctx, appscanning.SubmissionTokenKey(jobID))
	if err != nil {
		if !errors.Is(err, scanning.ErrTokenNotFound) {
			logger.Debug(ctx, "Failed to claim submission token", "error", err)
		}
		return
	}
	logger.Info(ctx, "Picked up job", "request_id", requestID)
}
