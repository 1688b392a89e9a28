package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/avelar/facetrace/internal/infra/eventbus/kafka"
)

// PipelineMetrics defines the metrics operations needed by the scan pipeline.
type PipelineMetrics interface {
	// Messaging metrics
	kafka.EventBusMetrics

	// Job metrics
	IncJobsStarted(ctx context.Context)
	IncJobsCompleted(ctx context.Context)
	IncJobsFailed(ctx context.Context)
	IncJobsCancelled(ctx context.Context)
	ObserveJobDuration(ctx context.Context, duration time.Duration)

	// Scan metrics
	IncImagesScanned(ctx context.Context, source string, count int64)
	IncMatchesFound(ctx context.Context, source string, count int64)
	IncScannerErrors(ctx context.Context, source string)
}

// pipelineMetrics implements PipelineMetrics.
type pipelineMetrics struct {
	// Messaging metrics
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Job metrics
	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsCancelled metric.Int64Counter
	jobDuration   metric.Float64Histogram

	// Scan metrics
	imagesScanned metric.Int64Counter
	matchesFound  metric.Int64Counter
	scannerErrors metric.Int64Counter
}

const namespace = "facetrace"

// NewPipelineMetrics creates a new pipeline metrics instance.
func NewPipelineMetrics(mp metric.MeterProvider) (*pipelineMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(pipelineMetrics)
	var err error

	// Initialize messaging metrics.
	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if m.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if m.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	// Initialize job metrics.
	if m.jobsStarted, err = meter.Int64Counter(
		"jobs_started_total",
		metric.WithDescription("Total number of scan jobs started"),
	); err != nil {
		return nil, err
	}

	if m.jobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of scan jobs completed"),
	); err != nil {
		return nil, err
	}

	if m.jobsFailed, err = meter.Int64Counter(
		"jobs_failed_total",
		metric.WithDescription("Total number of scan jobs failed"),
	); err != nil {
		return nil, err
	}

	if m.jobsCancelled, err = meter.Int64Counter(
		"jobs_cancelled_total",
		metric.WithDescription("Total number of scan jobs cancelled"),
	); err != nil {
		return nil, err
	}

	if m.jobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Time taken to run a scan job to a terminal state"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Initialize scan metrics.
	if m.imagesScanned, err = meter.Int64Counter(
		"images_scanned_total",
		metric.WithDescription("Total number of candidate images evaluated"),
	); err != nil {
		return nil, err
	}

	if m.matchesFound, err = meter.Int64Counter(
		"matches_found_total",
		metric.WithDescription("Total number of qualifying matches persisted"),
	); err != nil {
		return nil, err
	}

	if m.scannerErrors, err = meter.Int64Counter(
		"scanner_errors_total",
		metric.WithDescription("Total number of scanner phase failures"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *pipelineMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *pipelineMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *pipelineMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *pipelineMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *pipelineMetrics) IncJobsStarted(ctx context.Context)   { m.jobsStarted.Add(ctx, 1) }
func (m *pipelineMetrics) IncJobsCompleted(ctx context.Context) { m.jobsCompleted.Add(ctx, 1) }
func (m *pipelineMetrics) IncJobsFailed(ctx context.Context)    { m.jobsFailed.Add(ctx, 1) }
func (m *pipelineMetrics) IncJobsCancelled(ctx context.Context) { m.jobsCancelled.Add(ctx, 1) }

func (m *pipelineMetrics) ObserveJobDuration(ctx context.Context, duration time.Duration) {
	m.jobDuration.Record(ctx, duration.Seconds())
}

func (m *pipelineMetrics) IncImagesScanned(ctx context.Context, source string, count int64) {
	m.imagesScanned.Add(ctx, count, metric.WithAttributes(attribute.String("source", source)))
}

func (m *pipelineMetrics) IncMatchesFound(ctx context.Context, source string, count int64) {
	m.matchesFound.Add(ctx, count, metric.WithAttributes(attribute.String("source", source)))
}

func (m *pipelineMetrics) IncScannerErrors(ctx context.Context, source string) {
	m.scannerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
