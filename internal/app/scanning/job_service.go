package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

// submissionTokenTTL bounds how long a submission correlation token stays
// claimable. Workers usually pick a job up within seconds; anything beyond the
// TTL is a stale token not worth correlating.
const submissionTokenTTL = 15 * time.Minute

// SubmissionTokenKey is the token-store key correlating a submission with its
// worker pickup.
func SubmissionTokenKey(jobID uuid.UUID) string {
	return fmt.Sprintf("scan:submit:%s", jobID)
}

// SubmitScanCommand carries the caller's inputs for a new scan job.
type SubmitScanCommand struct {
	UserID              uuid.UUID
	ScanType            scanning.ScanType
	ConfidenceThreshold int

	// RequestID is the caller's correlation id, stored as a short-lived token
	// so the worker that picks the job up can tie its logs back to the
	// originating request.
	RequestID string
}

// JobService is the submission and read surface of the pipeline. It creates
// jobs, hands them to the queue, and serves status, results and stats. It
// never executes scans; that is the orchestrator's job.
type JobService struct {
	jobRepo    scanning.JobRepository
	resultRepo scanning.ResultRepository
	tokens     scanning.TokenStore
	publisher  events.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewJobService returns a JobService wired to the queue publisher and stores.
func NewJobService(
	jobRepo scanning.JobRepository,
	resultRepo scanning.ResultRepository,
	tokens scanning.TokenStore,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *JobService {
	logger = logger.With("component", "job_service")
	return &JobService{
		jobRepo:    jobRepo,
		resultRepo: resultRepo,
		tokens:     tokens,
		publisher:  publisher,
		logger:     logger,
		tracer:     tracer,
	}
}

// Submit creates a new scan job in the queued state and publishes it for
// pickup. One submission per created job; the queue assumes idempotent
// submission is the caller's responsibility.
func (s *JobService) Submit(ctx context.Context, cmd SubmitScanCommand) (*scanning.Job, error) {
	logger := s.logger.With("operation", "submit", "user_id", cmd.UserID)
	ctx, span := s.tracer.Start(ctx, "job_service.submit",
		trace.WithAttributes(
			attribute.String("user_id", cmd.UserID.String()),
			attribute.String("scan_type", cmd.ScanType.String()),
			attribute.Int("confidence_threshold", cmd.ConfidenceThreshold),
		),
	)
	defer span.End()

	job, err := scanning.NewJob(uuid.New(), cmd.UserID, cmd.ScanType, cmd.ConfidenceThreshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid scan job")
		return nil, fmt.Errorf("invalid scan job: %w", err)
	}

	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create job")
		return nil, fmt.Errorf("creating job: %w", err)
	}
	span.AddEvent("job_created", trace.WithAttributes(
		attribute.String("job_id", job.JobID().String()),
	))

	if cmd.RequestID != "" {
		if err := s.tokens.Set(ctx, SubmissionTokenKey(job.JobID()), cmd.RequestID, submissionTokenTTL); err != nil {
			// Correlation is best effort; losing the token costs log context,
			// not correctness.
			logger.Warn(ctx, "Failed to store submission token", "error", err)
		}
	}

	evt := scanning.NewJobRequestedEvent(job.JobID())
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(job.JobID().String())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish job requested event")
		return nil, fmt.Errorf("publishing job requested event (job_id: %s): %w", job.JobID(), err)
	}
	span.AddEvent("job_requested_event_published")
	span.SetStatus(codes.Ok, "job submitted")
	logger.Info(ctx, "Scan job submitted", "job_id", job.JobID())

	return job, nil
}

// GetStatus returns the job's current state.
func (s *JobService) GetStatus(ctx context.Context, jobID uuid.UUID) (*scanning.Job, error) {
	ctx, span := s.tracer.Start(ctx, "job_service.get_status",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	job, err := s.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	span.SetStatus(codes.Ok, "job loaded")
	return job, nil
}

// Cancel requests cancellation of a queued or processing job. The worker
// observes the new status at its next phase boundary; in-flight work for the
// current phase is allowed to finish.
func (s *JobService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	logger := s.logger.With("operation", "cancel", "job_id", jobID)
	ctx, span := s.tracer.Start(ctx, "job_service.cancel",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	job, err := s.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if err := job.Cancel(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job not cancellable")
		return fmt.Errorf("cancelling job %s: %w: %v", jobID, scanning.ErrJobNotCancellable, err)
	}
	if err := s.jobRepo.UpdateJob(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist cancelled status")
		return fmt.Errorf("persisting cancelled status for job %s: %w", jobID, err)
	}
	span.AddEvent("job_cancelled")

	evt := scanning.NewJobCancelledEvent(jobID)
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(jobID.String())); err != nil {
		logger.Error(ctx, "Failed to publish job cancelled event", "error", err)
		span.RecordError(err)
	}

	span.SetStatus(codes.Ok, "job cancelled")
	logger.Info(ctx, "Scan job cancelled")
	return nil
}

// Results returns persisted results for a job ordered by confidence
// descending. Callers page with limit/offset; insertion order is not part of
// the contract.
func (s *JobService) Results(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*scanning.Result, error) {
	ctx, span := s.tracer.Start(ctx, "job_service.results",
		trace.WithAttributes(
			attribute.String("job_id", jobID.String()),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	if _, err := s.jobRepo.GetJob(ctx, jobID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	results, err := s.resultRepo.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list results")
		return nil, fmt.Errorf("listing results for job %s: %w", jobID, err)
	}
	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "results listed")
	return results, nil
}

// Stats aggregates a job's persisted results by confidence band, source type
// and confirmation status. Computed on demand; nothing is maintained
// incrementally on the write path.
func (s *JobService) Stats(ctx context.Context, jobID uuid.UUID) (*scanning.ResultStats, error) {
	ctx, span := s.tracer.Start(ctx, "job_service.stats",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	if _, err := s.jobRepo.GetJob(ctx, jobID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	stats, err := s.resultRepo.StatsByJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to aggregate stats")
		return nil, fmt.Errorf("aggregating stats for job %s: %w", jobID, err)
	}
	span.SetStatus(codes.Ok, "stats aggregated")
	return stats, nil
}
