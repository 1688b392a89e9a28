package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

// phase pairs a source scanner with the progress ceiling its completion
// advances the job to. Allocation is coarse and phase-based: web caps at 50,
// social at 90, terminal completion sets 100.
type phase struct {
	scanner     SourceScanner
	progressCap int
}

// Orchestrator owns the per-job state machine. It exclusively mutates job
// status, progress and final counts during execution; source scanners are
// limited to appending results and bumping the images-scanned counter.
type Orchestrator struct {
	workerID string

	jobRepo    scanning.JobRepository
	refRepo    scanning.ReferenceRepository
	resultRepo scanning.ResultRepository

	webScanner    SourceScanner
	socialScanner SourceScanner

	publisher events.DomainEventPublisher

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PipelineMetrics
}

// NewOrchestrator returns an Orchestrator with the scanners it fans out to.
// The web scanner may be a DemoScanner when no search provider is configured.
func NewOrchestrator(
	workerID string,
	jobRepo scanning.JobRepository,
	refRepo scanning.ReferenceRepository,
	resultRepo scanning.ResultRepository,
	webScanner SourceScanner,
	socialScanner SourceScanner,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics PipelineMetrics,
) *Orchestrator {
	logger = logger.With("component", "orchestrator")
	return &Orchestrator{
		workerID:      workerID,
		jobRepo:       jobRepo,
		refRepo:       refRepo,
		resultRepo:    resultRepo,
		webScanner:    webScanner,
		socialScanner: socialScanner,
		publisher:     publisher,
		logger:        logger,
		tracer:        tracer,
		metrics:       metrics,
	}
}

// ProcessJob runs one delivery of a scan job to a terminal state. Any returned
// error is surfaced to the dispatch layer's retry mechanism; a missing job is
// wrapped as non-recoverable. Scanner-level failures never surface here, the
// job still completes, reflecting "scan attempted, possibly zero matches".
// Result-store write failures are the exception: those are infrastructure
// faults and bubble up for retry.
func (o *Orchestrator) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	logger := o.logger.With("operation", "process_job", "job_id", jobID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_job",
		trace.WithAttributes(
			attribute.String("worker_id", o.workerID),
			attribute.String("job_id", jobID.String()),
		),
	)
	defer span.End()

	job, err := o.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	// A stale redelivery of a job that already reached a terminal state is a
	// no-op; at-least-once delivery makes this a normal occurrence.
	if job.IsTerminal() {
		logger.Info(ctx, "Job already terminal, skipping redelivery", "status", job.Status())
		span.AddEvent("stale_redelivery_skipped", trace.WithAttributes(
			attribute.String("status", string(job.Status())),
		))
		span.SetStatus(codes.Ok, "stale redelivery skipped")
		return nil
	}

	if job.Status() == scanning.JobStatusQueued {
		if err := job.Start(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to start job")
			return fmt.Errorf("starting job %s: %w", jobID, err)
		}
		if err := o.jobRepo.UpdateJob(ctx, job); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist processing status")
			return fmt.Errorf("persisting processing status for job %s: %w", jobID, err)
		}
		o.metrics.IncJobsStarted(ctx)
		span.AddEvent("job_started")
	}

	refs, err := o.refRepo.ListActiveByUser(ctx, job.UserID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load reference faces")
		return fmt.Errorf("loading reference faces for job %s: %w", jobID, err)
	}
	if len(refs) == 0 {
		// Fail fast before any scanner runs. This is a job-level fault, not a
		// transient one, so it is not handed back for retry.
		logger.Warn(ctx, "No active reference photos, failing job")
		span.AddEvent("no_active_reference_photos")
		if err := o.failJob(ctx, job, scanning.ErrNoActiveReferencePhotos.Error()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to mark job failed")
			return err
		}
		span.SetStatus(codes.Ok, "job failed fast without scanners")
		return nil
	}
	span.SetAttributes(attribute.Int("reference_count", len(refs)))

	for _, p := range o.selectPhases(job.ScanType()) {
		// Cooperative cancellation is checked only at phase boundaries;
		// in-flight work for the current phase runs to completion.
		cancelled, err := o.checkCancelled(ctx, jobID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed cancellation check")
			return err
		}
		if cancelled {
			logger.Info(ctx, "Cancellation detected at phase boundary, stopping")
			span.AddEvent("cancelled_at_phase_boundary")
			span.SetStatus(codes.Ok, "job cancelled")
			o.metrics.IncJobsCancelled(ctx)
			return nil
		}

		result := p.scanner.Scan(ctx, job, refs)
		source := string(result.Source)
		o.metrics.IncImagesScanned(ctx, source, result.ImagesScanned)
		o.metrics.IncMatchesFound(ctx, source, result.MatchesPersisted)
		if result.Err != nil {
			// A result-store write failure is transient infrastructure, not
			// a scanner fault: absorbing it would complete the job with lost
			// matches, so it is handed back to the dispatch layer's retry
			// budget instead.
			if errors.Is(result.Err, scanning.ErrResultPersistence) {
				span.RecordError(result.Err)
				span.SetStatus(codes.Error, "result store write failed")
				return fmt.Errorf("%s phase for job %s: %w", source, jobID, result.Err)
			}
			// Failure isolation: a broken phase is logged and the job moves
			// on. Partial results are better than none.
			logger.Error(ctx, "Scanner phase failed, continuing job",
				"source", source, "error", result.Err)
			span.AddEvent("scanner_phase_failed", trace.WithAttributes(
				attribute.String("source", source),
			))
			o.metrics.IncScannerErrors(ctx, source)
		}

		// Recheck before persisting progress: a cancel request that landed
		// while the phase was running must not be overwritten by a stale
		// processing snapshot.
		cancelled, err = o.checkCancelled(ctx, jobID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed cancellation check")
			return err
		}
		if cancelled {
			logger.Info(ctx, "Cancellation detected after phase, stopping")
			span.AddEvent("cancelled_after_phase")
			span.SetStatus(codes.Ok, "job cancelled")
			o.metrics.IncJobsCancelled(ctx)
			return nil
		}

		if err := job.UpdateProgress(p.progressCap); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to advance progress")
			return fmt.Errorf("advancing progress for job %s: %w", jobID, err)
		}
		if err := o.jobRepo.UpdateJob(ctx, job); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist progress")
			return fmt.Errorf("persisting progress for job %s: %w", jobID, err)
		}
		span.AddEvent("phase_finished", trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int("progress", job.Progress()),
		))
	}

	cancelled, err := o.checkCancelled(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed cancellation check")
		return err
	}
	if cancelled {
		logger.Info(ctx, "Cancellation detected before completion, stopping")
		span.AddEvent("cancelled_before_completion")
		span.SetStatus(codes.Ok, "job cancelled")
		o.metrics.IncJobsCancelled(ctx)
		return nil
	}

	matchCount, err := o.resultRepo.CountByJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count results")
		return fmt.Errorf("counting results for job %s: %w", jobID, err)
	}

	if err := job.Complete(matchCount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to complete job")
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	if err := o.jobRepo.UpdateJob(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist completed status")
		return fmt.Errorf("persisting completed status for job %s: %w", jobID, err)
	}
	o.metrics.IncJobsCompleted(ctx)
	if tl := job.Timeline(); tl.HasStarted() && tl.IsCompleted() {
		o.metrics.ObserveJobDuration(ctx, tl.CompletedAt().Sub(tl.StartedAt()))
	}

	// The job is already durably completed; a publish failure must not force
	// a redo of the whole scan, so it is logged instead of returned.
	evt := scanning.NewJobCompletedEvent(jobID)
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(jobID.String())); err != nil {
		logger.Error(ctx, "Failed to publish job completed event", "error", err)
		span.RecordError(err)
	}

	logger.Info(ctx, "Job completed", "total_matches_found", matchCount)
	span.SetAttributes(attribute.Int64("total_matches_found", matchCount))
	span.SetStatus(codes.Ok, "job completed")
	return nil
}

// MarkFailed records a terminal failure with the last captured error message.
// The dispatch layer calls this after exhausting its retry budget.
func (o *Orchestrator) MarkFailed(ctx context.Context, jobID uuid.UUID, message string) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.mark_failed",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	job, err := o.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.IsTerminal() {
		span.AddEvent("job_already_terminal")
		span.SetStatus(codes.Ok, "job already terminal")
		return nil
	}

	if err := o.failJob(ctx, job, message); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark job failed")
		return err
	}
	span.SetStatus(codes.Ok, "job marked failed")
	return nil
}

// failJob transitions the job to failed, persists it and notifies observers.
func (o *Orchestrator) failJob(ctx context.Context, job *scanning.Job, message string) error {
	if err := job.Fail(message); err != nil {
		return fmt.Errorf("failing job %s: %w", job.JobID(), err)
	}
	if err := o.jobRepo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persisting failed status for job %s: %w", job.JobID(), err)
	}
	o.metrics.IncJobsFailed(ctx)

	evt := scanning.NewJobFailedEvent(job.JobID())
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(job.JobID().String())); err != nil {
		o.logger.Error(ctx, "Failed to publish job failed event",
			"job_id", job.JobID(), "error", err)
	}
	return nil
}

// checkCancelled reloads the job's current status. An external cancel request
// lands directly on the store; the in-memory aggregate never sees it.
func (o *Orchestrator) checkCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	current, err := o.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scanning.ErrJobNotFound) {
			return false, fmt.Errorf("job %s disappeared mid-execution: %w", jobID, err)
		}
		return false, fmt.Errorf("reloading job %s: %w", jobID, err)
	}
	return current.Status() == scanning.JobStatusCancelled, nil
}

// selectPhases maps the requested scan type to an ordered phase list. Combined
// scans run web first, then social.
func (o *Orchestrator) selectPhases(scanType scanning.ScanType) []phase {
	var phases []phase
	if scanType.IncludesWeb() {
		phases = append(phases, phase{scanner: o.webScanner, progressCap: scanning.ProgressWebPhaseCap})
	}
	if scanType.IncludesSocial() {
		phases = append(phases, phase{scanner: o.socialScanner, progressCap: scanning.ProgressSocialPhaseCap})
	}
	return phases
}
