package scanning

import (
	"fmt"

	"github.com/google/uuid"
)

// Progress caps applied as each scan phase finishes. Progress is a coarse,
// phase-based percentage; the only guarantees are monotonicity and reaching
// 100 at terminal completion.
const (
	ProgressWebPhaseCap    = 50
	ProgressSocialPhaseCap = 90
	ProgressComplete       = 100
)

// Job is the aggregate for one user-initiated face scan. It owns the status
// state machine, the coarse progress value and the aggregate counters. Only
// the orchestrator mutates a Job during execution; source scanners are limited
// to incrementing the images-scanned counter through the repository.
type Job struct {
	jobID               uuid.UUID
	userID              uuid.UUID
	scanType            ScanType
	confidenceThreshold int
	status              JobStatus
	progress            int
	totalImagesScanned  int64
	totalMatchesFound   int64
	errorMessage        string
	timeline            *Timeline
}

// NewJob creates a new Job in the queued state. The confidence threshold must
// be within [0,100] and the scan type must be one of the supported values.
func NewJob(jobID, userID uuid.UUID, scanType ScanType, confidenceThreshold int) (*Job, error) {
	if err := scanType.Validate(); err != nil {
		return nil, err
	}
	if confidenceThreshold < 0 || confidenceThreshold > 100 {
		return nil, fmt.Errorf("confidence threshold must be within [0,100], got %d", confidenceThreshold)
	}

	return &Job{
		jobID:               jobID,
		userID:              userID,
		scanType:            scanType,
		confidenceThreshold: confidenceThreshold,
		status:              JobStatusQueued,
		timeline:            NewTimeline(new(realTimeProvider)),
	}, nil
}

// ReconstructJob creates a Job instance from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructJob(
	jobID, userID uuid.UUID,
	scanType ScanType,
	confidenceThreshold int,
	status JobStatus,
	progress int,
	totalImagesScanned, totalMatchesFound int64,
	errorMessage string,
	timeline *Timeline,
) *Job {
	return &Job{
		jobID:               jobID,
		userID:              userID,
		scanType:            scanType,
		confidenceThreshold: confidenceThreshold,
		status:              status,
		progress:            progress,
		totalImagesScanned:  totalImagesScanned,
		totalMatchesFound:   totalMatchesFound,
		errorMessage:        errorMessage,
		timeline:            timeline,
	}
}

// JobID returns the unique identifier for this scan job.
func (j *Job) JobID() uuid.UUID { return j.jobID }

// UserID returns the identifier of the user who owns this scan job.
func (j *Job) UserID() uuid.UUID { return j.userID }

// ScanType returns which source scanners this job runs.
func (j *Job) ScanType() ScanType { return j.scanType }

// ConfidenceThreshold returns the minimum similarity score (0-100) required
// for a candidate to be recorded as a match.
func (j *Job) ConfidenceThreshold() int { return j.confidenceThreshold }

// Status returns the current execution status of the scan job.
func (j *Job) Status() JobStatus { return j.status }

// Progress returns the coarse phase-based completion percentage.
func (j *Job) Progress() int { return j.progress }

// TotalImagesScanned returns the count of candidate images evaluated so far,
// successful or not.
func (j *Job) TotalImagesScanned() int64 { return j.totalImagesScanned }

// TotalMatchesFound returns the count of persisted results for this job. It is
// computed once when the job completes.
func (j *Job) TotalMatchesFound() int64 { return j.totalMatchesFound }

// ErrorMessage returns the human-readable cause recorded when a job failed.
func (j *Job) ErrorMessage() string { return j.errorMessage }

// Timeline provides access to the job's timeline information.
func (j *Job) Timeline() *Timeline { return j.timeline }

// IsTerminal reports whether the job can accept no further transitions.
func (j *Job) IsTerminal() bool { return j.status.IsTerminal() }

// Start transitions a queued job into processing and resets progress. It marks
// the execution start time.
func (j *Job) Start() error {
	if err := j.status.ValidateTransition(JobStatusProcessing); err != nil {
		return err
	}
	j.status = JobStatusProcessing
	j.progress = 0
	j.timeline.MarkStarted()
	return nil
}

// UpdateProgress advances the progress percentage. Progress is only mutable
// while the job is processing and is monotonic: a target below the current
// value leaves progress untouched. Redeliveries of a job that crashed after a
// late phase's persist re-run earlier phases, so their lower ceilings must
// not be treated as a regression.
func (j *Job) UpdateProgress(progress int) error {
	if j.status != JobStatusProcessing {
		return fmt.Errorf("cannot update progress: job is not processing (current: %s)", j.status)
	}
	if progress > ProgressComplete {
		return fmt.Errorf("progress cannot exceed %d, got %d", ProgressComplete, progress)
	}
	if progress > j.progress {
		j.progress = progress
	}
	j.timeline.UpdateLastUpdate()
	return nil
}

// Complete transitions a processing job to completed, recording the final
// match count and forcing progress to 100. Completion means the phase loop
// ran; it carries no guarantee that any phase succeeded or found matches.
func (j *Job) Complete(totalMatchesFound int64) error {
	if err := j.status.ValidateTransition(JobStatusCompleted); err != nil {
		return err
	}
	j.status = JobStatusCompleted
	j.progress = ProgressComplete
	j.totalMatchesFound = totalMatchesFound
	j.timeline.MarkCompleted()
	return nil
}

// Fail transitions the job to failed with a human-readable cause.
func (j *Job) Fail(message string) error {
	if err := j.status.ValidateTransition(JobStatusFailed); err != nil {
		return err
	}
	j.status = JobStatusFailed
	j.errorMessage = message
	j.timeline.MarkCompleted()
	return nil
}

// Cancel transitions a queued or processing job to cancelled in response to an
// external cancel request.
func (j *Job) Cancel() error {
	if err := j.status.ValidateTransition(JobStatusCancelled); err != nil {
		return err
	}
	j.status = JobStatusCancelled
	j.timeline.MarkCompleted()
	return nil
}
