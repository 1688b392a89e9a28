package scanning

import "fmt"

// JobStatus represents the current state of a scan job. It enables tracking of
// job lifecycle from submission through completion, failure or cancellation.
type JobStatus string

const (
	// JobStatusQueued indicates a job has been created but not yet picked up
	// by a worker.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusProcessing indicates a worker is actively executing the job's
	// scan phases.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted indicates the scan ran to the end of its phase loop.
	// Individual phases may still have failed internally; completion means
	// "scan attempted", not "matches found".
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates the job could not run at all, such as when no
	// active reference photos exist or the orchestrator hit an unrecoverable
	// error after exhausting retries.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled indicates an external cancel request stopped the job
	// before it reached a natural terminal state.
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "QUEUED":
		return JobStatusQueued
	case "PROCESSING":
		return JobStatusProcessing
	case "COMPLETED":
		return JobStatusCompleted
	case "FAILED":
		return JobStatusFailed
	case "CANCELLED":
		return JobStatusCancelled
	default:
		return "" // represents unspecified
	}
}

// IsTerminal reports whether no further transitions are permitted from this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. It enforces the job lifecycle rules to prevent invalid state changes.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusQueued:
		// A queued job is picked up by a worker, cancelled externally, or
		// failed by the dispatcher when delivery retries are exhausted.
		return target == JobStatusProcessing || target == JobStatusCancelled || target == JobStatusFailed
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
