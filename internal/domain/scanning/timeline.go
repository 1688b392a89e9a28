package scanning

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// Timeline tracks temporal aspects of scan jobs.
type Timeline struct {
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	now := timeProvider.Now()
	return &Timeline{
		createdAt:    now,
		lastUpdate:   now,
		timeProvider: timeProvider,
	}
}

// ReconstructTimeline creates a Timeline from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructTimeline(createdAt, startedAt, completedAt, lastUpdate time.Time) *Timeline {
	return &Timeline{
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		lastUpdate:   lastUpdate,
		timeProvider: new(realTimeProvider),
	}
}

// CreatedAt returns the time the scan job was created.
func (t *Timeline) CreatedAt() time.Time { return t.createdAt }

// StartedAt returns the time the scan job started executing.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the scan job reached a terminal state.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time the scan job was last updated.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// MarkStarted records the moment job execution began.
func (t *Timeline) MarkStarted() {
	t.startedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// MarkCompleted records completion time.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// UpdateLastUpdate updates the last update timestamp.
func (t *Timeline) UpdateLastUpdate() {
	t.lastUpdate = t.timeProvider.Now()
}

// HasStarted checks if the timeline has been marked as started.
func (t *Timeline) HasStarted() bool { return !t.startedAt.IsZero() }

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
