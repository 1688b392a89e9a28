package scanning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage/scanning/memory"
)

type jobServiceFixture struct {
	jobs      *memory.JobStore
	results   *memory.ResultStore
	tokens    *memory.TokenStore
	publisher *mockDomainEventPublisher

	service *JobService
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()

	f := &jobServiceFixture{
		jobs:      memory.NewJobStore(),
		results:   memory.NewResultStore(),
		tokens:    memory.NewTokenStore(),
		publisher: new(mockDomainEventPublisher),
	}
	f.service = NewJobService(f.jobs, f.results, f.tokens, f.publisher, testLogger(), testTracer())
	return f
}

func TestSubmitCreatesQueuedJobAndPublishes(t *testing.T) {
	f := newJobServiceFixture(t)
	f.publisher.On("PublishDomainEvent", mock.Anything, mock.AnythingOfType("scanning.JobRequestedEvent"), mock.Anything).
		Return(nil)

	job, err := f.service.Submit(context.Background(), SubmitScanCommand{
		UserID:              uuid.New(),
		ScanType:            scanning.ScanTypeCombined,
		ConfidenceThreshold: 75,
		RequestID:           "req-123",
	})
	require.NoError(t, err)
	require.Equal(t, scanning.JobStatusQueued, job.Status())

	stored, err := f.jobs.GetJob(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, scanning.JobStatusQueued, stored.Status())
	require.Equal(t, 75, stored.ConfidenceThreshold())

	// The correlation token is claimable exactly once.
	value, err := f.tokens.GetAndDelete(context.Background(), SubmissionTokenKey(job.JobID()))
	require.NoError(t, err)
	require.Equal(t, "req-123", value)
	_, err = f.tokens.GetAndDelete(context.Background(), SubmissionTokenKey(job.JobID()))
	require.ErrorIs(t, err, scanning.ErrTokenNotFound)

	f.publisher.AssertExpectations(t)
}

func TestSubmitRejectsInvalidInputs(t *testing.T) {
	f := newJobServiceFixture(t)

	tests := []struct {
		name      string
		scanType  scanning.ScanType
		threshold int
	}{
		{name: "unknown scan type", scanType: scanning.ScanType("everything"), threshold: 80},
		{name: "threshold above range", scanType: scanning.ScanTypeWeb, threshold: 101},
		{name: "threshold below range", scanType: scanning.ScanTypeWeb, threshold: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Submit(context.Background(), SubmitScanCommand{
				UserID:              uuid.New(),
				ScanType:            tt.scanType,
				ConfidenceThreshold: tt.threshold,
			})
			require.Error(t, err)
		})
	}
	f.publisher.AssertNotCalled(t, "PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitPublishFailureSurfaces(t *testing.T) {
	f := newJobServiceFixture(t)
	f.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))

	_, err := f.service.Submit(context.Background(), SubmitScanCommand{
		UserID:              uuid.New(),
		ScanType:            scanning.ScanTypeWeb,
		ConfidenceThreshold: 80,
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "broker unavailable")
}

func TestGetStatusUnknownJob(t *testing.T) {
	f := newJobServiceFixture(t)

	_, err := f.service.GetStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, scanning.ErrJobNotFound)
}

func TestCancelQueuedJob(t *testing.T) {
	f := newJobServiceFixture(t)
	f.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	job, err := f.service.Submit(context.Background(), SubmitScanCommand{
		UserID:              uuid.New(),
		ScanType:            scanning.ScanTypeWeb,
		ConfidenceThreshold: 80,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(context.Background(), job.JobID()))

	stored, err := f.jobs.GetJob(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, scanning.JobStatusCancelled, stored.Status())
	require.True(t, stored.Timeline().IsCompleted())
}

func TestCancelTerminalJobRejected(t *testing.T) {
	f := newJobServiceFixture(t)

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanning.ScanTypeWeb, 80)
	require.NoError(t, err)
	require.NoError(t, job.Start())
	require.NoError(t, job.Complete(0))
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))

	err = f.service.Cancel(context.Background(), job.JobID())
	require.ErrorIs(t, err, scanning.ErrJobNotCancellable)
}

func TestResultsOrderedByConfidence(t *testing.T) {
	f := newJobServiceFixture(t)

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanning.ScanTypeWeb, 70)
	require.NoError(t, err)
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))

	for _, confidence := range []int{72, 95, 81} {
		r, err := scanning.NewResult(
			job.JobID(), "https://example.com/p", "https://example.com/i.jpg",
			confidence, 70, scanning.SourceTypeWeb, nil,
		)
		require.NoError(t, err)
		require.NoError(t, f.results.CreateResult(context.Background(), r))
	}

	results, err := f.service.Results(context.Background(), job.JobID(), 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 95, results[0].Confidence())
	require.Equal(t, 81, results[1].Confidence())
}

func TestResultsUnknownJob(t *testing.T) {
	f := newJobServiceFixture(t)

	_, err := f.service.Results(context.Background(), uuid.New(), 10, 0)
	require.ErrorIs(t, err, scanning.ErrJobNotFound)
}

func TestStatsAggregatesBands(t *testing.T) {
	f := newJobServiceFixture(t)

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanning.ScanTypeWeb, 70)
	require.NoError(t, err)
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))

	for _, confidence := range []int{72, 88, 96} {
		r, err := scanning.NewResult(
			job.JobID(), "https://example.com/p", "https://example.com/i.jpg",
			confidence, 70, scanning.SourceTypeWeb, nil,
		)
		require.NoError(t, err)
		require.NoError(t, f.results.CreateResult(context.Background(), r))
	}

	stats, err := f.service.Stats(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalResults)
	require.Equal(t, int64(1), stats.ByConfidenceBand[scanning.ConfidenceBandMedium])
	require.Equal(t, int64(1), stats.ByConfidenceBand[scanning.ConfidenceBandHigh])
	require.Equal(t, int64(1), stats.ByConfidenceBand[scanning.ConfidenceBandVeryHigh])
	require.Equal(t, int64(3), stats.BySourceType[scanning.SourceTypeWeb])
	require.Equal(t, int64(3), stats.Unreviewed)
}
