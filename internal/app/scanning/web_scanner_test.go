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

type webScannerFixture struct {
	jobs    *memory.JobStore
	results *memory.ResultStore

	search  *mockSearchProvider
	fetcher *mockImageFetcher
	matcher *mockFaceMatcher
	users   *mockUserDirectory

	scanner *WebScanner
}

func newWebScannerFixture(t *testing.T) *webScannerFixture {
	t.Helper()

	f := &webScannerFixture{
		jobs:    memory.NewJobStore(),
		results: memory.NewResultStore(),
		search:  new(mockSearchProvider),
		fetcher: new(mockImageFetcher),
		matcher: new(mockFaceMatcher),
		users:   new(mockUserDirectory),
	}
	f.scanner = NewWebScanner(
		f.search,
		f.fetcher,
		f.matcher,
		f.users,
		f.jobs,
		f.results,
		testRateLimiter(),
		testLogger(),
		testTracer(),
	)
	return f
}

func (f *webScannerFixture) seedProcessingJob(t *testing.T, threshold int) *scanning.Job {
	t.Helper()

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanning.ScanTypeWeb, threshold)
	require.NoError(t, err)
	require.NoError(t, job.Start())
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))
	return job
}

func TestWebScannerPersistsQualifyingMatches(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("Ada Lovelace", nil)
	f.search.On("SearchImages", mock.Anything, "Ada Lovelace face photo").Return([]scanning.ImageCandidate{
		{ImageURL: "https://img.example.com/a.jpg", SourcePageURL: "https://example.com/a"},
		{ImageURL: "https://img.example.com/b.jpg", SourcePageURL: "https://example.com/b"},
	}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&stubStagedImage{data: []byte("img")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 92}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	require.Equal(t, int64(2), result.ImagesScanned)
	require.Equal(t, int64(2), result.MatchesPersisted)

	stored, err := f.results.ListByJob(context.Background(), job.JobID(), 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, r := range stored {
		require.Equal(t, scanning.SourceTypeWeb, r.SourceType())
		require.Equal(t, 92, r.Confidence())
		require.Equal(t, "face-ext-1", r.Metadata()["matched_face_id"])
	}

	job, err = f.jobs.GetJob(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, int64(2), job.TotalImagesScanned())
}

func TestWebScannerProviderErrorTreatedAsZeroCandidates(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-2", true),
	}

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("Ada Lovelace", nil)
	f.search.On("SearchImages", mock.Anything, mock.Anything).
		Return(nil, errors.New("quota exceeded"))

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	require.Zero(t, result.ImagesScanned)
	require.Zero(t, result.MatchesPersisted)

	// One query per reference face was attempted despite the failures.
	f.search.AssertNumberOfCalls(t, "SearchImages", 2)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestWebScannerGenericQueryWhenDisplayNameUnavailable(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("", errors.New("profile unavailable"))
	f.search.On("SearchImages", mock.Anything, genericSearchQuery).Return(nil, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	f.search.AssertCalled(t, "SearchImages", mock.Anything, genericSearchQuery)
}

func TestWebScannerCandidateFailuresAreIsolated(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("Ada Lovelace", nil)
	f.search.On("SearchImages", mock.Anything, mock.Anything).Return([]scanning.ImageCandidate{
		{ImageURL: "https://img.example.com/broken.jpg", SourcePageURL: "https://example.com/a"},
		{ImageURL: "https://img.example.com/nomatch.jpg", SourcePageURL: "https://example.com/b"},
		{ImageURL: "https://img.example.com/match.jpg", SourcePageURL: "https://example.com/c"},
	}, nil)

	f.fetcher.On("Fetch", mock.Anything, "https://img.example.com/broken.jpg").
		Return(nil, errors.New("download timeout"))
	noMatch := &stubStagedImage{data: []byte("nomatch")}
	f.fetcher.On("Fetch", mock.Anything, "https://img.example.com/nomatch.jpg").Return(noMatch, nil)
	match := &stubStagedImage{data: []byte("match")}
	f.fetcher.On("Fetch", mock.Anything, "https://img.example.com/match.jpg").Return(match, nil)

	f.matcher.On("FindMatches", mock.Anything, []byte("nomatch"), 80).
		Return(nil, errors.New("matcher unavailable"))
	f.matcher.On("FindMatches", mock.Anything, []byte("match"), 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 85}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)

	// All three candidates count as attempted work.
	require.Equal(t, int64(3), result.ImagesScanned)
	require.Equal(t, int64(1), result.MatchesPersisted)

	// Staged images are released on every exit path.
	require.True(t, noMatch.closed)
	require.True(t, match.closed)

	stored, err := f.jobs.GetJob(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, int64(3), stored.TotalImagesScanned())
}

func TestWebScannerDiscardsUnknownFaceMatches(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("Ada Lovelace", nil)
	f.search.On("SearchImages", mock.Anything, mock.Anything).Return([]scanning.ImageCandidate{
		{ImageURL: "https://img.example.com/a.jpg", SourcePageURL: "https://example.com/a"},
	}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&stubStagedImage{data: []byte("img")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "someone-else", Similarity: 99}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	require.Zero(t, result.MatchesPersisted)
}

func TestWebScannerResultStoreFailureAbortsPhase(t *testing.T) {
	f := newWebScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}
	f.results.CreateErr = errors.New("connection reset")

	f.users.On("DisplayName", mock.Anything, job.UserID()).Return("Ada Lovelace", nil)
	f.search.On("SearchImages", mock.Anything, mock.Anything).Return([]scanning.ImageCandidate{
		{ImageURL: "https://img.example.com/a.jpg", SourcePageURL: "https://example.com/a"},
	}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&stubStagedImage{data: []byte("img")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 92}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.Error(t, result.Err)
	require.ErrorIs(t, result.Err, scanning.ErrResultPersistence)
	require.ErrorContains(t, result.Err, "connection reset")
}
