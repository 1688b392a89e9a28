package scanning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage/scanning/memory"
)

type socialScannerFixture struct {
	jobs     *memory.JobStore
	results  *memory.ResultStore
	accounts *memory.SocialAccountStore

	fetcher *mockImageFetcher
	matcher *mockFaceMatcher

	scanner *SocialScanner
}

func newSocialScannerFixture(t *testing.T) *socialScannerFixture {
	t.Helper()

	f := &socialScannerFixture{
		jobs:     memory.NewJobStore(),
		results:  memory.NewResultStore(),
		accounts: memory.NewSocialAccountStore(),
		fetcher:  new(mockImageFetcher),
		matcher:  new(mockFaceMatcher),
	}
	f.scanner = NewSocialScanner(
		f.accounts,
		f.fetcher,
		f.matcher,
		f.jobs,
		f.results,
		testLogger(),
		testTracer(),
	)
	return f
}

func (f *socialScannerFixture) seedProcessingJob(t *testing.T, threshold int) *scanning.Job {
	t.Helper()

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanning.ScanTypeSocial, threshold)
	require.NoError(t, err)
	require.NoError(t, job.Start())
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))
	return job
}

func validCredential() scanning.Credential {
	return scanning.NewCredential("token-ok", time.Now().Add(time.Hour))
}

func expiredCredential() scanning.Credential {
	return scanning.NewCredential("token-stale", time.Now().Add(-time.Hour))
}

func seedMedia(f *socialScannerFixture, accountID uuid.UUID, mediaURL string) scanning.MediaItem {
	item := scanning.NewMediaItem(
		uuid.New(), accountID, mediaURL,
		"https://social.example.com/p/1", "beach day", time.Now().Add(-24*time.Hour), true,
	)
	f.accounts.AddMedia(item)
	return item
}

func TestSocialScannerPersistsQualifyingMatches(t *testing.T) {
	f := newSocialScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	account := scanning.NewSocialAccount(uuid.New(), job.UserID(), "instagram", true, validCredential())
	f.accounts.AddAccount(account)
	item := seedMedia(f, account.ID(), "https://media.example.com/1.jpg")

	f.fetcher.On("Fetch", mock.Anything, item.MediaURL()).
		Return(&stubStagedImage{data: []byte("media")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 88}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	require.Equal(t, int64(1), result.ImagesScanned)
	require.Equal(t, int64(1), result.MatchesPersisted)

	stored, err := f.results.ListByJob(context.Background(), job.JobID(), 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	r := stored[0]
	require.Equal(t, scanning.SourceTypeSocialMedia, r.SourceType())
	require.Equal(t, item.PermalinkURL(), r.SourceURL())
	require.NotNil(t, r.MediaItemID())
	require.Equal(t, item.ID(), *r.MediaItemID())
	require.Equal(t, "instagram", r.Metadata()[scanning.MetadataKeyProvider])
	require.Equal(t, "beach day", r.Metadata()["caption"])
	require.Equal(t, "true", r.Metadata()["owned_by_user"])
}

func TestSocialScannerSkipsAccountWithExpiredCredential(t *testing.T) {
	f := newSocialScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	stale := scanning.NewSocialAccount(uuid.New(), job.UserID(), "instagram", true, expiredCredential())
	healthy := scanning.NewSocialAccount(uuid.New(), job.UserID(), "facebook", true, validCredential())
	f.accounts.AddAccount(stale)
	f.accounts.AddAccount(healthy)
	seedMedia(f, stale.ID(), "https://media.example.com/stale.jpg")
	item := seedMedia(f, healthy.ID(), "https://media.example.com/healthy.jpg")

	f.fetcher.On("Fetch", mock.Anything, item.MediaURL()).
		Return(&stubStagedImage{data: []byte("media")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 90}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)

	// Only the healthy account's media was evaluated.
	require.Equal(t, int64(1), result.ImagesScanned)
	require.Equal(t, int64(1), result.MatchesPersisted)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, "https://media.example.com/stale.jpg")
}

func TestSocialScannerItemFailuresAreIsolated(t *testing.T) {
	f := newSocialScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	account := scanning.NewSocialAccount(uuid.New(), job.UserID(), "instagram", true, validCredential())
	f.accounts.AddAccount(account)
	broken := seedMedia(f, account.ID(), "https://media.example.com/broken.jpg")
	good := seedMedia(f, account.ID(), "https://media.example.com/good.jpg")

	f.fetcher.On("Fetch", mock.Anything, broken.MediaURL()).
		Return(nil, errors.New("download timeout"))
	staged := &stubStagedImage{data: []byte("media")}
	f.fetcher.On("Fetch", mock.Anything, good.MediaURL()).Return(staged, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 86}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)

	// Both items count as attempted; one produced a match.
	require.Equal(t, int64(2), result.ImagesScanned)
	require.Equal(t, int64(1), result.MatchesPersisted)
	require.True(t, staged.closed)

	stored, err := f.jobs.GetJob(context.Background(), job.JobID())
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.TotalImagesScanned())
}

func TestSocialScannerInactiveAccountsAreIgnored(t *testing.T) {
	f := newSocialScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}

	inactive := scanning.NewSocialAccount(uuid.New(), job.UserID(), "instagram", false, validCredential())
	f.accounts.AddAccount(inactive)
	seedMedia(f, inactive.ID(), "https://media.example.com/ignored.jpg")

	result := f.scanner.Scan(context.Background(), job, refs)
	require.NoError(t, result.Err)
	require.Zero(t, result.ImagesScanned)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestSocialScannerResultStoreFailureAbortsPhase(t *testing.T) {
	f := newSocialScannerFixture(t)
	job := f.seedProcessingJob(t, 80)
	refs := []scanning.ReferenceFace{
		scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true),
	}
	f.results.CreateErr = errors.New("connection reset")

	account := scanning.NewSocialAccount(uuid.New(), job.UserID(), "instagram", true, validCredential())
	f.accounts.AddAccount(account)
	seedMedia(f, account.ID(), "https://media.example.com/1.jpg")

	f.fetcher.On("Fetch", mock.Anything, mock.Anything).
		Return(&stubStagedImage{data: []byte("media")}, nil)
	f.matcher.On("FindMatches", mock.Anything, mock.Anything, 80).
		Return([]scanning.FaceMatch{{FaceID: "face-ext-1", Similarity: 95}}, nil)

	result := f.scanner.Scan(context.Background(), job, refs)
	require.Error(t, result.Err)
	require.ErrorIs(t, result.Err, scanning.ErrResultPersistence)
	require.ErrorContains(t, result.Err, "connection reset")
}
