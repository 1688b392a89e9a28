package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobRepository provides persistent storage for scan jobs. The orchestrator
// exclusively owns status/progress/count mutations; scanners are limited to
// the increment-only images-scanned counter.
type JobRepository interface {
	// CreateJob persists a new scan job.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by id. Returns ErrJobNotFound if it does not exist.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// UpdateJob writes the job's current state. Returns ErrJobNotFound if the
	// row has disappeared.
	UpdateJob(ctx context.Context, job *Job) error

	// IncrementImagesScanned atomically bumps the images-scanned counter so
	// concurrent scanner implementations never read-modify-write the job row.
	IncrementImagesScanned(ctx context.Context, jobID uuid.UUID, delta int64) error
}

// ResultRepository provides append-only storage of scan results plus the
// read-path aggregations built on top of them.
type ResultRepository interface {
	// CreateResult persists a new result. Failures must surface to the caller
	// so they can be retried, never silently dropped.
	CreateResult(ctx context.Context, result *Result) error

	// CountByJob returns the number of persisted results for a job.
	CountByJob(ctx context.Context, jobID uuid.UUID) (int64, error)

	// ListByJob returns persisted results for a job ordered by confidence
	// descending. Results carry no insertion-order guarantee to callers.
	ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*Result, error)

	// StatsByJob aggregates persisted results by confidence band, source type
	// and confirmation status.
	StatsByJob(ctx context.Context, jobID uuid.UUID) (*ResultStats, error)
}

// ReferenceRepository supplies the set of active reference faces for a user.
type ReferenceRepository interface {
	// ListActiveByUser returns active reference faces only; an empty slice
	// means the user has nothing to scan against.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]ReferenceFace, error)
}

// SocialAccountRepository provides read access to connected social accounts
// and their previously synced media.
type SocialAccountRepository interface {
	// ListActiveByUser returns the user's active social accounts.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]SocialAccount, error)

	// ListSyncedMedia returns the cached media items for an account.
	ListSyncedMedia(ctx context.Context, accountID uuid.UUID) ([]MediaItem, error)
}

// TokenStore holds short-lived correlation tokens in a time-bounded external
// store so they survive process restarts and multi-worker deployments.
type TokenStore interface {
	// Set stores a value under key for at most ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetAndDelete atomically retrieves and removes a value. Returns
	// ErrTokenNotFound for missing or expired keys.
	GetAndDelete(ctx context.Context, key string) (string, error)
}

// FaceMatch is one similarity hit returned by the face matcher.
type FaceMatch struct {
	// FaceID is the matcher's opaque identifier for the matched reference face.
	FaceID string
	// Similarity is the match score in [0,100].
	Similarity int
}

// FaceMatcher compares an image against the user's indexed reference faces.
type FaceMatcher interface {
	// FindMatches returns all reference faces found in the image with a
	// similarity of at least minSimilarity.
	FindMatches(ctx context.Context, image []byte, minSimilarity int) ([]FaceMatch, error)
}

// ImageCandidate is one candidate image returned by the search provider.
type ImageCandidate struct {
	// ImageURL is the direct image location.
	ImageURL string
	// SourcePageURL is the page the image was found on.
	SourcePageURL string
}

// SearchProvider executes one image search query against an external provider.
type SearchProvider interface {
	// SearchImages returns up to the provider's page size of candidates for
	// the query. An error is treated as zero candidates by callers.
	SearchImages(ctx context.Context, query string) ([]ImageCandidate, error)
}

// UserDirectory resolves display information for a user, used to build search
// queries.
type UserDirectory interface {
	// DisplayName returns the user's public display name, or an error if the
	// profile is unavailable. Callers fall back to a generic query.
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// StagedImage is a downloaded candidate staged for the face matcher. Close
// must be called on every exit path to release the staged resource.
type StagedImage interface {
	// Bytes returns the image content.
	Bytes() ([]byte, error)
	// Close releases the staged resource.
	Close() error
}

// ImageFetcher downloads candidate images with bounded size and time.
type ImageFetcher interface {
	// Fetch downloads the image at url and stages it for evaluation.
	Fetch(ctx context.Context, url string) (StagedImage, error)
}
