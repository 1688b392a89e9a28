package scanning

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/avelar/facetrace/internal/domain/events"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage/scanning/memory"
	"github.com/avelar/facetrace/pkg/common"
	"github.com/avelar/facetrace/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func testTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("test")
}

// noopMetrics satisfies PipelineMetrics without recording anything.
type noopMetrics struct{}

func (noopMetrics) IncMessagePublished(context.Context, string)         {}
func (noopMetrics) IncMessageConsumed(context.Context, string)          {}
func (noopMetrics) IncPublishError(context.Context, string)             {}
func (noopMetrics) IncConsumeError(context.Context, string)             {}
func (noopMetrics) IncJobsStarted(context.Context)                      {}
func (noopMetrics) IncJobsCompleted(context.Context)                    {}
func (noopMetrics) IncJobsFailed(context.Context)                       {}
func (noopMetrics) IncJobsCancelled(context.Context)                    {}
func (noopMetrics) ObserveJobDuration(context.Context, time.Duration)   {}
func (noopMetrics) IncImagesScanned(context.Context, string, int64)     {}
func (noopMetrics) IncMatchesFound(context.Context, string, int64)      {}
func (noopMetrics) IncScannerErrors(context.Context, string)            {}

// mockDomainEventPublisher implements events.DomainEventPublisher for testing.
type mockDomainEventPublisher struct{ mock.Mock }

func (m *mockDomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event, opts)
	return args.Error(0)
}

// relaxedPublisher accepts every publish without expectations.
func relaxedPublisher() *mockDomainEventPublisher {
	publisher := new(mockDomainEventPublisher)
	publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return publisher
}

// mockSearchProvider implements scanning.SearchProvider for testing.
type mockSearchProvider struct{ mock.Mock }

func (m *mockSearchProvider) SearchImages(ctx context.Context, query string) ([]scanning.ImageCandidate, error) {
	args := m.Called(ctx, query)
	if candidates := args.Get(0); candidates != nil {
		return candidates.([]scanning.ImageCandidate), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockFaceMatcher implements scanning.FaceMatcher for testing.
type mockFaceMatcher struct{ mock.Mock }

func (m *mockFaceMatcher) FindMatches(ctx context.Context, image []byte, minSimilarity int) ([]scanning.FaceMatch, error) {
	args := m.Called(ctx, image, minSimilarity)
	if matches := args.Get(0); matches != nil {
		return matches.([]scanning.FaceMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockUserDirectory implements scanning.UserDirectory for testing.
type mockUserDirectory struct{ mock.Mock }

func (m *mockUserDirectory) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// stubStagedImage is an in-memory scanning.StagedImage tracking release.
type stubStagedImage struct {
	data   []byte
	closed bool
}

func (s *stubStagedImage) Bytes() ([]byte, error) { return s.data, nil }
func (s *stubStagedImage) Close() error           { s.closed = true; return nil }

// mockImageFetcher implements scanning.ImageFetcher for testing.
type mockImageFetcher struct{ mock.Mock }

func (m *mockImageFetcher) Fetch(ctx context.Context, url string) (scanning.StagedImage, error) {
	args := m.Called(ctx, url)
	if staged := args.Get(0); staged != nil {
		return staged.(scanning.StagedImage), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockSourceScanner implements SourceScanner for orchestrator tests.
type mockSourceScanner struct {
	mock.Mock
	source scanning.SourceType
}

func (m *mockSourceScanner) SourceType() scanning.SourceType { return m.source }

func (m *mockSourceScanner) Scan(ctx context.Context, job *scanning.Job, refs []scanning.ReferenceFace) PhaseResult {
	args := m.Called(ctx, job, refs)
	return args.Get(0).(PhaseResult)
}

// pipelineFixture wires an orchestrator over in-memory stores with mock
// scanners so each test controls phase outcomes directly.
type pipelineFixture struct {
	jobs    *memory.JobStore
	refs    *memory.ReferenceStore
	results *memory.ResultStore

	webScanner    *mockSourceScanner
	socialScanner *mockSourceScanner
	publisher     *mockDomainEventPublisher

	orchestrator *Orchestrator
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		jobs:          memory.NewJobStore(),
		refs:          memory.NewReferenceStore(),
		results:       memory.NewResultStore(),
		webScanner:    &mockSourceScanner{source: scanning.SourceTypeWeb},
		socialScanner: &mockSourceScanner{source: scanning.SourceTypeSocialMedia},
		publisher:     relaxedPublisher(),
	}
	f.orchestrator = NewOrchestrator(
		"worker-test",
		f.jobs,
		f.refs,
		f.results,
		f.webScanner,
		f.socialScanner,
		f.publisher,
		testLogger(),
		testTracer(),
		noopMetrics{},
	)
	return f
}

// seedJob creates and persists a queued job with one active reference face.
func (f *pipelineFixture) seedJob(t *testing.T, scanType scanning.ScanType, threshold int) *scanning.Job {
	t.Helper()

	job, err := scanning.NewJob(uuid.New(), uuid.New(), scanType, threshold)
	require.NoError(t, err)
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))
	f.refs.Add(scanning.NewReferenceFace(uuid.New(), job.UserID(), "face-ext-1", true))
	return job
}

// seedResult persists one result for the job so CountByJob reflects it.
func (f *pipelineFixture) seedResult(t *testing.T, job *scanning.Job, confidence int) {
	t.Helper()

	result, err := scanning.NewResult(
		job.JobID(),
		"https://example.com/page",
		"https://example.com/image.jpg",
		confidence,
		job.ConfidenceThreshold(),
		scanning.SourceTypeWeb,
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, f.results.CreateResult(context.Background(), result))
}

func testRateLimiter() *common.RateLimiter { return common.NewRateLimiter(1000, 1000) }
