package scanning

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ SourceScanner = (*DemoScanner)(nil)

// demoCandidate is one synthesized sample result. The confidence spread is
// deliberately wide so that different job thresholds admit different subsets.
type demoCandidate struct {
	sourceURL  string
	imageURL   string
	confidence int
}

// demoCandidates is the fixed sample set used when no search provider is
// configured. Each persisted result carries a provenance marker so demo
// matches are never mistaken for real ones.
var demoCandidates = []demoCandidate{
	{"https://example.com/articles/conference-2024", "https://example.com/images/demo-1.jpg", 95},
	{"https://example.com/blog/team-retreat", "https://example.com/images/demo-2.jpg", 88},
	{"https://example.com/news/local-event", "https://example.com/images/demo-3.jpg", 81},
	{"https://example.com/gallery/street-photography", "https://example.com/images/demo-4.jpg", 72},
	{"https://example.com/forum/thread-9921", "https://example.com/images/demo-5.jpg", 63},
}

// DemoScanner stands in for the web scanner when the search provider is
// unconfigured. It satisfies the same SourceScanner contract, synthesizing a
// small fixed candidate set instead of querying a provider, so the demo path
// is exercised through exactly the code the real path uses downstream.
type DemoScanner struct {
	jobRepo    scanning.JobRepository
	resultRepo scanning.ResultRepository

	logger *logger.Logger
	tracer trace.Tracer
}

// NewDemoScanner returns a web-phase scanner that serves synthesized results.
func NewDemoScanner(
	jobRepo scanning.JobRepository,
	resultRepo scanning.ResultRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
) *DemoScanner {
	logger = logger.With("component", "demo_scanner")
	return &DemoScanner{
		jobRepo:    jobRepo,
		resultRepo: resultRepo,
		logger:     logger,
		tracer:     tracer,
	}
}

// SourceType identifies the provenance this scanner covers. Demo results are
// still web results; their metadata carries the provenance marker.
func (s *DemoScanner) SourceType() scanning.SourceType { return scanning.SourceTypeWeb }

// Scan persists the fixed sample results that meet the job's confidence
// threshold. Every sample counts as a scanned image whether it qualifies or
// not, mirroring the real scanner's attempted-work accounting.
func (s *DemoScanner) Scan(
	ctx context.Context,
	job *scanning.Job,
	refs []scanning.ReferenceFace,
) PhaseResult {
	logger := s.logger.With("operation", "scan", "job_id", job.JobID())
	ctx, span := s.tracer.Start(ctx, "demo_scanner.scan",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID().String()),
			attribute.Int("confidence_threshold", job.ConfidenceThreshold()),
		),
	)
	defer span.End()
	logger.Info(ctx, "Search provider unconfigured, serving demo results")

	result := PhaseResult{Source: scanning.SourceTypeWeb}

	for _, candidate := range demoCandidates {
		result.ImagesScanned++
		if err := s.jobRepo.IncrementImagesScanned(ctx, job.JobID(), 1); err != nil {
			logger.Warn(ctx, "Failed to increment images scanned counter", "error", err)
		}

		if candidate.confidence < job.ConfidenceThreshold() {
			continue
		}

		record, err := scanning.NewResult(
			job.JobID(),
			candidate.sourceURL,
			candidate.imageURL,
			candidate.confidence,
			job.ConfidenceThreshold(),
			scanning.SourceTypeWeb,
			map[string]string{
				scanning.MetadataKeyProvider: scanning.ProviderDemo,
			},
		)
		if err != nil {
			span.RecordError(err)
			continue
		}
		if err := s.resultRepo.CreateResult(ctx, record); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist demo result")
			result.Err = fmt.Errorf("persisting demo result: %w: %v", scanning.ErrResultPersistence, err)
			return result
		}
		result.MatchesPersisted++
	}

	span.SetAttributes(
		attribute.Int64("images_scanned", result.ImagesScanned),
		attribute.Int64("matches_persisted", result.MatchesPersisted),
	)
	span.SetStatus(codes.Ok, "demo phase finished")
	return result
}
