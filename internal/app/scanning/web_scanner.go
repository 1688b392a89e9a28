package scanning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ SourceScanner = (*WebScanner)(nil)

// genericSearchQuery is used when the user's display name cannot be resolved.
const genericSearchQuery = "face photo portrait"

// WebScanner searches the public web for candidate images and evaluates each
// against the face matcher. Reference faces are processed sequentially, one
// provider query per face, to respect external query quotas.
type WebScanner struct {
	search  scanning.SearchProvider
	fetcher scanning.ImageFetcher
	matcher scanning.FaceMatcher
	users   scanning.UserDirectory

	jobRepo    scanning.JobRepository
	resultRepo scanning.ResultRepository

	limiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

// NewWebScanner returns a WebScanner wired to a real search provider. When no
// provider is configured, callers construct a DemoScanner instead; the two are
// interchangeable behind SourceScanner.
func NewWebScanner(
	search scanning.SearchProvider,
	fetcher scanning.ImageFetcher,
	matcher scanning.FaceMatcher,
	users scanning.UserDirectory,
	jobRepo scanning.JobRepository,
	resultRepo scanning.ResultRepository,
	limiter *common.RateLimiter,
	logger *logger.Logger,
	tracer trace.Tracer,
) *WebScanner {
	logger = logger.With("component", "web_scanner")
	return &WebScanner{
		search:     search,
		fetcher:    fetcher,
		matcher:    matcher,
		users:      users,
		jobRepo:    jobRepo,
		resultRepo: resultRepo,
		limiter:    limiter,
		logger:     logger,
		tracer:     tracer,
	}
}

// SourceType identifies the provenance this scanner covers.
func (s *WebScanner) SourceType() scanning.SourceType { return scanning.SourceTypeWeb }

// Scan runs one provider query per active reference face and evaluates every
// candidate image. Provider errors and candidate-level failures are absorbed;
// only a storage failure on a qualifying result aborts the phase, since
// silently dropping a found match is worse than retrying the job.
func (s *WebScanner) Scan(
	ctx context.Context,
	job *scanning.Job,
	refs []scanning.ReferenceFace,
) PhaseResult {
	logger := s.logger.With("operation", "scan", "job_id", job.JobID())
	ctx, span := s.tracer.Start(ctx, "web_scanner.scan",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID().String()),
			attribute.Int("reference_count", len(refs)),
			attribute.Int("confidence_threshold", job.ConfidenceThreshold()),
		),
	)
	defer span.End()

	result := PhaseResult{Source: scanning.SourceTypeWeb}
	query := s.buildQuery(ctx, job.UserID())
	knownFaces := referenceFaceIDSet(refs)

	for _, ref := range refs {
		candidates, err := s.searchCandidates(ctx, query)
		if err != nil {
			// A provider error counts as zero candidates for this face.
			logger.Warn(ctx, "Search provider error, treating as zero candidates",
				"reference_id", ref.ID(), "error", err)
			span.AddEvent("search_provider_error", trace.WithAttributes(
				attribute.String("reference_id", ref.ID().String()),
			))
			continue
		}
		span.AddEvent("candidates_retrieved", trace.WithAttributes(
			attribute.String("reference_id", ref.ID().String()),
			attribute.Int("candidate_count", len(candidates)),
		))

		for _, candidate := range candidates {
			persisted, err := s.evaluateCandidate(ctx, job, knownFaces, candidate)
			result.ImagesScanned++
			if incErr := s.jobRepo.IncrementImagesScanned(ctx, job.JobID(), 1); incErr != nil {
				logger.Warn(ctx, "Failed to increment images scanned counter", "error", incErr)
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to persist scan result")
				result.Err = fmt.Errorf("persisting web result for %s: %w", candidate.ImageURL, err)
				return result
			}
			result.MatchesPersisted += persisted
		}
	}

	span.SetAttributes(
		attribute.Int64("images_scanned", result.ImagesScanned),
		attribute.Int64("matches_persisted", result.MatchesPersisted),
	)
	span.SetStatus(codes.Ok, "web phase finished")
	logger.Info(ctx, "Web phase finished",
		"images_scanned", result.ImagesScanned,
		"matches_persisted", result.MatchesPersisted,
	)
	return result
}

// buildQuery derives the search query from the user's display name, falling
// back to a generic query when the profile is unavailable.
func (s *WebScanner) buildQuery(ctx context.Context, userID uuid.UUID) string {
	name, err := s.users.DisplayName(ctx, userID)
	if err != nil || name == "" {
		s.logger.Debug(ctx, "Display name unavailable, using generic query", "error", err)
		return genericSearchQuery
	}
	return fmt.Sprintf("%s face photo", name)
}

// searchCandidates performs one rate-limited provider query.
func (s *WebScanner) searchCandidates(ctx context.Context, query string) ([]scanning.ImageCandidate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return s.search.SearchImages(ctx, query)
}

// evaluateCandidate downloads one candidate, runs the matcher and persists any
// qualifying match. Download and matcher failures return (0, nil); only a
// result-store failure is returned as an error. The staged image is released
// on every exit path.
func (s *WebScanner) evaluateCandidate(
	ctx context.Context,
	job *scanning.Job,
	knownFaces map[string]struct{},
	candidate scanning.ImageCandidate,
) (int64, error) {
	logger := s.logger.With("job_id", job.JobID(), "image_url", candidate.ImageURL)

	staged, err := s.fetcher.Fetch(ctx, candidate.ImageURL)
	if err != nil {
		logger.Debug(ctx, "Candidate download failed, skipping", "error", err)
		return 0, nil
	}
	defer func() {
		if closeErr := staged.Close(); closeErr != nil {
			logger.Warn(ctx, "Failed to release staged image", "error", closeErr)
		}
	}()

	imageBytes, err := staged.Bytes()
	if err != nil {
		logger.Debug(ctx, "Failed to read staged image, skipping", "error", err)
		return 0, nil
	}

	matches, err := s.matcher.FindMatches(ctx, imageBytes, job.ConfidenceThreshold())
	if err != nil {
		logger.Debug(ctx, "Face matcher error, skipping candidate", "error", err)
		return 0, nil
	}

	var persisted int64
	for _, match := range matches {
		if _, ok := knownFaces[match.FaceID]; !ok {
			continue
		}
		result, err := scanning.NewResult(
			job.JobID(),
			candidate.SourcePageURL,
			candidate.ImageURL,
			match.Similarity,
			job.ConfidenceThreshold(),
			scanning.SourceTypeWeb,
			map[string]string{
				"matched_face_id": match.FaceID,
			},
		)
		if err != nil {
			// The matcher honored minSimilarity poorly; treat as no match.
			logger.Debug(ctx, "Match below threshold, discarding", "error", err)
			continue
		}
		if err := s.resultRepo.CreateResult(ctx, result); err != nil {
			return persisted, fmt.Errorf("%w: %v", scanning.ErrResultPersistence, err)
		}
		persisted++
	}
	return persisted, nil
}

// referenceFaceIDSet indexes the matcher-side identifiers of the active
// reference faces, so matches against unknown faces are discarded.
func referenceFaceIDSet(refs []scanning.ReferenceFace) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		set[ref.ExternalFaceID()] = struct{}{}
	}
	return set
}
