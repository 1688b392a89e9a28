package scanning

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ SourceScanner = (*SocialScanner)(nil)

// SocialScanner evaluates previously synced social media against the face
// matcher. Media sync is an external concern; the scanner consumes whatever
// is already cached for each active account.
type SocialScanner struct {
	accounts scanning.SocialAccountRepository
	fetcher  scanning.ImageFetcher
	matcher  scanning.FaceMatcher

	jobRepo    scanning.JobRepository
	resultRepo scanning.ResultRepository

	logger *logger.Logger
	tracer trace.Tracer

	// now is injectable for credential-expiry tests.
	now func() time.Time
}

// NewSocialScanner returns a scanner over the user's connected social accounts.
func NewSocialScanner(
	accounts scanning.SocialAccountRepository,
	fetcher scanning.ImageFetcher,
	matcher scanning.FaceMatcher,
	jobRepo scanning.JobRepository,
	resultRepo scanning.ResultRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
) *SocialScanner {
	logger = logger.With("component", "social_scanner")
	return &SocialScanner{
		accounts:   accounts,
		fetcher:    fetcher,
		matcher:    matcher,
		jobRepo:    jobRepo,
		resultRepo: resultRepo,
		logger:     logger,
		tracer:     tracer,
		now:        time.Now,
	}
}

// SourceType identifies the provenance this scanner covers.
func (s *SocialScanner) SourceType() scanning.SourceType { return scanning.SourceTypeSocialMedia }

// Scan walks the user's active social accounts and evaluates their cached
// media. An invalid or expired credential skips that one account; item-level
// failures skip that one item. Neither aborts the remaining work.
func (s *SocialScanner) Scan(
	ctx context.Context,
	job *scanning.Job,
	refs []scanning.ReferenceFace,
) PhaseResult {
	logger := s.logger.With("operation", "scan", "job_id", job.JobID())
	ctx, span := s.tracer.Start(ctx, "social_scanner.scan",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID().String()),
			attribute.Int("confidence_threshold", job.ConfidenceThreshold()),
		),
	)
	defer span.End()

	result := PhaseResult{Source: scanning.SourceTypeSocialMedia}
	knownFaces := referenceFaceIDSet(refs)

	accounts, err := s.accounts.ListActiveByUser(ctx, job.UserID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list social accounts")
		result.Err = fmt.Errorf("listing social accounts: %w", err)
		return result
	}
	span.SetAttributes(attribute.Int("account_count", len(accounts)))

	for _, account := range accounts {
		if !account.Credential().IsValid(s.now()) {
			logger.Warn(ctx, "Skipping account with invalid or expired credential",
				"account_id", account.ID(), "provider", account.Provider(),
				"error", scanning.ErrInvalidCredential)
			span.AddEvent("account_skipped_invalid_credential", trace.WithAttributes(
				attribute.String("account_id", account.ID().String()),
			))
			continue
		}

		if err := s.scanAccount(ctx, job, account, knownFaces, &result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist social result")
			result.Err = err
			return result
		}
	}

	span.SetAttributes(
		attribute.Int64("images_scanned", result.ImagesScanned),
		attribute.Int64("matches_persisted", result.MatchesPersisted),
	)
	span.SetStatus(codes.Ok, "social phase finished")
	logger.Info(ctx, "Social phase finished",
		"images_scanned", result.ImagesScanned,
		"matches_persisted", result.MatchesPersisted,
	)
	return result
}

// scanAccount evaluates one account's cached media. A media listing failure
// skips the account; per-item failures skip the item. Only a result-store
// failure is returned.
func (s *SocialScanner) scanAccount(
	ctx context.Context,
	job *scanning.Job,
	account scanning.SocialAccount,
	knownFaces map[string]struct{},
	result *PhaseResult,
) error {
	logger := s.logger.With("job_id", job.JobID(), "account_id", account.ID())

	items, err := s.accounts.ListSyncedMedia(ctx, account.ID())
	if err != nil {
		logger.Warn(ctx, "Failed to list synced media, skipping account", "error", err)
		return nil
	}

	for _, item := range items {
		persisted, err := s.evaluateMediaItem(ctx, job, account, item, knownFaces)
		result.ImagesScanned++
		if incErr := s.jobRepo.IncrementImagesScanned(ctx, job.JobID(), 1); incErr != nil {
			logger.Warn(ctx, "Failed to increment images scanned counter", "error", incErr)
		}
		if err != nil {
			return fmt.Errorf("persisting social result for %s: %w", item.MediaURL(), err)
		}
		result.MatchesPersisted += persisted
	}
	return nil
}

// evaluateMediaItem downloads and matches one cached media item. Download and
// matcher failures return (0, nil); only a result-store failure is an error.
func (s *SocialScanner) evaluateMediaItem(
	ctx context.Context,
	job *scanning.Job,
	account scanning.SocialAccount,
	item scanning.MediaItem,
	knownFaces map[string]struct{},
) (int64, error) {
	logger := s.logger.With("job_id", job.JobID(), "media_url", item.MediaURL())

	staged, err := s.fetcher.Fetch(ctx, item.MediaURL())
	if err != nil {
		logger.Debug(ctx, "Media download failed, skipping item", "error", err)
		return 0, nil
	}
	defer func() {
		if closeErr := staged.Close(); closeErr != nil {
			logger.Warn(ctx, "Failed to release staged media", "error", closeErr)
		}
	}()

	imageBytes, err := staged.Bytes()
	if err != nil {
		logger.Debug(ctx, "Failed to read staged media, skipping item", "error", err)
		return 0, nil
	}

	matches, err := s.matcher.FindMatches(ctx, imageBytes, job.ConfidenceThreshold())
	if err != nil {
		logger.Debug(ctx, "Face matcher error, skipping item", "error", err)
		return 0, nil
	}

	var persisted int64
	for _, match := range matches {
		if _, ok := knownFaces[match.FaceID]; !ok {
			continue
		}
		record, err := scanning.NewResult(
			job.JobID(),
			item.PermalinkURL(),
			item.MediaURL(),
			match.Similarity,
			job.ConfidenceThreshold(),
			scanning.SourceTypeSocialMedia,
			map[string]string{
				"matched_face_id":            match.FaceID,
				scanning.MetadataKeyProvider: account.Provider(),
				"caption":                    item.Caption(),
				"posted_at":                  item.PostedAt().Format(time.RFC3339),
				"owned_by_user":              strconv.FormatBool(item.IsOwnedByUser()),
			},
		)
		if err != nil {
			logger.Debug(ctx, "Match below threshold, discarding", "error", err)
			continue
		}
		record.LinkMediaItem(item.ID())
		if err := s.resultRepo.CreateResult(ctx, record); err != nil {
			return persisted, fmt.Errorf("%w: %v", scanning.ErrResultPersistence, err)
		}
		persisted++
	}
	return persisted, nil
}
