package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the provenance of a scan result.
type SourceType string

const (
	// SourceTypeWeb marks results discovered through the web search provider.
	SourceTypeWeb SourceType = "web"
	// SourceTypeSocialMedia marks results discovered in synced social media.
	SourceTypeSocialMedia SourceType = "social_media"
)

func (t SourceType) String() string { return string(t) }

// MetadataKeyProvider marks the search provider a web result came from.
// Demo-mode results carry the value "demo" so they are never mistaken for
// real matches.
const MetadataKeyProvider = "provider"

// ProviderDemo is the provenance marker for synthesized demo results.
const ProviderDemo = "demo"

// Result is one confidence-scored match persisted during a running job.
// Results are append-only; after creation only user confirmation is mutated,
// and that happens outside the pipeline.
type Result struct {
	id              uuid.UUID
	jobID           uuid.UUID
	sourceURL       string
	imageURL        string
	confidence      int
	sourceType      SourceType
	mediaItemID     *uuid.UUID
	metadata        map[string]string
	confirmedByUser *bool
	createdAt       time.Time
}

// NewResult creates a Result for a qualifying match. The confidence must meet
// the job's threshold at the moment of creation; the threshold is advisory to
// the scanner and never re-validated later.
func NewResult(
	jobID uuid.UUID,
	sourceURL, imageURL string,
	confidence, confidenceThreshold int,
	sourceType SourceType,
	metadata map[string]string,
) (*Result, error) {
	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("confidence must be within [0,100], got %d", confidence)
	}
	if confidence < confidenceThreshold {
		return nil, fmt.Errorf("confidence %d below job threshold %d", confidence, confidenceThreshold)
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}

	return &Result{
		id:         uuid.New(),
		jobID:      jobID,
		sourceURL:  sourceURL,
		imageURL:   imageURL,
		confidence: confidence,
		sourceType: sourceType,
		metadata:   metadata,
		createdAt:  time.Now(),
	}, nil
}

// ReconstructResult creates a Result from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructResult(
	id, jobID uuid.UUID,
	sourceURL, imageURL string,
	confidence int,
	sourceType SourceType,
	mediaItemID *uuid.UUID,
	metadata map[string]string,
	confirmedByUser *bool,
	createdAt time.Time,
) *Result {
	return &Result{
		id:              id,
		jobID:           jobID,
		sourceURL:       sourceURL,
		imageURL:        imageURL,
		confidence:      confidence,
		sourceType:      sourceType,
		mediaItemID:     mediaItemID,
		metadata:        metadata,
		confirmedByUser: confirmedByUser,
		createdAt:       createdAt,
	}
}

// ID returns the result identifier.
func (r *Result) ID() uuid.UUID { return r.id }

// JobID returns the owning scan job identifier.
func (r *Result) JobID() uuid.UUID { return r.jobID }

// SourceURL returns the page or permalink the image was found on.
func (r *Result) SourceURL() string { return r.sourceURL }

// ImageURL returns the direct image location.
func (r *Result) ImageURL() string { return r.imageURL }

// Confidence returns the similarity score (0-100) recorded at creation.
func (r *Result) Confidence() int { return r.confidence }

// SourceType returns the provenance of this result.
func (r *Result) SourceType() SourceType { return r.sourceType }

// MediaItemID returns the back-reference to a synced social media item, if any.
func (r *Result) MediaItemID() *uuid.UUID { return r.mediaItemID }

// Metadata returns free-form provenance information.
func (r *Result) Metadata() map[string]string { return r.metadata }

// ConfirmedByUser returns the user's review decision: nil when unreviewed.
func (r *Result) ConfirmedByUser() *bool { return r.confirmedByUser }

// CreatedAt returns when the result was persisted.
func (r *Result) CreatedAt() time.Time { return r.createdAt }

// LinkMediaItem attaches the synced media item this result was evaluated from.
func (r *Result) LinkMediaItem(mediaItemID uuid.UUID) { r.mediaItemID = &mediaItemID }
