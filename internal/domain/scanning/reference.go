package scanning

import "github.com/google/uuid"

// ReferenceFace is a registered reference photo the face matcher has indexed.
// The pipeline only reads reference faces; photo management owns them. Only
// active faces participate in a scan.
type ReferenceFace struct {
	id             uuid.UUID
	userID         uuid.UUID
	externalFaceID string
	isActive       bool
}

// NewReferenceFace creates a reference face value object.
func NewReferenceFace(id, userID uuid.UUID, externalFaceID string, isActive bool) ReferenceFace {
	return ReferenceFace{
		id:             id,
		userID:         userID,
		externalFaceID: externalFaceID,
		isActive:       isActive,
	}
}

// ID returns the reference face identifier.
func (f ReferenceFace) ID() uuid.UUID { return f.id }

// UserID returns the owning user identifier.
func (f ReferenceFace) UserID() uuid.UUID { return f.userID }

// ExternalFaceID returns the opaque identifier assigned by the face matcher.
func (f ReferenceFace) ExternalFaceID() string { return f.externalFaceID }

// IsActive reports whether this face participates in scans.
func (f ReferenceFace) IsActive() bool { return f.isActive }

// ExternalFaceIDs extracts matcher identifiers from a set of reference faces.
func ExternalFaceIDs(faces []ReferenceFace) []string {
	ids := make([]string, 0, len(faces))
	for _, f := range faces {
		ids = append(ids, f.ExternalFaceID())
	}
	return ids
}
