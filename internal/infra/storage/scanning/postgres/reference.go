package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage"
)

var _ scanning.ReferenceRepository = (*referenceStore)(nil)

// referenceStore implements scanning.ReferenceRepository using PostgreSQL.
// The pipeline is a read-only consumer; photo management owns the rows.
type referenceStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewReferenceStore creates a new PostgreSQL-backed reference face repository.
func NewReferenceStore(pool *pgxpool.Pool, tracer trace.Tracer) *referenceStore {
	return &referenceStore{db: pool, tracer: tracer}
}

// ListActiveByUser returns the user's active reference faces.
func (r *referenceStore) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]scanning.ReferenceFace, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("user_id", userID.String()))

	var faces []scanning.ReferenceFace
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_active_reference_faces", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, user_id, external_face_id, is_active
			FROM reference_faces
			WHERE user_id = $1 AND is_active = true`,
			pgUUID(userID),
		)
		if err != nil {
			return fmt.Errorf("ListActiveByUser query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, dbUserID   pgtype.UUID
				externalFaceID string
				isActive       bool
			)
			if err := rows.Scan(&id, &dbUserID, &externalFaceID, &isActive); err != nil {
				return fmt.Errorf("ListActiveByUser scan error: %w", err)
			}
			faces = append(faces, scanning.NewReferenceFace(
				uuid.UUID(id.Bytes),
				uuid.UUID(dbUserID.Bytes),
				externalFaceID,
				isActive,
			))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return faces, nil
}
