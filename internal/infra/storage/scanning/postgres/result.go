package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage"
)

var _ scanning.ResultRepository = (*resultStore)(nil)

// resultStore implements scanning.ResultRepository using PostgreSQL. Results
// are append-only; the store exposes read-path aggregations over them.
type resultStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewResultStore creates a new PostgreSQL-backed result repository with
// tracing capabilities.
func NewResultStore(pool *pgxpool.Pool, tracer trace.Tracer) *resultStore {
	return &resultStore{db: pool, tracer: tracer}
}

// CreateResult persists a new scan result.
func (r *resultStore) CreateResult(ctx context.Context, result *scanning.Result) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", result.JobID().String()),
		attribute.String("source_type", result.SourceType().String()),
		attribute.Int("confidence", result.Confidence()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_result", dbAttrs, func(ctx context.Context) error {
		metadata, err := json.Marshal(result.Metadata())
		if err != nil {
			return fmt.Errorf("marshal result metadata: %w", err)
		}

		var mediaItemID pgtype.UUID
		if id := result.MediaItemID(); id != nil {
			mediaItemID = pgUUID(*id)
		}

		_, err = r.db.Exec(ctx, `
			INSERT INTO scan_results (
				id, scan_job_id, source_url, image_url, confidence, source_type,
				media_item_id, metadata, is_confirmed_by_user, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pgUUID(result.ID()),
			pgUUID(result.JobID()),
			result.SourceURL(),
			result.ImageURL(),
			int32(result.Confidence()),
			result.SourceType().String(),
			mediaItemID,
			metadata,
			nullBool(result.ConfirmedByUser()),
			result.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("CreateResult insert error: %w", err)
		}
		return nil
	})
}

// CountByJob returns the number of persisted results for a job.
func (r *resultStore) CountByJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	var count int64
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.count_results", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM scan_results WHERE scan_job_id = $1`, pgUUID(jobID))
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("CountByJob query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListByJob returns persisted results for a job ordered by confidence descending.
func (r *resultStore) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*scanning.Result, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var results []*scanning.Result
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_results", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, scan_job_id, source_url, image_url, confidence, source_type,
			       media_item_id, metadata, is_confirmed_by_user, created_at
			FROM scan_results
			WHERE scan_job_id = $1
			ORDER BY confidence DESC, created_at DESC
			LIMIT $2 OFFSET $3`,
			pgUUID(jobID), int32(limit), int32(offset),
		)
		if err != nil {
			return fmt.Errorf("ListByJob query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, dbJobID   pgtype.UUID
				sourceURL     string
				imageURL      string
				confidence    int32
				sourceType    string
				mediaItemID   pgtype.UUID
				metadataBytes []byte
				confirmed     pgtype.Bool
				createdAt     pgtype.Timestamptz
			)
			if err := rows.Scan(&id, &dbJobID, &sourceURL, &imageURL, &confidence, &sourceType,
				&mediaItemID, &metadataBytes, &confirmed, &createdAt); err != nil {
				return fmt.Errorf("ListByJob scan error: %w", err)
			}

			var metadata map[string]string
			if len(metadataBytes) > 0 {
				if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
					return fmt.Errorf("unmarshal result metadata: %w", err)
				}
			}

			var mediaID *uuid.UUID
			if mediaItemID.Valid {
				v := uuid.UUID(mediaItemID.Bytes)
				mediaID = &v
			}

			var confirmedByUser *bool
			if confirmed.Valid {
				v := confirmed.Bool
				confirmedByUser = &v
			}

			results = append(results, scanning.ReconstructResult(
				uuid.UUID(id.Bytes),
				uuid.UUID(dbJobID.Bytes),
				sourceURL,
				imageURL,
				int(confidence),
				scanning.SourceType(sourceType),
				mediaID,
				metadata,
				confirmedByUser,
				createdAt.Time,
			))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StatsByJob aggregates persisted results by confidence band, source type and
// confirmation status. Aggregation happens in SQL so large result sets never
// cross the wire.
func (r *resultStore) StatsByJob(ctx context.Context, jobID uuid.UUID) (*scanning.ResultStats, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	stats := scanning.NewResultStats()
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.result_stats", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT
				CASE
					WHEN confidence >= 95 THEN 'very_high'
					WHEN confidence >= 85 THEN 'high'
					WHEN confidence >= 70 THEN 'medium'
					ELSE 'low'
				END AS band,
				source_type,
				is_confirmed_by_user,
				COUNT(*)
			FROM scan_results
			WHERE scan_job_id = $1
			GROUP BY 1, 2, 3`,
			pgUUID(jobID),
		)
		if err != nil {
			return fmt.Errorf("StatsByJob query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				band       string
				sourceType string
				confirmed  pgtype.Bool
				count      int64
			)
			if err := rows.Scan(&band, &sourceType, &confirmed, &count); err != nil {
				return fmt.Errorf("StatsByJob scan error: %w", err)
			}

			stats.TotalResults += count
			stats.ByConfidenceBand[scanning.ConfidenceBand(band)] += count
			stats.BySourceType[scanning.SourceType(sourceType)] += count

			switch {
			case !confirmed.Valid:
				stats.Unreviewed += count
			case confirmed.Bool:
				stats.Confirmed += count
			default:
				stats.Rejected += count
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func nullBool(b *bool) pgtype.Bool {
	if b == nil {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: *b, Valid: true}
}
