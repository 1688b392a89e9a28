// Package postgres persists the scanning domain in PostgreSQL using raw pgx
// queries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage"
)

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ scanning.JobRepository = (*jobStore)(nil)

// jobStore implements scanning.JobRepository using PostgreSQL as the backing
// store. It provides persistent storage for scan jobs, enabling tracking of
// job status, progress and counters across the scanning domain.
type jobStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a new PostgreSQL-backed job repository with tracing
// capabilities.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{db: pool, tracer: tracer}
}

// CreateJob persists a new scan job.
func (r *jobStore) CreateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", string(job.Status())),
		attribute.String("scan_type", job.ScanType().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_job", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO scan_jobs (
				job_id, user_id, scan_type, confidence_threshold, status, progress,
				total_images_scanned, total_matches_found, error_message, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			pgUUID(job.JobID()),
			pgUUID(job.UserID()),
			job.ScanType().String(),
			int32(job.ConfidenceThreshold()),
			string(job.Status()),
			int32(job.Progress()),
			job.TotalImagesScanned(),
			job.TotalMatchesFound(),
			nullString(job.ErrorMessage()),
			job.Timeline().CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("CreateJob insert error: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job by its identifier.
func (r *jobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*scanning.Job, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	var job *scanning.Job
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_job", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT job_id, user_id, scan_type, confidence_threshold, status, progress,
			       total_images_scanned, total_matches_found, error_message,
			       created_at, started_at, completed_at, updated_at
			FROM scan_jobs WHERE job_id = $1`,
			pgUUID(jobID),
		)

		var (
			dbJobID, dbUserID                  pgtype.UUID
			scanType, status                   string
			threshold, progress                int32
			imagesScanned, matchesFound        int64
			errorMessage                       pgtype.Text
			createdAt, updatedAt               pgtype.Timestamptz
			startedAt, completedAt             pgtype.Timestamptz
		)
		if err := row.Scan(
			&dbJobID, &dbUserID, &scanType, &threshold, &status, &progress,
			&imagesScanned, &matchesFound, &errorMessage,
			&createdAt, &startedAt, &completedAt, &updatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrJobNotFound
			}
			return fmt.Errorf("GetJob query error: %w", err)
		}

		timeline := scanning.ReconstructTimeline(
			createdAt.Time, startedAt.Time, completedAt.Time, updatedAt.Time)

		job = scanning.ReconstructJob(
			uuid.UUID(dbJobID.Bytes),
			uuid.UUID(dbUserID.Bytes),
			scanning.ParseScanType(scanType),
			int(threshold),
			scanning.ParseJobStatus(status),
			int(progress),
			imagesScanned,
			matchesFound,
			errorMessage.String,
			timeline,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob modifies an existing job's state in the database.
func (r *jobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", string(job.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_job", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE scan_jobs SET
				status = $2,
				progress = $3,
				total_matches_found = $4,
				error_message = $5,
				started_at = $6,
				completed_at = $7,
				updated_at = now()
			WHERE job_id = $1`,
			pgUUID(job.JobID()),
			string(job.Status()),
			int32(job.Progress()),
			job.TotalMatchesFound(),
			nullString(job.ErrorMessage()),
			nullTime(job.Timeline().StartedAt()),
			nullTime(job.Timeline().CompletedAt()),
		)
		if err != nil {
			return fmt.Errorf("UpdateJob query error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrJobNotFound
		}
		return nil
	})
}

// IncrementImagesScanned atomically increments the images-scanned counter for
// a job. Scanner implementations call this after every candidate evaluation so
// the counter reflects work attempted, not just matches.
func (r *jobStore) IncrementImagesScanned(ctx context.Context, jobID uuid.UUID, delta int64) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
		attribute.Int64("delta", delta),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.increment_images_scanned", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE scan_jobs SET
				total_images_scanned = total_images_scanned + $2,
				updated_at = now()
			WHERE job_id = $1`,
			pgUUID(jobID), delta,
		)
		if err != nil {
			return fmt.Errorf("increment images scanned error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrJobNotFound
		}
		return nil
	})
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func nullString(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
