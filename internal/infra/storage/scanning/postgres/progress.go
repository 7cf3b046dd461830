package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/internal/infra/storage"
)

var _ scanning.ProgressRepository = (*progressStore)(nil)

// progressStore implements scanning.ProgressRepository. Rows are replaced
// wholesale on every upsert; there is no incremental path.
type progressStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewProgressStore creates a PostgreSQL-backed progress repository.
func NewProgressStore(pool *pgxpool.Pool, tracer trace.Tracer) *progressStore {
	return &progressStore{db: pool, tracer: tracer}
}

// Upsert replaces the job's progress row with the given aggregate.
func (r *progressStore) Upsert(ctx context.Context, progress scanning.JobProgress) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", progress.JobID.String()),
		attribute.Int("total_objects", progress.TotalObjects),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.upsert_job_progress", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO job_progress (job_id, total_objects, scanned_count, skipped_count, failed_count, finding_total, last_refreshed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (job_id) DO UPDATE SET
				total_objects = EXCLUDED.total_objects,
				scanned_count = EXCLUDED.scanned_count,
				skipped_count = EXCLUDED.skipped_count,
				failed_count = EXCLUDED.failed_count,
				finding_total = EXCLUDED.finding_total,
				last_refreshed_at = EXCLUDED.last_refreshed_at
		`,
			progress.JobID,
			progress.TotalObjects,
			progress.ScannedCount,
			progress.SkippedCount,
			progress.FailedCount,
			progress.FindingTotal,
			progress.LastRefreshedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert job progress error: %w", err)
		}
		return nil
	})
}

// Get returns the job's progress row, or scanning.ErrNoProgressFound.
func (r *progressStore) Get(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
	)

	var progress scanning.JobProgress
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_job_progress", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT job_id, total_objects, scanned_count, skipped_count, failed_count, finding_total, last_refreshed_at
			FROM job_progress
			WHERE job_id = $1
		`, jobID)

		err := row.Scan(
			&progress.JobID,
			&progress.TotalObjects,
			&progress.ScannedCount,
			&progress.SkippedCount,
			&progress.FailedCount,
			&progress.FindingTotal,
			&progress.LastRefreshedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return scanning.ErrNoProgressFound
		}
		if err != nil {
			return fmt.Errorf("get job progress error: %w", err)
		}
		return nil
	})
	return progress, err
}
