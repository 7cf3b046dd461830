// Package postgres implements the scanning repositories over PostgreSQL.
// Queries are hand-written against pgx; every operation runs inside a client
// span via storage.ExecuteAndTrace.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/internal/infra/storage"
)

// defaultDBAttributes defines standard OpenTelemetry attributes for database
// operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ scanning.StatusRepository = (*statusStore)(nil)

// statusStore implements scanning.StatusRepository. Status rows and their
// findings commit in a single transaction, and the upsert refuses to move a
// row out of a terminal state so redeliveries cannot rewrite history.
type statusStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewStatusStore creates a PostgreSQL-backed status repository.
func NewStatusStore(pool *pgxpool.Pool, tracer trace.Tracer) *statusStore {
	return &statusStore{db: pool, tracer: tracer}
}

// upsertStatusQuery flips pending rows to their terminal state, inserting
// the row if the enqueuer never created one. The WHERE guard makes terminal
// rows immutable except for idempotent re-application of the same state.
const upsertStatusQuery = `
	INSERT INTO object_scan_status (job_id, bucket, object_key, state, finding_count, error_reason, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (job_id, bucket, object_key) DO UPDATE SET
		state = EXCLUDED.state,
		finding_count = EXCLUDED.finding_count,
		error_reason = EXCLUDED.error_reason,
		updated_at = EXCLUDED.updated_at
	WHERE object_scan_status.state = 'pending'
		OR object_scan_status.state = EXCLUDED.state
`

// RecordScan upserts the status row and inserts its findings transactionally.
func (r *statusStore) RecordScan(ctx context.Context, status scanning.ObjectScanStatus, findings []scanning.Finding) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", status.JobID.String()),
		attribute.String("object", status.Ref.String()),
		attribute.String("state", status.State.String()),
		attribute.Int("finding_count", len(findings)),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.record_scan", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, upsertStatusQuery,
			status.JobID,
			status.Ref.Bucket,
			status.Ref.Key,
			string(status.State),
			status.FindingCount,
			status.ErrorReason,
			status.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert status error: %w", err)
		}

		if len(findings) > 0 {
			if err := insertFindings(ctx, tx, findings); err != nil {
				return err
			}
		}

		return tx.Commit(ctx)
	})
}

// insertFindings bulk-inserts findings with a single VALUES statement. The
// unique dedupe key plus DO NOTHING makes redelivered batches no-ops.
func insertFindings(ctx context.Context, tx pgx.Tx, findings []scanning.Finding) error {
	// job_id + bucket + object_key + detector_kind + masked_match + context + match_offset
	values := make([]string, 0, len(findings))
	args := make([]any, 0, len(findings)*7)
	i := 1

	for _, f := range findings {
		values = append(values, fmt.Sprintf("($%d::uuid, $%d, $%d, $%d::detector_kind, $%d, $%d, $%d::int)",
			i, i+1, i+2, i+3, i+4, i+5, i+6))
		args = append(args,
			f.JobID,
			f.Ref.Bucket,
			f.Ref.Key,
			string(f.Kind),
			f.MaskedMatch,
			f.Context,
			f.Offset,
		)
		i += 7
	}

	query := fmt.Sprintf(`
		INSERT INTO findings (job_id, bucket, object_key, detector_kind, masked_match, context, match_offset)
		VALUES %s
		ON CONFLICT ON CONSTRAINT findings_dedupe_key DO NOTHING
	`, strings.Join(values, ","))

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert findings error: %w", err)
	}
	return nil
}

// ListActiveJobIDs returns jobs with status activity at or after since.
func (r *statusStore) ListActiveJobIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("since", since.Format(time.RFC3339)),
	)

	var jobIDs []uuid.UUID
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_active_job_ids", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx,
			`SELECT DISTINCT job_id FROM object_scan_status WHERE updated_at >= $1`,
			since,
		)
		if err != nil {
			return fmt.Errorf("list active jobs query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan job id error: %w", err)
			}
			jobIDs = append(jobIDs, id)
		}
		return rows.Err()
	})
	return jobIDs, err
}

// AggregateJob recomputes the job's counters from the status rows. The
// finding total sums the per-row counts, so it stays consistent with the
// rows even while findings are still being written for other objects.
func (r *statusStore) AggregateJob(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
	)

	var progress scanning.JobProgress
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.aggregate_job", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE state = 'scanned'),
				COUNT(*) FILTER (WHERE state = 'skipped'),
				COUNT(*) FILTER (WHERE state = 'failed'),
				COALESCE(SUM(finding_count), 0)
			FROM object_scan_status
			WHERE job_id = $1
		`, jobID)

		if err := row.Scan(
			&progress.TotalObjects,
			&progress.ScannedCount,
			&progress.SkippedCount,
			&progress.FailedCount,
			&progress.FindingTotal,
		); err != nil {
			return fmt.Errorf("aggregate job query error: %w", err)
		}
		progress.JobID = jobID
		return nil
	})
	return progress, err
}
