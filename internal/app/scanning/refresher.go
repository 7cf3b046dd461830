package scanning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

const (
	// DefaultRefreshInterval is how often progress rows are recomputed.
	DefaultRefreshInterval = time.Minute

	// DefaultRefreshLookback bounds which jobs count as active: any job with
	// status activity within this window is refreshed.
	DefaultRefreshLookback = 24 * time.Hour
)

// ProgressRefresher periodically recomputes JobProgress rows from the
// authoritative status table and replaces them wholesale. The recompute is
// idempotent, so overlapping runs and crashes mid-cycle are harmless; the
// worst case is a progress row that lags the status table by one interval.
type ProgressRefresher struct {
	statusRepo   scanning.StatusRepository
	progressRepo scanning.ProgressRepository

	interval time.Duration
	lookback time.Duration

	metrics RefresherMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewProgressRefresher creates a ProgressRefresher. Non-positive interval or
// lookback fall back to the defaults.
func NewProgressRefresher(
	statusRepo scanning.StatusRepository,
	progressRepo scanning.ProgressRepository,
	interval, lookback time.Duration,
	metrics RefresherMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *ProgressRefresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if lookback <= 0 {
		lookback = DefaultRefreshLookback
	}
	return &ProgressRefresher{
		statusRepo:   statusRepo,
		progressRepo: progressRepo,
		interval:     interval,
		lookback:     lookback,
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger,
	}
}

// Run refreshes on a fixed interval until ctx is canceled. A cycle runs
// immediately on startup so fresh deployments do not wait a full interval
// for their first progress rows.
func (r *ProgressRefresher) Run(ctx context.Context) error {
	r.logger.Info(ctx, "progress refresher started",
		"interval", r.interval.String(),
		"lookback", r.lookback.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Error(ctx, "progress refresh cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error(ctx, "progress refresh cycle failed", "error", err)
			}
		}
	}
}

// RefreshOnce recomputes progress for every active job. Per-job failures are
// isolated: one job's error is joined into the returned error without
// stopping the others.
func (r *ProgressRefresher) RefreshOnce(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "progress_refresher.refresh")
	defer span.End()

	r.metrics.IncRefreshRuns(ctx)

	since := time.Now().UTC().Add(-r.lookback)
	jobIDs, err := r.statusRepo.ListActiveJobIDs(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing active jobs failed")
		return fmt.Errorf("listing active jobs: %w", err)
	}
	span.SetAttributes(attribute.Int("active_jobs", len(jobIDs)))

	var errs []error
	refreshed := 0
	for _, jobID := range jobIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := r.refreshJob(ctx, jobID); err != nil {
			r.metrics.IncRefreshErrors(ctx)
			r.logger.Error(ctx, "job progress refresh failed",
				"job_id", jobID.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("job %s: %w", jobID, err))
			continue
		}
		refreshed++
	}

	r.metrics.ObserveJobsRefreshed(ctx, refreshed)
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "cycle completed with errors")
		return errors.Join(errs...)
	}
	span.SetStatus(codes.Ok, "cycle completed")
	return nil
}

func (r *ProgressRefresher) refreshJob(ctx context.Context, jobID uuid.UUID) error {
	progress, err := r.statusRepo.AggregateJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("aggregating: %w", err)
	}
	progress.LastRefreshedAt = time.Now().UTC()

	if err := r.progressRepo.Upsert(ctx, progress); err != nil {
		return fmt.Errorf("upserting: %w", err)
	}
	return nil
}
