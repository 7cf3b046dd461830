package scanning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

func newTestRefresher(statusRepo scanning.StatusRepository, progressRepo scanning.ProgressRepository) *ProgressRefresher {
	return NewProgressRefresher(
		statusRepo,
		progressRepo,
		0, 0,
		noopRefresherMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		logger.Noop(),
	)
}

func TestProgressRefresher_RecomputesAndReplaces(t *testing.T) {
	jobA, jobB := uuid.New(), uuid.New()

	statusRepo := &mockStatusRepo{
		listActiveFunc: func(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{jobA, jobB}, nil
		},
		aggregateFunc: func(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
			if jobID == jobA {
				return scanning.JobProgress{
					JobID: jobA, TotalObjects: 10, ScannedCount: 7, SkippedCount: 2, FailedCount: 1, FindingTotal: 42,
				}, nil
			}
			return scanning.JobProgress{JobID: jobB, TotalObjects: 3, ScannedCount: 1}, nil
		},
	}

	upserts := map[uuid.UUID]scanning.JobProgress{}
	progressRepo := &mockProgressRepo{
		upsertFunc: func(ctx context.Context, p scanning.JobProgress) error {
			upserts[p.JobID] = p
			return nil
		},
	}

	err := newTestRefresher(statusRepo, progressRepo).RefreshOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, upserts, 2)
	assert.Equal(t, 42, upserts[jobA].FindingTotal)
	assert.True(t, upserts[jobA].IsComplete())
	assert.False(t, upserts[jobB].IsComplete())
	assert.False(t, upserts[jobA].LastRefreshedAt.IsZero())
}

func TestProgressRefresher_Idempotent(t *testing.T) {
	jobID := uuid.New()

	statusRepo := &mockStatusRepo{
		listActiveFunc: func(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{jobID}, nil
		},
		aggregateFunc: func(ctx context.Context, id uuid.UUID) (scanning.JobProgress, error) {
			return scanning.JobProgress{JobID: id, TotalObjects: 5, ScannedCount: 5}, nil
		},
	}

	var upserts []scanning.JobProgress
	progressRepo := &mockProgressRepo{
		upsertFunc: func(ctx context.Context, p scanning.JobProgress) error {
			upserts = append(upserts, p)
			return nil
		},
	}

	refresher := newTestRefresher(statusRepo, progressRepo)
	require.NoError(t, refresher.RefreshOnce(context.Background()))
	require.NoError(t, refresher.RefreshOnce(context.Background()))

	// Back-to-back cycles with unchanged source rows produce identical
	// counter sets; only the refresh timestamp moves.
	require.Len(t, upserts, 2)
	first, second := upserts[0], upserts[1]
	first.LastRefreshedAt, second.LastRefreshedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
}

func TestProgressRefresher_PerJobFailureIsolation(t *testing.T) {
	jobA, jobB, jobC := uuid.New(), uuid.New(), uuid.New()

	statusRepo := &mockStatusRepo{
		listActiveFunc: func(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{jobA, jobB, jobC}, nil
		},
		aggregateFunc: func(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
			if jobID == jobB {
				return scanning.JobProgress{}, errors.New("aggregate query failed")
			}
			return scanning.JobProgress{JobID: jobID, TotalObjects: 1}, nil
		},
	}

	upserts := map[uuid.UUID]scanning.JobProgress{}
	progressRepo := &mockProgressRepo{
		upsertFunc: func(ctx context.Context, p scanning.JobProgress) error {
			upserts[p.JobID] = p
			return nil
		},
	}

	err := newTestRefresher(statusRepo, progressRepo).RefreshOnce(context.Background())
	require.Error(t, err)

	// The failing job is reported but its siblings still refreshed.
	assert.Contains(t, err.Error(), jobB.String())
	assert.Contains(t, upserts, jobA)
	assert.Contains(t, upserts, jobC)
	assert.NotContains(t, upserts, jobB)
}

func TestProgressRefresher_ListFailureAbortsCycle(t *testing.T) {
	statusRepo := &mockStatusRepo{
		listActiveFunc: func(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
			return nil, errors.New("database down")
		},
	}

	err := newTestRefresher(statusRepo, &mockProgressRepo{}).RefreshOnce(context.Background())
	require.Error(t, err)
}

func TestProgressRefresher_LookbackWindow(t *testing.T) {
	var gotSince time.Time
	statusRepo := &mockStatusRepo{
		listActiveFunc: func(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
			gotSince = since
			return nil, nil
		},
	}

	refresher := NewProgressRefresher(
		statusRepo,
		&mockProgressRepo{},
		time.Minute,
		2*time.Hour,
		noopRefresherMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		logger.Noop(),
	)

	before := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, refresher.RefreshOnce(context.Background()))
	after := time.Now().UTC().Add(-2 * time.Hour)

	assert.False(t, gotSince.Before(before))
	assert.False(t, gotSince.After(after))
}
