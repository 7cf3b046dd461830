package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/internal/infra/storage"
)

func TestProgressStore_UpsertAndGet(t *testing.T) {
	t.Parallel()
	db, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewProgressStore(db, storage.NoOpTracer())
	ctx := context.Background()

	jobID := uuid.New()
	first := scanning.JobProgress{
		JobID:           jobID,
		TotalObjects:    10,
		ScannedCount:    4,
		SkippedCount:    1,
		FindingTotal:    7,
		LastRefreshedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Upsert(ctx, first))

	got, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// A later refresh replaces the row wholesale, including counters that
	// shrank because the aggregate was recomputed from scratch.
	second := first
	second.ScannedCount = 10
	second.SkippedCount = 0
	second.FindingTotal = 12
	second.LastRefreshedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.Upsert(ctx, second))

	got, err = store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestProgressStore_GetMissing(t *testing.T) {
	t.Parallel()
	db, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewProgressStore(db, storage.NoOpTracer())

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, scanning.ErrNoProgressFound)
}
