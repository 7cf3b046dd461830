package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

func TestStatusStore_RecordScanIdempotent(t *testing.T) {
	store := NewStatusStore()
	ctx := context.Background()
	jobID := uuid.New()
	ref := scanning.ObjectRef{Bucket: "data", Key: "a.txt"}

	status := scanning.ObjectScanStatus{
		JobID: jobID, Ref: ref, State: scanning.ScanStateScanned, FindingCount: 1, UpdatedAt: time.Now().UTC(),
	}
	findings := []scanning.Finding{{
		JobID: jobID, Ref: ref, Kind: scanning.DetectorKindEmail, MaskedMatch: "j***@example.com", Offset: 4,
	}}

	require.NoError(t, store.RecordScan(ctx, status, findings))
	require.NoError(t, store.RecordScan(ctx, status, findings))

	assert.Len(t, store.FindingsFor(jobID, ref), 1)

	progress, err := store.AggregateJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.TotalObjects)
	assert.Equal(t, 1, progress.FindingTotal)
}

func TestStatusStore_TerminalStateWins(t *testing.T) {
	store := NewStatusStore()
	ctx := context.Background()
	jobID := uuid.New()
	ref := scanning.ObjectRef{Bucket: "data", Key: "a.txt"}

	require.NoError(t, store.RecordScan(ctx, scanning.ObjectScanStatus{
		JobID: jobID, Ref: ref, State: scanning.ScanStateScanned, FindingCount: 2, UpdatedAt: time.Now().UTC(),
	}, nil))
	require.NoError(t, store.RecordScan(ctx, scanning.ObjectScanStatus{
		JobID: jobID, Ref: ref, State: scanning.ScanStateFailed,
		ErrorReason: scanning.ReasonFetchError.String(), UpdatedAt: time.Now().UTC(),
	}, nil))

	st, ok := store.Status(jobID, ref)
	require.True(t, ok)
	assert.Equal(t, scanning.ScanStateScanned, st.State)
	assert.Equal(t, 2, st.FindingCount)
}

func TestStatusStore_FailureInjection(t *testing.T) {
	store := NewStatusStore()
	ctx := context.Background()

	injected := errors.New("storage down")
	store.FailNextWrites(injected)

	err := store.RecordScan(ctx, scanning.ObjectScanStatus{JobID: uuid.New()}, nil)
	assert.ErrorIs(t, err, injected)

	store.FailNextWrites(nil)
	assert.NoError(t, store.RecordScan(ctx, scanning.ObjectScanStatus{
		JobID: uuid.New(), Ref: scanning.ObjectRef{Bucket: "b", Key: "k"},
		State: scanning.ScanStateScanned, UpdatedAt: time.Now().UTC(),
	}, nil))
}

func TestStatusStore_ListActiveJobIDs(t *testing.T) {
	store := NewStatusStore()
	ctx := context.Background()
	recentJob, staleJob := uuid.New(), uuid.New()

	require.NoError(t, store.RecordScan(ctx, scanning.ObjectScanStatus{
		JobID: staleJob, Ref: scanning.ObjectRef{Bucket: "data", Key: "old.txt"},
		State: scanning.ScanStateScanned, UpdatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}, nil))
	require.NoError(t, store.RecordScan(ctx, scanning.ObjectScanStatus{
		JobID: recentJob, Ref: scanning.ObjectRef{Bucket: "data", Key: "new.txt"},
		State: scanning.ScanStateScanned, UpdatedAt: time.Now().UTC(),
	}, nil))

	active, err := store.ListActiveJobIDs(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Contains(t, active, recentJob)
	assert.NotContains(t, active, staleJob)
}

func TestProgressStore_UpsertReplaces(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, store.Upsert(ctx, scanning.JobProgress{JobID: jobID, TotalObjects: 5, ScannedCount: 2}))
	require.NoError(t, store.Upsert(ctx, scanning.JobProgress{JobID: jobID, TotalObjects: 5, ScannedCount: 5}))

	got, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ScannedCount)
}

func TestProgressStore_GetMissing(t *testing.T) {
	store := NewProgressStore()

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, scanning.ErrNoProgressFound)
}
