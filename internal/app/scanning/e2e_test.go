package scanning

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/pii-armada/internal/detect"
	"github.com/ahrav/pii-armada/internal/domain/scanning"
	objmem "github.com/ahrav/pii-armada/internal/infra/objstore/memory"
	queuemem "github.com/ahrav/pii-armada/internal/infra/queue/memory"
	storemem "github.com/ahrav/pii-armada/internal/infra/storage/scanning/memory"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

// TestWorkerEndToEnd drives the full pipeline over the in-memory adapters:
// queue in, objects fetched and scanned, results persisted, progress
// refreshed.
func TestWorkerEndToEnd(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	log := logger.Noop()

	objects := objmem.NewStore()
	queue := queuemem.NewQueue()
	statusRepo := storemem.NewStatusStore()
	progressRepo := storemem.NewProgressStore()

	jobID := uuid.New()
	clean := scanning.ObjectRef{Bucket: "data", Key: "clean.txt"}
	dirty := scanning.ObjectRef{Bucket: "data", Key: "dirty.csv"}
	binary := scanning.ObjectRef{Bucket: "data", Key: "photo.jpg"}

	objects.Put(clean, []byte("nothing sensitive here\n"))
	objects.Put(dirty, []byte("name,ssn,card\njane,123-45-6789,4111-1111-1111-1111\n"))
	objects.Put(binary, []byte{0xff, 0xd8, 0xff})

	for _, ref := range []scanning.ObjectRef{clean, dirty, binary} {
		queue.Enqueue(jobID, ref)
	}

	writer := NewResultWriter(statusRepo, tracer, log)
	processor := NewBatchProcessor(
		NewObjectFetcher(objects, NewObjectFilter(0), tracer, log),
		detect.NewEngine(),
		writer,
		4,
		5*time.Second,
		noopWorkerMetrics{},
		tracer,
		log,
	)
	poller := NewQueuePoller(queue, processor, writer, QueuePollerConfig{}, noopWorkerMetrics{}, tracer, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	require.Eventually(t, func() bool { return queue.Len() == 0 }, 4*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	cleanStatus, ok := statusRepo.Status(jobID, clean)
	require.True(t, ok)
	assert.Equal(t, scanning.ScanStateScanned, cleanStatus.State)
	assert.Equal(t, 0, cleanStatus.FindingCount)

	dirtyStatus, ok := statusRepo.Status(jobID, dirty)
	require.True(t, ok)
	assert.Equal(t, scanning.ScanStateScanned, dirtyStatus.State)
	assert.Equal(t, 2, dirtyStatus.FindingCount)

	kinds := map[scanning.DetectorKind]bool{}
	for _, f := range statusRepo.FindingsFor(jobID, dirty) {
		kinds[f.Kind] = true
		assert.NotContains(t, f.MaskedMatch, "123-45-6789")
		assert.NotContains(t, f.MaskedMatch, "4111-1111-1111-1111")
	}
	assert.True(t, kinds[scanning.DetectorKindSSN])
	assert.True(t, kinds[scanning.DetectorKindCreditCard])

	binaryStatus, ok := statusRepo.Status(jobID, binary)
	require.True(t, ok)
	assert.Equal(t, scanning.ScanStateSkipped, binaryStatus.State)
	assert.Equal(t, scanning.ReasonUnsupportedType.String(), binaryStatus.ErrorReason)

	// A refresh cycle materializes the job aggregate.
	refresher := NewProgressRefresher(statusRepo, progressRepo, 0, 0, noopRefresherMetrics{}, tracer, log)
	require.NoError(t, refresher.RefreshOnce(context.Background()))

	progress, err := progressRepo.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalObjects)
	assert.Equal(t, 2, progress.ScannedCount)
	assert.Equal(t, 1, progress.SkippedCount)
	assert.Equal(t, 2, progress.FindingTotal)
	assert.True(t, progress.IsComplete())
}
