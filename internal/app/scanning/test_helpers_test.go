package scanning

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

type mockQueue struct {
	receiveFunc func(context.Context, int, time.Duration) ([]scanning.ScanMessage, error)
	deleteFunc  func(context.Context, string) error
	requeueFunc func(context.Context, string, time.Duration) error

	mu       sync.Mutex
	deleted  []string
	requeued []string
}

func (m *mockQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]scanning.ScanMessage, error) {
	if m.receiveFunc != nil {
		return m.receiveFunc(ctx, max, wait)
	}
	return nil, nil
}

func (m *mockQueue) Delete(ctx context.Context, receiptToken string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, receiptToken)
	m.mu.Unlock()
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, receiptToken)
	}
	return nil
}

func (m *mockQueue) Requeue(ctx context.Context, receiptToken string, delay time.Duration) error {
	m.mu.Lock()
	m.requeued = append(m.requeued, receiptToken)
	m.mu.Unlock()
	if m.requeueFunc != nil {
		return m.requeueFunc(ctx, receiptToken, delay)
	}
	return nil
}

func (m *mockQueue) deletedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *mockQueue) requeuedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requeued...)
}

type mockObjectStore struct {
	headFunc func(context.Context, scanning.ObjectRef) (scanning.ObjectInfo, error)
	getFunc  func(context.Context, scanning.ObjectRef) ([]byte, error)
}

func (m *mockObjectStore) Head(ctx context.Context, ref scanning.ObjectRef) (scanning.ObjectInfo, error) {
	if m.headFunc != nil {
		return m.headFunc(ctx, ref)
	}
	return scanning.ObjectInfo{}, nil
}

func (m *mockObjectStore) Get(ctx context.Context, ref scanning.ObjectRef) ([]byte, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, ref)
	}
	return nil, nil
}

type mockStatusRepo struct {
	recordScanFunc func(context.Context, scanning.ObjectScanStatus, []scanning.Finding) error
	listActiveFunc func(context.Context, time.Time) ([]uuid.UUID, error)
	aggregateFunc  func(context.Context, uuid.UUID) (scanning.JobProgress, error)
}

func (m *mockStatusRepo) RecordScan(ctx context.Context, status scanning.ObjectScanStatus, findings []scanning.Finding) error {
	if m.recordScanFunc != nil {
		return m.recordScanFunc(ctx, status, findings)
	}
	return nil
}

func (m *mockStatusRepo) ListActiveJobIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, since)
	}
	return nil, nil
}

func (m *mockStatusRepo) AggregateJob(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	if m.aggregateFunc != nil {
		return m.aggregateFunc(ctx, jobID)
	}
	return scanning.JobProgress{JobID: jobID}, nil
}

type mockProgressRepo struct {
	upsertFunc func(context.Context, scanning.JobProgress) error
	getFunc    func(context.Context, uuid.UUID) (scanning.JobProgress, error)
}

func (m *mockProgressRepo) Upsert(ctx context.Context, progress scanning.JobProgress) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, progress)
	}
	return nil
}

func (m *mockProgressRepo) Get(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, jobID)
	}
	return scanning.JobProgress{}, scanning.ErrNoProgressFound
}

type mockDetector struct {
	detectFunc func(string) []scanning.RawFinding
}

func (m *mockDetector) Detect(content string) []scanning.RawFinding {
	if m.detectFunc != nil {
		return m.detectFunc(content)
	}
	return nil
}

// noopWorkerMetrics satisfies WorkerMetrics without recording anything.
type noopWorkerMetrics struct{}

func (noopWorkerMetrics) IncMessagesReceived(context.Context, int) {}
func (noopWorkerMetrics) IncMessagesRequeued(context.Context)      {}
func (noopWorkerMetrics) IncPollErrors(context.Context)            {}
func (noopWorkerMetrics) IncOutcome(context.Context, scanning.ScanState, scanning.FailureReason) {
}
func (noopWorkerMetrics) ObserveFindings(context.Context, int)            {}
func (noopWorkerMetrics) ObserveProcessTime(context.Context, time.Duration) {}
func (noopWorkerMetrics) SetActiveWorkers(context.Context, int)           {}

// noopRefresherMetrics satisfies RefresherMetrics without recording anything.
type noopRefresherMetrics struct{}

func (noopRefresherMetrics) IncRefreshRuns(context.Context)            {}
func (noopRefresherMetrics) IncRefreshErrors(context.Context)          {}
func (noopRefresherMetrics) ObserveJobsRefreshed(context.Context, int) {}

func testMessage(jobID uuid.UUID, key, receipt string) scanning.ScanMessage {
	return scanning.ScanMessage{
		JobID:        jobID,
		Ref:          scanning.ObjectRef{Bucket: "data", Key: key},
		EnqueueTime:  time.Now().UTC(),
		ReceiptToken: receipt,
		ReceiveCount: 1,
	}
}
