package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// WorkerMetrics defines the metrics operations the scan worker records.
type WorkerMetrics interface {
	// Queue metrics.
	IncMessagesReceived(ctx context.Context, count int)
	IncMessagesRequeued(ctx context.Context)
	IncPollErrors(ctx context.Context)

	// Processing metrics.
	IncOutcome(ctx context.Context, state scanning.ScanState, reason scanning.FailureReason)
	ObserveFindings(ctx context.Context, count int)
	ObserveProcessTime(ctx context.Context, d time.Duration)
	SetActiveWorkers(ctx context.Context, delta int)
}

// RefresherMetrics defines the metrics operations the progress refresher
// records.
type RefresherMetrics interface {
	IncRefreshRuns(ctx context.Context)
	IncRefreshErrors(ctx context.Context)
	ObserveJobsRefreshed(ctx context.Context, count int)
}

// workerMetrics implements WorkerMetrics.
type workerMetrics struct {
	messagesReceived metric.Int64Counter
	messagesRequeued metric.Int64Counter
	pollErrors       metric.Int64Counter

	outcomes        metric.Int64Counter
	findingsPerScan metric.Int64Histogram
	processTime     metric.Float64Histogram
	activeWorkers   metric.Int64UpDownCounter
}

const namespace = "scan_worker"

// NewWorkerMetrics creates a new worker metrics instance.
func NewWorkerMetrics(mp metric.MeterProvider) (*workerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(workerMetrics)
	var err error

	if m.messagesReceived, err = meter.Int64Counter(
		"messages_received_total",
		metric.WithDescription("Total number of scan messages received from the queue"),
	); err != nil {
		return nil, err
	}

	if m.messagesRequeued, err = meter.Int64Counter(
		"messages_requeued_total",
		metric.WithDescription("Total number of scan messages requeued after a retryable failure"),
	); err != nil {
		return nil, err
	}

	if m.pollErrors, err = meter.Int64Counter(
		"poll_errors_total",
		metric.WithDescription("Total number of failed queue receive calls"),
	); err != nil {
		return nil, err
	}

	if m.outcomes, err = meter.Int64Counter(
		"message_outcomes_total",
		metric.WithDescription("Total number of processed messages by outcome state and reason"),
	); err != nil {
		return nil, err
	}

	if m.findingsPerScan, err = meter.Int64Histogram(
		"findings_per_scan",
		metric.WithDescription("Distribution of finding counts per scanned object"),
	); err != nil {
		return nil, err
	}

	if m.processTime, err = meter.Float64Histogram(
		"message_process_duration_seconds",
		metric.WithDescription("Time spent processing a single scan message"),
	); err != nil {
		return nil, err
	}

	if m.activeWorkers, err = meter.Int64UpDownCounter(
		"active_workers",
		metric.WithDescription("Number of in-flight message workers"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *workerMetrics) IncMessagesReceived(ctx context.Context, count int) {
	m.messagesReceived.Add(ctx, int64(count))
}

func (m *workerMetrics) IncMessagesRequeued(ctx context.Context) { m.messagesRequeued.Add(ctx, 1) }

func (m *workerMetrics) IncPollErrors(ctx context.Context) { m.pollErrors.Add(ctx, 1) }

func (m *workerMetrics) IncOutcome(ctx context.Context, state scanning.ScanState, reason scanning.FailureReason) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state.String()),
		attribute.String("reason", reason.String()),
	))
}

func (m *workerMetrics) ObserveFindings(ctx context.Context, count int) {
	m.findingsPerScan.Record(ctx, int64(count))
}

func (m *workerMetrics) ObserveProcessTime(ctx context.Context, d time.Duration) {
	m.processTime.Record(ctx, d.Seconds())
}

func (m *workerMetrics) SetActiveWorkers(ctx context.Context, delta int) {
	m.activeWorkers.Add(ctx, int64(delta))
}

// refresherMetrics implements RefresherMetrics.
type refresherMetrics struct {
	refreshRuns   metric.Int64Counter
	refreshErrors metric.Int64Counter
	jobsRefreshed metric.Int64Histogram
}

// NewRefresherMetrics creates a new refresher metrics instance.
func NewRefresherMetrics(mp metric.MeterProvider) (*refresherMetrics, error) {
	meter := mp.Meter("progress_refresher", metric.WithInstrumentationVersion("v0.1.0"))

	m := new(refresherMetrics)
	var err error

	if m.refreshRuns, err = meter.Int64Counter(
		"refresh_runs_total",
		metric.WithDescription("Total number of refresh cycles executed"),
	); err != nil {
		return nil, err
	}

	if m.refreshErrors, err = meter.Int64Counter(
		"refresh_errors_total",
		metric.WithDescription("Total number of per-job refresh failures"),
	); err != nil {
		return nil, err
	}

	if m.jobsRefreshed, err = meter.Int64Histogram(
		"jobs_refreshed",
		metric.WithDescription("Distribution of job counts refreshed per cycle"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *refresherMetrics) IncRefreshRuns(ctx context.Context) { m.refreshRuns.Add(ctx, 1) }

func (m *refresherMetrics) IncRefreshErrors(ctx context.Context) { m.refreshErrors.Add(ctx, 1) }

func (m *refresherMetrics) ObserveJobsRefreshed(ctx context.Context, count int) {
	m.jobsRefreshed.Record(ctx, int64(count))
}
