package scanning

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

const (
	// DefaultMaxWorkers bounds concurrent message processing within a batch.
	DefaultMaxWorkers = 20

	// DefaultMessageTimeout bounds the processing of a single message,
	// covering fetch, detect, and persist.
	DefaultMessageTimeout = 60 * time.Second
)

// Detector is the content-scanning collaborator. Implementations must be
// safe for concurrent use.
type Detector interface {
	Detect(content string) []scanning.RawFinding
}

// BatchProcessor fans a batch of scan messages out over a bounded worker
// pool and waits for every message to reach an outcome before returning.
// Failures are isolated per message: a sibling's fault never changes another
// message's result, and no error escapes the batch as a raw fault.
type BatchProcessor struct {
	fetcher  *ObjectFetcher
	detector Detector
	writer   *ResultWriter

	maxWorkers     int64
	messageTimeout time.Duration

	metrics WorkerMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewBatchProcessor creates a BatchProcessor. Non-positive maxWorkers or
// messageTimeout fall back to the defaults.
func NewBatchProcessor(
	fetcher *ObjectFetcher,
	detector Detector,
	writer *ResultWriter,
	maxWorkers int,
	messageTimeout time.Duration,
	metrics WorkerMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *BatchProcessor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if messageTimeout <= 0 {
		messageTimeout = DefaultMessageTimeout
	}
	return &BatchProcessor{
		fetcher:        fetcher,
		detector:       detector,
		writer:         writer,
		maxWorkers:     int64(maxWorkers),
		messageTimeout: messageTimeout,
		metrics:        metrics,
		tracer:         tracer,
		logger:         logger,
	}
}

// ProcessBatch processes every message in the batch and returns exactly one
// outcome per message, in input order. It returns only when all workers have
// finished; the caller acknowledges or requeues based on the outcomes.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, msgs []scanning.ScanMessage) []scanning.MessageOutcome {
	ctx, span := p.tracer.Start(ctx, "batch_processor.process_batch",
		trace.WithAttributes(attribute.Int("batch_size", len(msgs))))
	defer span.End()

	results := make([]scanning.MessageOutcome, len(msgs))

	sem := semaphore.NewWeighted(p.maxWorkers)
	var wg sync.WaitGroup

	for i, msg := range msgs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown mid-batch: everything not yet started is a timeout
			// failure so the poller requeues it for the next worker.
			results[i] = scanning.MessageOutcome{
				Message: msg,
				Outcome: scanning.FailedOutcome(scanning.ReasonTimeout),
			}
			continue
		}

		wg.Add(1)
		go func(i int, msg scanning.ScanMessage) {
			defer wg.Done()
			defer sem.Release(1)

			p.metrics.SetActiveWorkers(ctx, 1)
			defer p.metrics.SetActiveWorkers(ctx, -1)

			results[i] = scanning.MessageOutcome{
				Message: msg,
				Outcome: p.processOne(ctx, msg),
			}
		}(i, msg)
	}

	wg.Wait()

	for _, r := range results {
		p.metrics.IncOutcome(ctx, r.Outcome.State, r.Outcome.Reason)
	}
	return results
}

// processOne drives a single message to a terminal outcome under the
// per-message timeout. Panics are contained here so one poisoned object
// cannot take down its batch siblings.
func (p *BatchProcessor) processOne(ctx context.Context, msg scanning.ScanMessage) (outcome scanning.Outcome) {
	start := time.Now()
	defer func() { p.metrics.ObserveProcessTime(ctx, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, p.messageTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "batch_processor.process_message",
		trace.WithAttributes(
			attribute.String("job_id", msg.JobID.String()),
			attribute.String("object", msg.Ref.String()),
			attribute.Int("receive_count", msg.ReceiveCount),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "panic while processing scan message",
				"job_id", msg.JobID.String(),
				"object", msg.Ref.String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic recovered")
			outcome = scanning.FailedOutcome(scanning.ReasonFetchError)
		}
	}()

	outcome, findings := p.scan(ctx, msg)

	// Retryable failures are not persisted: the status row stays pending and
	// the poller requeues the delivery.
	if outcome.Requeueable() {
		span.SetStatus(codes.Error, string(outcome.Reason))
		return outcome
	}

	if err := p.writer.Write(ctx, msg, outcome, findings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return scanning.FailedOutcome(scanning.ReasonPersistError)
	}

	if outcome.State == scanning.ScanStateScanned {
		p.metrics.ObserveFindings(ctx, outcome.FindingCount)
	}
	span.SetStatus(codes.Ok, string(outcome.State))
	return outcome
}

// scan fetches and scans the message's object, classifying every error into
// an outcome. The returned findings are non-empty only for scanned outcomes.
func (p *BatchProcessor) scan(ctx context.Context, msg scanning.ScanMessage) (scanning.Outcome, []scanning.Finding) {
	data, err := p.fetcher.Fetch(ctx, msg.Ref)
	if err != nil {
		return classifyFetchError(ctx, err), nil
	}

	raw := p.detector.Detect(string(data))
	findings := make([]scanning.Finding, 0, len(raw))
	for _, r := range raw {
		findings = append(findings, scanning.NewFinding(msg.JobID, msg.Ref, r))
	}

	if ctx.Err() != nil {
		return scanning.FailedOutcome(scanning.ReasonTimeout), nil
	}
	return scanning.ScannedOutcome(len(findings)), findings
}

// classifyFetchError maps fetch failures onto outcome states: filter
// rejections are skips, a missing object and unexpected store faults are
// terminal failures, and deadline expiry is a retryable timeout.
func classifyFetchError(ctx context.Context, err error) scanning.Outcome {
	switch {
	case errors.Is(err, scanning.ErrUnsupportedType):
		return scanning.SkippedOutcome(scanning.ReasonUnsupportedType)
	case errors.Is(err, scanning.ErrObjectTooLarge):
		return scanning.SkippedOutcome(scanning.ReasonTooLarge)
	case errors.Is(err, scanning.ErrObjectNotFound):
		return scanning.FailedOutcome(scanning.ReasonNotFound)
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return scanning.FailedOutcome(scanning.ReasonTimeout)
	default:
		return scanning.FailedOutcome(scanning.ReasonFetchError)
	}
}
