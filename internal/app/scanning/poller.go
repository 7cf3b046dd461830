package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

const (
	// DefaultBatchSize is the maximum number of messages requested per poll.
	DefaultBatchSize = 40

	// DefaultReceiveWait is the long-poll duration for a single receive call.
	DefaultReceiveWait = 20 * time.Second

	// DefaultRequeueDelay is the visibility delay applied when a retryable
	// failure is requeued.
	DefaultRequeueDelay = 30 * time.Second

	// DefaultMaxReceiveCount bounds delivery attempts per message. A
	// retryable failure on the final attempt is recorded as a permanent
	// failure instead of being requeued again.
	DefaultMaxReceiveCount = 3

	// Receive calls against an empty or erroring queue are throttled to this
	// rate so the loop never spins.
	pollRPS   = 2
	pollBurst = 2
)

// QueuePollerConfig carries the poller's tunables. Zero values fall back to
// the defaults.
type QueuePollerConfig struct {
	BatchSize       int
	ReceiveWait     time.Duration
	RequeueDelay    time.Duration
	MaxReceiveCount int
}

func (c QueuePollerConfig) withDefaults() QueuePollerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = DefaultReceiveWait
	}
	if c.RequeueDelay <= 0 {
		c.RequeueDelay = DefaultRequeueDelay
	}
	if c.MaxReceiveCount <= 0 {
		c.MaxReceiveCount = DefaultMaxReceiveCount
	}
	return c
}

// QueuePoller is the worker's consumption loop: receive a batch, hand it to
// the processor, then settle every delivery exactly once. Terminal outcomes
// are acknowledged; retryable failures are requeued with a visibility delay
// until the receive count runs out, at which point a permanent failure is
// recorded and the message is acknowledged anyway.
type QueuePoller struct {
	queue     scanning.Queue
	processor *BatchProcessor
	writer    *ResultWriter
	cfg       QueuePollerConfig

	pollLimiter *common.RateLimiter

	metrics WorkerMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewQueuePoller creates a QueuePoller.
func NewQueuePoller(
	queue scanning.Queue,
	processor *BatchProcessor,
	writer *ResultWriter,
	cfg QueuePollerConfig,
	metrics WorkerMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *QueuePoller {
	return &QueuePoller{
		queue:       queue,
		processor:   processor,
		writer:      writer,
		cfg:         cfg.withDefaults(),
		pollLimiter: common.NewRateLimiter(pollRPS, pollBurst),
		metrics:     metrics,
		tracer:      tracer,
		logger:      logger,
	}
}

// Run polls until ctx is canceled. It returns ctx.Err() on shutdown; receive
// failures are logged and throttled, never fatal.
func (p *QueuePoller) Run(ctx context.Context) error {
	p.logger.Info(ctx, "queue poller started",
		"batch_size", p.cfg.BatchSize,
		"receive_wait", p.cfg.ReceiveWait.String(),
		"max_receive_count", p.cfg.MaxReceiveCount,
	)

	for {
		if err := p.pollLimiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		msgs, err := p.queue.Receive(ctx, p.cfg.BatchSize, p.cfg.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.metrics.IncPollErrors(ctx)
			p.logger.Error(ctx, "queue receive failed", "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		p.metrics.IncMessagesReceived(ctx, len(msgs))
		p.handleBatch(ctx, msgs)
	}
}

func (p *QueuePoller) handleBatch(ctx context.Context, msgs []scanning.ScanMessage) {
	ctx, span := p.tracer.Start(ctx, "queue_poller.handle_batch",
		trace.WithAttributes(attribute.Int("batch_size", len(msgs))))
	defer span.End()

	for _, result := range p.processor.ProcessBatch(ctx, msgs) {
		p.settle(ctx, result)
	}
	span.SetStatus(codes.Ok, "batch settled")
}

// settle consumes the delivery's receipt token exactly once. Settlement
// failures are logged and left alone: the visibility timeout will redeliver
// the message and the idempotent result writer absorbs the duplicate.
func (p *QueuePoller) settle(ctx context.Context, result scanning.MessageOutcome) {
	msg, outcome := result.Message, result.Outcome

	if outcome.Requeueable() {
		if msg.ReceiveCount < p.cfg.MaxReceiveCount {
			if err := p.queue.Requeue(ctx, msg.ReceiptToken, p.cfg.RequeueDelay); err != nil {
				p.logger.Error(ctx, "requeue failed",
					"job_id", msg.JobID.String(),
					"object", msg.Ref.String(),
					"error", err,
				)
				return
			}
			p.metrics.IncMessagesRequeued(ctx)
			p.logger.Warn(ctx, "message requeued",
				"job_id", msg.JobID.String(),
				"object", msg.Ref.String(),
				"reason", outcome.Reason.String(),
				"receive_count", msg.ReceiveCount,
			)
			return
		}

		// Retries exhausted: make the failure durable before acking so the
		// object is not silently lost.
		if err := p.writer.Write(ctx, msg, outcome, nil); err != nil {
			p.logger.Error(ctx, "failed to record exhausted message; leaving for redelivery",
				"job_id", msg.JobID.String(),
				"object", msg.Ref.String(),
				"error", err,
			)
			return
		}
		p.logger.Warn(ctx, "message retries exhausted; recorded permanent failure",
			"job_id", msg.JobID.String(),
			"object", msg.Ref.String(),
			"reason", outcome.Reason.String(),
			"receive_count", msg.ReceiveCount,
		)
	}

	if err := p.queue.Delete(ctx, msg.ReceiptToken); err != nil {
		p.logger.Error(ctx, "message ack failed",
			"job_id", msg.JobID.String(),
			"object", msg.Ref.String(),
			"error", err,
		)
	}
}
