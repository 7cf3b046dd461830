package scanning

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

const (
	writeInitialInterval = 100 * time.Millisecond
	writeMaxRetries      = 4
)

// ResultWriter persists scan outcomes through the status repository. Every
// write retries with exponential backoff; a write that exhausts its retries
// comes back as a scanning.PersistError so the caller can route the message
// through the requeue path instead of losing the result.
type ResultWriter struct {
	repo scanning.StatusRepository

	tracer trace.Tracer
	logger *logger.Logger
}

// NewResultWriter creates a ResultWriter over the given repository.
func NewResultWriter(repo scanning.StatusRepository, tracer trace.Tracer, logger *logger.Logger) *ResultWriter {
	return &ResultWriter{repo: repo, tracer: tracer, logger: logger}
}

// Write builds the status row for the message's outcome and persists it
// together with any findings. Status and findings commit in one repository
// transaction; findings are only passed for scanned outcomes.
func (w *ResultWriter) Write(ctx context.Context, msg scanning.ScanMessage, outcome scanning.Outcome, findings []scanning.Finding) error {
	ctx, span := w.tracer.Start(ctx, "result_writer.write",
		trace.WithAttributes(
			attribute.String("job_id", msg.JobID.String()),
			attribute.String("object", msg.Ref.String()),
			attribute.String("state", outcome.State.String()),
			attribute.Int("finding_count", outcome.FindingCount),
		))
	defer span.End()

	status := scanning.ObjectScanStatus{
		JobID:        msg.JobID,
		Ref:          msg.Ref,
		State:        outcome.State,
		FindingCount: outcome.FindingCount,
		ErrorReason:  outcome.Reason.String(),
		UpdatedAt:    time.Now().UTC(),
	}
	if outcome.State != scanning.ScanStateScanned {
		findings = nil
	}

	operation := func() error {
		if err := w.repo.RecordScan(ctx, status, findings); err != nil {
			w.logger.Warn(ctx, "result write attempt failed",
				"job_id", msg.JobID.String(),
				"object", msg.Ref.String(),
				"error", err,
			)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = writeInitialInterval

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, writeMaxRetries), ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write retries exhausted")
		return &scanning.PersistError{Err: err}
	}

	span.SetStatus(codes.Ok, "result persisted")
	return nil
}
