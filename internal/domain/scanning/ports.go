package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue is the message-queue collaborator. Delivery is at-least-once;
// consumers must tolerate duplicates. Receipt tokens are per-delivery and
// consumed exactly once by Delete or Requeue.
type Queue interface {
	// Receive blocks for up to wait and returns up to max messages. An
	// empty slice with a nil error means the queue had nothing to deliver.
	Receive(ctx context.Context, max int, wait time.Duration) ([]ScanMessage, error)

	// Delete acknowledges a delivery, removing the message from the queue.
	Delete(ctx context.Context, receiptToken string) error

	// Requeue makes the delivery visible again after the given delay.
	Requeue(ctx context.Context, receiptToken string, delay time.Duration) error
}

// ObjectInfo is the metadata returned by a head probe.
type ObjectInfo struct {
	SizeBytes   int64
	ContentType string
}

// ObjectStore is the object-store collaborator. Head-then-get is assumed to
// be eventually, not immediately, consistent.
type ObjectStore interface {
	Head(ctx context.Context, ref ObjectRef) (ObjectInfo, error)
	Get(ctx context.Context, ref ObjectRef) ([]byte, error)
}

// StatusRepository persists the authoritative per-object scan state and its
// findings, and exposes the aggregate queries the progress refresher needs.
type StatusRepository interface {
	// RecordScan upserts the status row and inserts its findings inside a
	// single transaction: a state flip to scanned never becomes durable
	// without its findings, and vice versa. Safe to apply twice with
	// identical arguments (redelivery).
	RecordScan(ctx context.Context, status ObjectScanStatus, findings []Finding) error

	// ListActiveJobIDs returns the IDs of jobs with status activity at or
	// after the given time.
	ListActiveJobIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error)

	// AggregateJob recomputes the job's progress counters from the
	// source-of-truth status rows.
	AggregateJob(ctx context.Context, jobID uuid.UUID) (JobProgress, error)
}

// ProgressRepository owns the materialized JobProgress rows.
type ProgressRepository interface {
	// Upsert replaces the job's progress row wholesale. Replacement (not
	// increment) is what makes overlapping refresher runs safe.
	Upsert(ctx context.Context, progress JobProgress) error

	// Get returns the job's progress row, or ErrNoProgressFound.
	Get(ctx context.Context, jobID uuid.UUID) (JobProgress, error)
}
