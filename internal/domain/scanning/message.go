// Package scanning contains the domain model for the object scanning
// pipeline: scan messages delivered by the queue, findings produced by the
// detector engine, per-object scan status, and per-job progress aggregates.
package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectRef identifies a stored object by its container and key.
type ObjectRef struct {
	Bucket string
	Key    string
}

// String returns the canonical "bucket/key" form of the reference.
func (r ObjectRef) String() string { return fmt.Sprintf("%s/%s", r.Bucket, r.Key) }

// ScanMessage is a single scan-job message received from the queue. It is
// immutable once received; the receipt token is consumed exactly once per
// delivery, either by an acknowledgment or an explicit requeue.
type ScanMessage struct {
	JobID        uuid.UUID
	Ref          ObjectRef
	EnqueueTime  time.Time
	ReceiptToken string

	// ReceiveCount is the queue-reported delivery attempt count, used to
	// bound requeues of retryable failures.
	ReceiveCount int
}

// ObjectCandidate is a scan message enriched with the object's metadata so
// eligibility can be decided before downloading the body. It is derived and
// never persisted.
type ObjectCandidate struct {
	Ref       ObjectRef
	Extension string
	SizeBytes int64
}
