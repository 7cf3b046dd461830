package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanState represents the lifecycle state of a single object within a job.
// Rows are append-once-then-terminal: pending may move to any terminal state,
// and terminal states never change.
type ScanState string

const (
	// ScanStatePending indicates the object is known but not yet processed.
	ScanStatePending ScanState = "pending"

	// ScanStateScanned indicates the object was fetched and scanned.
	ScanStateScanned ScanState = "scanned"

	// ScanStateSkipped indicates the object was rejected by the eligibility
	// filter (unsupported type or oversized) and was not downloaded.
	ScanStateSkipped ScanState = "skipped"

	// ScanStateFailed indicates the object could not be processed.
	ScanStateFailed ScanState = "failed"
)

// String returns the string representation of the ScanState.
func (s ScanState) String() string { return string(s) }

// IsTerminal reports whether the state admits no further transitions.
func (s ScanState) IsTerminal() bool {
	return s == ScanStateScanned || s == ScanStateSkipped || s == ScanStateFailed
}

// ValidateTransition checks that moving to target respects the
// append-once-then-terminal invariant.
func (s ScanState) ValidateTransition(target ScanState) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan state transition from %s to %s", s, target)
	}
	return nil
}

func (s ScanState) isValidTransition(target ScanState) bool {
	switch s {
	case ScanStatePending:
		return target.IsTerminal()
	case ScanStateScanned, ScanStateSkipped, ScanStateFailed:
		// Re-applying the identical terminal state is permitted so that
		// at-least-once queue redelivery stays idempotent.
		return target == s
	default:
		return false
	}
}

// ParseScanState converts a string to a ScanState.
func ParseScanState(s string) (ScanState, error) {
	switch ScanState(s) {
	case ScanStatePending, ScanStateScanned, ScanStateSkipped, ScanStateFailed:
		return ScanState(s), nil
	default:
		return "", fmt.Errorf("unknown scan state: %q", s)
	}
}

// ObjectScanStatus is the authoritative per-object record for a job. It is
// mutated only by the result writer, via upsert.
type ObjectScanStatus struct {
	JobID        uuid.UUID
	Ref          ObjectRef
	State        ScanState
	FindingCount int
	ErrorReason  string
	UpdatedAt    time.Time
}
