package scanning

// FailureReason classifies why a message ended in a skipped or failed
// outcome. Reasons are stored on the status row, making them queryable
// rather than log-only.
type FailureReason string

const (
	ReasonNone            FailureReason = ""
	ReasonNotFound        FailureReason = "not_found"
	ReasonTooLarge        FailureReason = "too_large"
	ReasonUnsupportedType FailureReason = "unsupported_type"
	ReasonFetchError      FailureReason = "fetch_error"
	ReasonTimeout         FailureReason = "timeout"
	ReasonPersistError    FailureReason = "persist_error"
)

// String returns the string representation of the FailureReason.
func (r FailureReason) String() string { return string(r) }

// Retryable reports whether a failure with this reason should be requeued
// with a visibility delay rather than acknowledged. Only timeouts and
// persistence failures are retryable at the message level; everything else
// is recorded as terminal and acknowledged.
func (r FailureReason) Retryable() bool {
	return r == ReasonTimeout || r == ReasonPersistError
}

// Outcome is the terminal result of processing one scan message. Exactly one
// outcome is produced per message in a batch; errors never cross the batch
// boundary as raw faults.
type Outcome struct {
	State        ScanState
	FindingCount int
	Reason       FailureReason
}

// ScannedOutcome reports a successful scan with the given finding count.
func ScannedOutcome(findingCount int) Outcome {
	return Outcome{State: ScanStateScanned, FindingCount: findingCount}
}

// SkippedOutcome reports an object rejected by the eligibility filter.
func SkippedOutcome(reason FailureReason) Outcome {
	return Outcome{State: ScanStateSkipped, Reason: reason}
}

// FailedOutcome reports an object that could not be processed.
func FailedOutcome(reason FailureReason) Outcome {
	return Outcome{State: ScanStateFailed, Reason: reason}
}

// Requeueable reports whether the poller should requeue the message instead
// of acknowledging it.
func (o Outcome) Requeueable() bool {
	return o.State == ScanStateFailed && o.Reason.Retryable()
}

// MessageOutcome pairs a processed message with its outcome.
type MessageOutcome struct {
	Message ScanMessage
	Outcome Outcome
}
