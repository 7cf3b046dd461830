package scanning

import (
	"time"

	"github.com/google/uuid"
)

// JobProgress is the materialized per-job aggregate over ObjectScanStatus
// rows. It is owned exclusively by the progress refresher, which recomputes
// and replaces it wholesale; the scan path never mutates it.
type JobProgress struct {
	JobID           uuid.UUID
	TotalObjects    int
	ScannedCount    int
	SkippedCount    int
	FailedCount     int
	FindingTotal    int
	LastRefreshedAt time.Time
}

// TerminalCount returns the number of objects that reached a terminal state.
func (p JobProgress) TerminalCount() int {
	return p.ScannedCount + p.SkippedCount + p.FailedCount
}

// IsComplete reports whether every object in the job reached a terminal
// state. Always false for an empty job.
func (p JobProgress) IsComplete() bool {
	return p.TotalObjects > 0 && p.TerminalCount() == p.TotalObjects
}

// CompletionPercentage calculates the percentage of objects in a terminal
// state.
func (p JobProgress) CompletionPercentage() float64 {
	if p.TotalObjects == 0 {
		return 0
	}
	return float64(p.TerminalCount()) / float64(p.TotalObjects) * 100
}
