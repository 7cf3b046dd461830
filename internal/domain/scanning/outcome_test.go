package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_Constructors(t *testing.T) {
	scanned := ScannedOutcome(3)
	assert.Equal(t, ScanStateScanned, scanned.State)
	assert.Equal(t, 3, scanned.FindingCount)
	assert.Equal(t, ReasonNone, scanned.Reason)

	skipped := SkippedOutcome(ReasonTooLarge)
	assert.Equal(t, ScanStateSkipped, skipped.State)
	assert.Equal(t, ReasonTooLarge, skipped.Reason)

	failed := FailedOutcome(ReasonNotFound)
	assert.Equal(t, ScanStateFailed, failed.State)
	assert.Equal(t, ReasonNotFound, failed.Reason)
}

func TestOutcome_Requeueable(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    bool
	}{
		{name: "timeout failure requeues", outcome: FailedOutcome(ReasonTimeout), want: true},
		{name: "persist failure requeues", outcome: FailedOutcome(ReasonPersistError), want: true},
		{name: "not found is terminal", outcome: FailedOutcome(ReasonNotFound), want: false},
		{name: "fetch error is terminal", outcome: FailedOutcome(ReasonFetchError), want: false},
		{name: "skipped never requeues", outcome: SkippedOutcome(ReasonTooLarge), want: false},
		{name: "scanned never requeues", outcome: ScannedOutcome(1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.Requeueable())
		})
	}
}

func TestJobProgress_Completion(t *testing.T) {
	p := JobProgress{TotalObjects: 3, ScannedCount: 1, SkippedCount: 1, FailedCount: 1}
	assert.True(t, p.IsComplete())
	assert.Equal(t, 3, p.TerminalCount())
	assert.InEpsilon(t, 100.0, p.CompletionPercentage(), 0.0001)

	partial := JobProgress{TotalObjects: 4, ScannedCount: 1}
	assert.False(t, partial.IsComplete())
	assert.InEpsilon(t, 25.0, partial.CompletionPercentage(), 0.0001)

	empty := JobProgress{}
	assert.False(t, empty.IsComplete())
	assert.Equal(t, float64(0), empty.CompletionPercentage())
}

func TestTransientError(t *testing.T) {
	assert.Nil(t, Transient(nil))

	err := Transient(assert.AnError)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, IsTransient(assert.AnError))
}
