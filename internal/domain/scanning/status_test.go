package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanState_ValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ScanState
		to      ScanState
		wantErr bool
	}{
		{name: "pending to scanned", from: ScanStatePending, to: ScanStateScanned},
		{name: "pending to skipped", from: ScanStatePending, to: ScanStateSkipped},
		{name: "pending to failed", from: ScanStatePending, to: ScanStateFailed},
		{name: "pending to pending", from: ScanStatePending, to: ScanStatePending, wantErr: true},
		{name: "scanned reapplied", from: ScanStateScanned, to: ScanStateScanned},
		{name: "scanned to failed", from: ScanStateScanned, to: ScanStateFailed, wantErr: true},
		{name: "failed to scanned", from: ScanStateFailed, to: ScanStateScanned, wantErr: true},
		{name: "skipped to pending", from: ScanStateSkipped, to: ScanStatePending, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseScanState(t *testing.T) {
	for _, s := range []ScanState{ScanStatePending, ScanStateScanned, ScanStateSkipped, ScanStateFailed} {
		got, err := ParseScanState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseScanState("SCANNED")
	assert.Error(t, err)
}

func TestScanState_IsTerminal(t *testing.T) {
	assert.False(t, ScanStatePending.IsTerminal())
	assert.True(t, ScanStateScanned.IsTerminal())
	assert.True(t, ScanStateSkipped.IsTerminal())
	assert.True(t, ScanStateFailed.IsTerminal())
}
