package acceptor

import (
	"fmt"
	"time"

	"github.com/virtinfra/guest-acceptor/runner"
	"github.com/virtinfra/guest-acceptor/types"
)

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing a case outcome
func getResultString(cr *runner.CaseResult) string {
	if cr.Skipped {
		return "- skip"
	}
	return getStateString(cr.State)
}

// getStateString returns a colored string representing an aggregate state
func getStateString(state types.TestState) string {
	switch state {
	case types.TestStateCompleted:
		return "✓ pass"
	case types.TestStateAborted:
		return "! abort"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
