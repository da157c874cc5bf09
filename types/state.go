package types

import "fmt"

// TestState represents the lifecycle state of a test-case run. The string
// value is the exact token persisted to the state file and read back by the
// polling supervisor, so it must never change.
type TestState string

const (
	TestStateRunning   TestState = "TestRunning"
	TestStateCompleted TestState = "TestCompleted"
	TestStateFailed    TestState = "TestFailed"
	TestStateAborted   TestState = "TestAborted"
)

// String returns the wire token for the state
func (s TestState) String() string {
	return string(s)
}

// Terminal reports whether the state allows no further transition
func (s TestState) Terminal() bool {
	switch s {
	case TestStateCompleted, TestStateFailed, TestStateAborted:
		return true
	default:
		return false
	}
}

// ParseTestState maps a persisted token back to a TestState.
// Unknown tokens are rejected so a corrupted state file is never
// misreported as a real outcome.
func ParseTestState(raw string) (TestState, error) {
	switch s := TestState(raw); s {
	case TestStateRunning, TestStateCompleted, TestStateFailed, TestStateAborted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown test state %q", raw)
	}
}
