package types

import (
	"errors"
	"fmt"
)

// The error taxonomy maps every failure to exactly one terminal state:
// ConfigurationError and InfrastructureError mean the test intent could not
// be exercised (Aborted); AssertionFailure and TimeoutError mean it was
// exercised and falsified (Failed).

// ConfigurationError represents missing or malformed required input.
// No remote side effects may be attempted once one is raised.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(err error) *ConfigurationError {
	return &ConfigurationError{Err: err}
}

// IsConfigurationError checks if the error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var confErr *ConfigurationError
	return err != nil && errors.As(err, &confErr)
}

// InfrastructureError represents an environment fault: a connection or
// authentication failure, a dependency install failure, a build failure.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// NewInfrastructureError creates a new InfrastructureError
func NewInfrastructureError(err error) *InfrastructureError {
	return &InfrastructureError{Err: err}
}

// IsInfrastructureError checks if the error is or wraps an InfrastructureError
func IsInfrastructureError(err error) bool {
	var infraErr *InfrastructureError
	return err != nil && errors.As(err, &infraErr)
}

// AssertionFailure represents a check whose pass condition was not met
type AssertionFailure struct {
	Message string
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("assertion failure: %s", e.Message)
}

// NewAssertionFailure creates a new AssertionFailure
func NewAssertionFailure(message string) *AssertionFailure {
	return &AssertionFailure{Message: message}
}

// IsAssertionFailure checks if the error is or wraps an AssertionFailure
func IsAssertionFailure(err error) bool {
	var assertErr *AssertionFailure
	return err != nil && errors.As(err, &assertErr)
}

// TimeoutError represents a bounded wait that exceeded its retry budget.
// LastObserved carries the final value seen before giving up so the detail
// string explains what the wait was still seeing.
type TimeoutError struct {
	What         string
	LastObserved string
}

func (e *TimeoutError) Error() string {
	if e.LastObserved == "" {
		return fmt.Sprintf("timed out waiting for %s", e.What)
	}
	return fmt.Sprintf("timed out waiting for %s; last observed: %s", e.What, e.LastObserved)
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(what, lastObserved string) *TimeoutError {
	return &TimeoutError{What: what, LastObserved: lastObserved}
}

// IsTimeoutError checks if the error is or wraps a TimeoutError
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return err != nil && errors.As(err, &timeoutErr)
}

// StateForError classifies an error into the terminal state it implies.
// Unknown errors are treated as infrastructure faults: the conservative
// reading is that the test intent was never exercised.
func StateForError(err error) TestState {
	switch {
	case IsAssertionFailure(err), IsTimeoutError(err):
		return TestStateFailed
	default:
		return TestStateAborted
	}
}
