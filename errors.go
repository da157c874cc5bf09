package acceptor

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, file not found, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// PersistenceError represents a failure to write case state files (exit code 1).
// Consumers read outcomes from the state files, never from the exit status,
// so a run that cannot record its states is the one per-run fault worth a
// dedicated code.
type PersistenceError struct {
	Message string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state persistence failure: %s", e.Message)
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(message string) *PersistenceError {
	return &PersistenceError{Message: message}
}

// IsPersistenceError checks if the error is or wraps a PersistenceError
func IsPersistenceError(err error) bool {
	var persistErr *PersistenceError
	return err != nil && errors.As(err, &persistErr)
}
