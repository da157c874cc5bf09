// Package remote executes commands on named guest targets over SSH and
// copies files to and from them. A non-zero remote exit status is part of a
// normal result, never a Go error; errors are reserved for transport faults
// (connect, auth, timeout) so callers can tell "the command said no" apart
// from "the command never ran".
package remote

import (
	"context"
	"time"
)

// CommandResult carries the captured output of a finished remote command
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs commands on named targets.
type Executor interface {
	// Execute runs command on the named target and blocks until it finishes
	// or timeout elapses. A timeout of zero uses the executor's default.
	Execute(ctx context.Context, target, command string, timeout time.Duration) (CommandResult, error)

	// Push writes data as the content of remotePath on the target
	Push(ctx context.Context, target, remotePath string, data []byte) error

	// Fetch returns the content of remotePath on the target
	Fetch(ctx context.Context, target, remotePath string) ([]byte, error)

	// Close releases any held connections
	Close() error
}
