package remote

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Transcript wraps an Executor and appends every command with its captured
// output to a writer. The runner points one at a per-case commands.log so
// a failed run can be replayed by reading a single file.
type Transcript struct {
	next Executor

	mu sync.Mutex
	w  io.Writer
}

// NewTranscript decorates next, recording traffic to w
func NewTranscript(next Executor, w io.Writer) *Transcript {
	return &Transcript{next: next, w: w}
}

// Execute implements Executor
func (t *Transcript) Execute(ctx context.Context, target, command string, timeout time.Duration) (CommandResult, error) {
	res, err := t.next.Execute(ctx, target, command, timeout)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "+ [%s] %s\n", target, command)
	if res.Stdout != "" {
		fmt.Fprintln(t.w, res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintln(t.w, res.Stderr)
	}
	if err != nil {
		fmt.Fprintf(t.w, "error: %v\n", err)
	} else {
		fmt.Fprintf(t.w, "exit %d\n", res.ExitCode)
	}
	return res, err
}

// Push implements Executor
func (t *Transcript) Push(ctx context.Context, target, remotePath string, data []byte) error {
	err := t.next.Push(ctx, target, remotePath, data)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		fmt.Fprintf(t.w, "+ [%s] push %d bytes -> %s: error: %v\n", target, len(data), remotePath, err)
	} else {
		fmt.Fprintf(t.w, "+ [%s] push %d bytes -> %s\n", target, len(data), remotePath)
	}
	return err
}

// Fetch implements Executor
func (t *Transcript) Fetch(ctx context.Context, target, remotePath string) ([]byte, error) {
	data, err := t.next.Fetch(ctx, target, remotePath)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		fmt.Fprintf(t.w, "+ [%s] fetch %s: error: %v\n", target, remotePath, err)
	} else {
		fmt.Fprintf(t.w, "+ [%s] fetch %s (%d bytes)\n", target, remotePath, len(data))
	}
	return data, err
}

// Close implements Executor. The wrapped executor is shared across cases, so
// closing the transcript never closes it.
func (t *Transcript) Close() error {
	return nil
}
