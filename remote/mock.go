package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Call records one Execute invocation against a ScriptedExecutor
type Call struct {
	Target  string
	Command string
	Timeout time.Duration
}

type scriptRule struct {
	target string
	substr string
	result CommandResult
	err    error
}

// ScriptedExecutor is a test double: it replays canned results matched by
// command substring and records every call so tests can assert exactly how
// many remote invocations happened.
type ScriptedExecutor struct {
	mu    sync.Mutex
	rules []scriptRule
	calls []Call
	files map[string][]byte
}

// NewScriptedExecutor returns an executor whose unmatched commands succeed
// with exit 0 and empty output
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{files: make(map[string][]byte)}
}

// On registers a canned result for any command containing substr
func (m *ScriptedExecutor) On(substr string, result CommandResult) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, scriptRule{substr: substr, result: result})
	return m
}

// OnTarget registers a canned result for commands on one target only
func (m *ScriptedExecutor) OnTarget(target, substr string, result CommandResult) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, scriptRule{target: target, substr: substr, result: result})
	return m
}

// OnError registers a transport error for any command containing substr
func (m *ScriptedExecutor) OnError(substr string, err error) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, scriptRule{substr: substr, err: err})
	return m
}

// StoreFile seeds content served by Fetch
func (m *ScriptedExecutor) StoreFile(target, remotePath string, data []byte) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[target+":"+remotePath] = data
	return m
}

// Execute implements Executor
func (m *ScriptedExecutor) Execute(_ context.Context, target, command string, timeout time.Duration) (CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Target: target, Command: command, Timeout: timeout})
	for _, r := range m.rules {
		if r.target != "" && r.target != target {
			continue
		}
		if strings.Contains(command, r.substr) {
			return r.result, r.err
		}
	}
	return CommandResult{}, nil
}

// Push implements Executor
func (m *ScriptedExecutor) Push(_ context.Context, target, remotePath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[target+":"+remotePath] = append([]byte(nil), data...)
	return nil
}

// Fetch implements Executor
func (m *ScriptedExecutor) Fetch(_ context.Context, target, remotePath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.files[target+":"+remotePath]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("fetch %s from %s: no such file", remotePath, target)
}

// Close implements Executor
func (m *ScriptedExecutor) Close() error {
	return nil
}

// Calls returns every recorded Execute invocation
func (m *ScriptedExecutor) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns the number of Execute invocations
func (m *ScriptedExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Pushed returns content previously written via Push
func (m *ScriptedExecutor) Pushed(target, remotePath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[target+":"+remotePath]
	return data, ok
}
