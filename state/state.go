// Package state persists the lifecycle state of a test-case run where an
// external supervisor can poll it. The store owns a single well-known file
// whose sole content is one state token.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/virtinfra/guest-acceptor/types"
)

// FileName is the well-known state file name inside a case's run directory
const FileName = "state.txt"

// ErrNoState indicates no state has been recorded yet
var ErrNoState = errors.New("no state recorded")

// ErrTerminalState indicates a write was rejected because the recorded
// state is already terminal
var ErrTerminalState = errors.New("state is terminal")

// Store persists a single TestState token as the sole content of a file.
// Exactly one run owns a store location at a time, so the only locking is
// against concurrent use of the same Store value.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store rooted in dir, using the well-known file name
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// NewAtPath creates a store at an explicit file path
func NewAtPath(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Write records st as the sole content of the state file, replacing any
// prior content. Once a terminal state is recorded, further transitions are
// rejected with ErrTerminalState; rewriting the same terminal state is a
// no-op so retried persistence stays safe.
func (s *Store) Write(st types.TestState) error {
	if _, err := types.ParseTestState(st.String()); err != nil {
		return fmt.Errorf("refusing to persist: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read()
	if err != nil && !errors.Is(err, ErrNoState) {
		return err
	}
	if err == nil && cur.Terminal() {
		if cur == st {
			return nil
		}
		return fmt.Errorf("%w: cannot move from %s to %s", ErrTerminalState, cur, st)
	}

	// Write-then-rename so the supervisor never observes a partial token.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(st.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Read returns the recorded state. A missing file returns ErrNoState rather
// than an invented default; unrecognized content is an error naming the
// content. Reading never mutates the store.
func (s *Store) Read() (types.TestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (types.TestState, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoState
	}
	if err != nil {
		return "", fmt.Errorf("reading state file %s: %w", s.path, err)
	}
	return types.ParseTestState(strings.TrimSpace(string(b)))
}
