package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/remote"
	"github.com/virtinfra/guest-acceptor/types"
)

// Roles maps the role names a test declares (client, server, sender, ...)
// to target names from the runbook
type Roles map[string]string

// Target returns the target name bound to role
func (r Roles) Target(role string) string {
	return r[role]
}

// CaseContext carries everything a test definition binds its steps and
// checks to: the (transcript-wrapped) executor, the case params, the
// resolved role bindings, and the case artifact directory. Timeout is the
// runbook's per-case command timeout.
type CaseContext struct {
	Executor    remote.Executor
	Params      types.Params
	Roles       Roles
	Log         *zap.SugaredLogger
	ArtifactDir string
	Timeout     time.Duration
}

// SetupStep is one remote command run before the checks. An unexpected
// non-zero exit aborts the case; AllowNonZero covers commands like package
// installs whose non-zero exits are benign. Consecutive steps marked
// Parallel form a stage that runs concurrently and must fully succeed
// before the next step starts.
type SetupStep struct {
	Name         string
	Role         string
	Command      string
	Timeout      time.Duration
	AllowNonZero bool
	Parallel     bool
}

// RemoteFile names a file to collect from a target into the case artifact
// directory once the outcome is decided
type RemoteFile struct {
	Role       string
	RemotePath string
	LocalName  string
}

// TestCase is a built, runnable case: setup, pass criteria, and what to
// collect or tear down afterwards.
type TestCase struct {
	Name string

	// Gate decides whether the environment can exercise this case at all
	// (e.g. kernel too old for XDP). A false gate skips the case without
	// recording a state.
	Gate func(ctx context.Context) (ok bool, reason string, err error)

	Setup  []SetupStep
	Checks []checks.Check

	// Report runs after the checks regardless of outcome, for cases that
	// produce a perf artifact. Failures are logged, never fatal.
	Report func(ctx context.Context) error

	Collect []RemoteFile

	// Teardown runs only when the case completed; failed and aborted runs
	// leave remote resources intact for diagnosis.
	Teardown []SetupStep
}

// Builder constructs a runnable case from its context. Builders must not
// touch the remote targets; remote work belongs in setup steps and checks.
type Builder func(cc *CaseContext) (*TestCase, error)

// Definition describes a cataloged test: what configuration it needs and
// how to build it
type Definition struct {
	Test           string
	Description    string
	RequiredParams []string
	Roles          []string
	Build          Builder
}

// Catalog resolves runbook test ids to definitions
type Catalog map[string]Definition

// Lookup returns the definition for a test id
func (c Catalog) Lookup(test string) (Definition, bool) {
	def, ok := c[test]
	return def, ok
}
