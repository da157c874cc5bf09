package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/registry"
	"github.com/virtinfra/guest-acceptor/remote"
	"github.com/virtinfra/guest-acceptor/state"
	"github.com/virtinfra/guest-acceptor/types"
)

const testRunbook = `
targets:
  - name: alpha
    address: 10.0.0.10
    user: root
    password: secret
  - name: beta
    address: 10.0.0.11
    user: root
    password: secret

suites:
  - id: net
    description: network checks
    cases:
      - name: ping-check
        test: demo
        targets:
          client: alpha
          server: beta
        params:
          nic: eth1
`

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newRegistryForTest(t *testing.T, runbook string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runbook), 0o644))

	reg, err := registry.NewRegistry(registry.Config{
		RunbookFile:    path,
		DefaultTimeout: time.Minute,
	})
	require.NoError(t, err)
	return reg
}

func newRunnerForTest(t *testing.T, runbook string, catalog Catalog, exec remote.Executor) TestRunner {
	t.Helper()
	r, err := NewTestRunner(Config{
		Registry:     newRegistryForTest(t, runbook),
		Catalog:      catalog,
		Executor:     exec,
		ArtifactsDir: t.TempDir(),
		Log:          testLogger(),
	})
	require.NoError(t, err)
	return r
}

// runOneCase runs the first case of the first suite and returns its result
func runOneCase(t *testing.T, runbook string, catalog Catalog, exec remote.Executor) *CaseResult {
	t.Helper()
	res, err := newRunnerForTest(t, runbook, catalog, exec).RunAllTests(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Suites, 1)
	require.NotEmpty(t, res.Suites[0].Cases)
	return res.Suites[0].Cases[0]
}

func persistedState(t *testing.T, cr *CaseResult) types.TestState {
	t.Helper()
	st, err := state.NewAtPath(cr.StateFile).Read()
	require.NoError(t, err)
	return st
}

func TestNewTestRunnerValidatesConfig(t *testing.T) {
	reg := newRegistryForTest(t, testRunbook)
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{"demo": {Test: "demo"}}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing registry",
			cfg:     Config{Catalog: catalog, Executor: exec, ArtifactsDir: t.TempDir()},
			wantErr: "registry is required",
		},
		{
			name:    "missing catalog",
			cfg:     Config{Registry: reg, Executor: exec, ArtifactsDir: t.TempDir()},
			wantErr: "catalog is required",
		},
		{
			name:    "missing executor",
			cfg:     Config{Registry: reg, Catalog: catalog, ArtifactsDir: t.TempDir()},
			wantErr: "executor is required",
		},
		{
			name:    "missing artifacts directory",
			cfg:     Config{Registry: reg, Catalog: catalog, Executor: exec},
			wantErr: "artifacts directory is required",
		},
		{
			name: "unknown target suite",
			cfg: Config{
				Registry: reg, Catalog: catalog, Executor: exec,
				ArtifactsDir: t.TempDir(), TargetSuite: "storage",
			},
			wantErr: "not found in runbook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTestRunner(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunCaseMissingParamAbortsWithoutRemoteCalls(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	builderCalled := false
	catalog := Catalog{
		"demo": {
			Test:           "demo",
			RequiredParams: []string{"nic", "serverPingIP"},
			Roles:          []string{"client"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				builderCalled = true
				return &TestCase{}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Equal(t, types.TestStateAborted, persistedState(t, cr))
	assert.Contains(t, cr.Error, "serverPingIP")
	assert.Zero(t, exec.CallCount(), "validation failures must not touch the targets")
	assert.False(t, builderCalled)
}

func TestRunCaseUnknownTestAborts(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{"other": {Test: "other"}}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Contains(t, cr.Error, `unknown test "demo"`)
	assert.Zero(t, exec.CallCount())
}

func TestRunCaseUnboundRoleAborts(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test:  "demo",
			Roles: []string{"client", "forwarder"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Contains(t, cr.Error, `role "forwarder"`)
	assert.Zero(t, exec.CallCount())
}

func TestRunCaseBuilderErrorAborts(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test: "demo",
			Build: func(cc *CaseContext) (*TestCase, error) {
				return nil, errors.New("nic name is empty")
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Equal(t, types.TestStateAborted, persistedState(t, cr))
	assert.Contains(t, cr.Error, "nic name is empty")
	assert.Zero(t, exec.CallCount())
}

func TestRunCaseSetupFailureAborts(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	exec.On("modprobe", remote.CommandResult{ExitCode: 1, Stderr: "module pktgen not found"})

	checkRan := false
	catalog := Catalog{
		"demo": {
			Test:  "demo",
			Roles: []string{"client"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{
					Setup: []SetupStep{
						{Name: "load module", Role: "client", Command: "modprobe pktgen"},
						{Name: "never reached", Role: "client", Command: "true"},
					},
					Checks: []checks.Check{
						{Name: "noop", Fn: func(ctx context.Context) (bool, string, error) {
							checkRan = true
							return true, "", nil
						}},
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Equal(t, types.TestStateAborted, persistedState(t, cr))
	assert.Contains(t, cr.Error, "exited 1")
	assert.Contains(t, cr.Error, "module pktgen not found")
	assert.Equal(t, 1, exec.CallCount(), "setup stops at the first failing step")
	assert.False(t, checkRan, "checks must not run after a failed setup")
}

func TestRunCaseSetupAllowsExpectedNonZeroExit(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	exec.On("grep", remote.CommandResult{ExitCode: 1})

	catalog := Catalog{
		"demo": {
			Test:  "demo",
			Roles: []string{"client"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{
					Setup: []SetupStep{
						{Name: "probe", Role: "client", Command: "grep -q xdp /proc/kallsyms", AllowNonZero: true},
					},
					Checks: []checks.Check{
						{Name: "noop", Fn: func(ctx context.Context) (bool, string, error) {
							return true, "ok", nil
						}},
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateCompleted, cr.State)
	assert.Equal(t, types.TestStateCompleted, persistedState(t, cr))
}

func TestRunCaseCompletedLifecycle(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	exec.StoreFile("alpha", "/tmp/ping.log", []byte("64 bytes from 10.0.1.2\n"))

	var stateDuringCheck types.TestState
	catalog := Catalog{
		"demo": {
			Test:           "demo",
			RequiredParams: []string{"nic"},
			Roles:          []string{"client", "server"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				dir := cc.ArtifactDir
				return &TestCase{
					Setup: []SetupStep{
						{Name: "client nic up", Role: "client", Command: "ip link set eth1 up", Parallel: true},
						{Name: "server nic up", Role: "server", Command: "ip link set eth1 up", Parallel: true},
						{Name: "route", Role: "client", Command: "ip route replace 10.0.1.0/24 dev eth1"},
					},
					Checks: []checks.Check{
						{Name: "running state visible", Fn: func(ctx context.Context) (bool, string, error) {
							st, err := state.New(dir).Read()
							if err != nil {
								return false, "", err
							}
							stateDuringCheck = st
							return true, "", nil
						}},
						{Name: "reachable", Fn: func(ctx context.Context) (bool, string, error) {
							return true, "0% packet loss", nil
						}},
					},
					Collect: []RemoteFile{
						{Role: "client", RemotePath: "/tmp/ping.log"},
					},
					Teardown: []SetupStep{
						{Name: "nic down", Role: "client", Command: "ip link set eth1 down"},
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateCompleted, cr.State)
	assert.Equal(t, types.TestStateCompleted, persistedState(t, cr))
	assert.Empty(t, cr.Error)
	assert.NoError(t, cr.PersistErr)
	assert.Len(t, cr.Checks, 2)

	// Setup ran before the checks and the state file already said running
	assert.Equal(t, types.TestStateRunning, stateDuringCheck)

	// Both parallel steps and the serial step executed, plus teardown
	var commands []string
	for _, call := range exec.Calls() {
		commands = append(commands, call.Command)
	}
	assert.Len(t, commands, 4)
	assert.Contains(t, commands, "ip link set eth1 down", "teardown runs after a completed case")

	// Collected artifact landed in the case directory
	data, err := os.ReadFile(filepath.Join(cr.ArtifactDir, "ping.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "64 bytes from")

	// Transcript and summary were written alongside the state file
	transcript, err := os.ReadFile(filepath.Join(cr.ArtifactDir, TranscriptFileName))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "+ [alpha] ip link set eth1 up")

	summary, err := os.ReadFile(filepath.Join(cr.ArtifactDir, SummaryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "TestCompleted")
}

func TestRunCaseFailingCheckSkipsTeardown(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test:  "demo",
			Roles: []string{"client"},
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{
					Checks: []checks.Check{
						{Name: "reachable", Fn: func(ctx context.Context) (bool, string, error) {
							return false, "ping to 10.0.1.2 was not successful", nil
						}},
						{Name: "never reached", Fn: func(ctx context.Context) (bool, string, error) {
							return true, "", nil
						}},
					},
					Teardown: []SetupStep{
						{Name: "cleanup", Role: "client", Command: "ip link set eth1 down"},
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateFailed, cr.State)
	assert.Equal(t, types.TestStateFailed, persistedState(t, cr))
	assert.Contains(t, cr.Error, "not successful")
	require.Len(t, cr.Checks, 1, "checks stop at the first failure")

	for _, call := range exec.Calls() {
		assert.NotEqual(t, "ip link set eth1 down", call.Command,
			"failed cases leave targets untouched for diagnosis")
	}
}

func TestRunCasePanicInBuilderRecovered(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test: "demo",
			Build: func(cc *CaseContext) (*TestCase, error) {
				panic("builder exploded")
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Equal(t, types.TestStateAborted, persistedState(t, cr))
	assert.Contains(t, cr.Error, "builder exploded")
}

func TestRunCaseDisabledSkips(t *testing.T) {
	runbook := strings.Replace(testRunbook, "params:", "disabled: true\n        params:", 1)
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test: "demo",
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{}, nil
			},
		},
	}

	cr := runOneCase(t, runbook, catalog, exec)

	assert.True(t, cr.Skipped)
	assert.Equal(t, "disabled in runbook", cr.SkipReason)
	assert.Empty(t, cr.StateFile, "skipped cases leave no state behind")
	assert.Zero(t, exec.CallCount())
}

func TestRunCaseGateRefusalSkips(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test: "demo",
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{
					Gate: func(ctx context.Context) (bool, string, error) {
						return false, "kernel 4.19 is older than 5.4", nil
					},
					Checks: []checks.Check{
						{Name: "never reached", Fn: func(ctx context.Context) (bool, string, error) {
							return true, "", nil
						}},
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.True(t, cr.Skipped)
	assert.Contains(t, cr.SkipReason, "kernel 4.19")
	_, err := os.Stat(cr.StateFile)
	assert.True(t, os.IsNotExist(err), "gated cases record no state")
	assert.Empty(t, cr.Checks)
}

func TestRunCaseGateErrorAborts(t *testing.T) {
	exec := remote.NewScriptedExecutor()
	catalog := Catalog{
		"demo": {
			Test: "demo",
			Build: func(cc *CaseContext) (*TestCase, error) {
				return &TestCase{
					Gate: func(ctx context.Context) (bool, string, error) {
						return false, "", errors.New("uname: connection refused")
					},
				}, nil
			},
		},
	}

	cr := runOneCase(t, testRunbook, catalog, exec)

	assert.False(t, cr.Skipped)
	assert.Equal(t, types.TestStateAborted, cr.State)
	assert.Contains(t, cr.Error, "connection refused")
}

const twoSuiteRunbook = `
targets:
  - name: alpha
    address: 10.0.0.10
    user: root
    password: secret

suites:
  - id: net
    cases:
      - name: good-case
        test: pass
        targets:
          client: alpha
  - id: perf
    cases:
      - name: bad-case
        test: fail
        targets:
          client: alpha
`

func twoOutcomeCatalog() Catalog {
	passCase := func(cc *CaseContext) (*TestCase, error) {
		return &TestCase{
			Checks: []checks.Check{
				{Name: "ok", Fn: func(ctx context.Context) (bool, string, error) {
					return true, "", nil
				}},
			},
		}, nil
	}
	failCase := func(cc *CaseContext) (*TestCase, error) {
		return &TestCase{
			Checks: []checks.Check{
				{Name: "bad", Fn: func(ctx context.Context) (bool, string, error) {
					return false, "below threshold", nil
				}},
			},
		}, nil
	}
	return Catalog{
		"pass": {Test: "pass", Roles: []string{"client"}, Build: passCase},
		"fail": {Test: "fail", Roles: []string{"client"}, Build: failCase},
	}
}

func TestRunAllTestsAggregates(t *testing.T) {
	r := newRunnerForTest(t, twoSuiteRunbook, twoOutcomeCatalog(), remote.NewScriptedExecutor())

	res, err := r.RunAllTests(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Suites, 2)
	assert.Equal(t, types.TestStateCompleted, res.Suites[0].State)
	assert.Equal(t, types.TestStateFailed, res.Suites[1].State)
	assert.Equal(t, types.TestStateFailed, res.State, "one failed suite fails the run")

	assert.Equal(t, 2, res.Stats.Total)
	assert.Equal(t, 1, res.Stats.Completed)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Zero(t, res.Stats.Aborted)
	assert.Zero(t, res.PersistFailures())
	assert.Contains(t, res.String(), "1 failed")
}

func TestRunAllTestsTargetSuiteFilter(t *testing.T) {
	reg := newRegistryForTest(t, twoSuiteRunbook)
	r, err := NewTestRunner(Config{
		Registry:     reg,
		Catalog:      twoOutcomeCatalog(),
		Executor:     remote.NewScriptedExecutor(),
		ArtifactsDir: t.TempDir(),
		TargetSuite:  "net",
		Log:          testLogger(),
	})
	require.NoError(t, err)

	res, err := r.RunAllTests(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Suites, 1)
	assert.Equal(t, "net", res.Suites[0].ID)
	assert.Equal(t, types.TestStateCompleted, res.State)
}

func TestRunAllTestsAbortOutranksFailure(t *testing.T) {
	catalog := twoOutcomeCatalog()
	catalog["fail"] = Definition{
		Test:  "fail",
		Roles: []string{"client"},
		Build: func(cc *CaseContext) (*TestCase, error) {
			return nil, errors.New("broken builder")
		},
	}
	r := newRunnerForTest(t, twoSuiteRunbook, catalog, remote.NewScriptedExecutor())

	res, err := r.RunAllTests(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.TestStateAborted, res.State)
	assert.Equal(t, 1, res.Stats.Aborted)
	assert.Equal(t, 1, res.Stats.Completed)
}

func TestResultStatsRecordSkipped(t *testing.T) {
	var stats ResultStats
	stats.record(&CaseResult{Skipped: true})
	stats.record(&CaseResult{State: types.TestStateCompleted})

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Completed)

	sr := &SuiteResult{Cases: []*CaseResult{
		{Skipped: true},
		{State: types.TestStateCompleted},
	}}
	assert.Equal(t, types.TestStateCompleted, determineSuiteState(sr),
		"skipped cases carry no weight in the suite state")
}
