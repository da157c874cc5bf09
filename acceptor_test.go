package acceptor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/virtinfra/guest-acceptor/logging"
	"github.com/virtinfra/guest-acceptor/remote"
	"github.com/virtinfra/guest-acceptor/runner"
	"github.com/virtinfra/guest-acceptor/service"
	"github.com/virtinfra/guest-acceptor/types"
)

// trackedMockExecutor is a mock executor that counts executions and provides
// synchronization
type trackedMockExecutor struct {
	mock.Mock
	execCount atomic.Int32  // Count of RunTests executions
	execCh    chan struct{} // Channel for signaling on each execution
}

// newTrackedMockExecutor creates a new executor with execution tracking
func newTrackedMockExecutor() *trackedMockExecutor {
	return &trackedMockExecutor{
		execCh: make(chan struct{}, 100), // Buffer to prevent blocking
	}
}

// RunTests implements the TestExecutor interface
func (m *trackedMockExecutor) RunTests(ctx context.Context) (*runner.RunnerResult, error) {
	m.execCount.Add(1)
	args := m.Called()

	// Signal that an execution has happened
	select {
	case m.execCh <- struct{}{}:
	default:
		// Non-blocking send, just in case no one is listening
	}

	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.(*runner.RunnerResult), args.Error(1)
}

// waitForExecutions waits for a specific number of executions with timeout
func (m *trackedMockExecutor) waitForExecutions(ctx context.Context, count int32) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.execCount.Load() >= count {
			return true
		}

		select {
		case <-m.execCh:
			// An execution signal received, immediately recheck the count
			continue
		case <-ticker.C:
			continue
		case <-timeoutCtx.Done():
			return false
		}
	}
}

// setupTest creates a test service with a tracked mock executor
func setupTest(t *testing.T) (*trackedMockExecutor, *Service, context.Context, context.CancelFunc) {
	t.Helper()

	// Create a clean context for each test with a generous timeout to prevent hangs
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	mockExecutor := newTrackedMockExecutor()
	logger := logging.Discard()

	svc := &Service{
		ctx: ctx,
		config: &Config{
			Log:         logger,
			RunInterval: 25 * time.Millisecond, // Short interval for testing
		},
		version:   "test",
		remote:    remote.NewScriptedExecutor(),
		executor:  mockExecutor,
		scheduler: NewDefaultTestScheduler(25*time.Millisecond, false, logger),
		formatter: NewConsoleResultFormatter(logger),
		reporter:  NewDefaultMetricsReporter(),
		// Port 0 binds ephemeral ports so parallel test runs never collide
		servers: service.New("test", "0", "0"),
	}

	return mockExecutor, svc, ctx, cancel
}

// teardownTest ensures the service is fully stopped before test completion
func teardownTest(t *testing.T, svc *Service, cancel context.CancelFunc) {
	t.Helper()

	// Cancel context first to stop background activities
	cancel()

	// Then properly stop the service
	if !svc.Stopped() {
		err := svc.Stop(context.Background())
		assert.NoError(t, err, "Service should stop cleanly during teardown")
	}

	// Ensure all goroutines have terminated
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := svc.WaitForShutdown(ctx)
	if err != nil {
		t.Logf("Warning: Service did not shut down cleanly in teardown: %v", err)
	}
}

func completedResult() *runner.RunnerResult {
	return &runner.RunnerResult{
		RunID: "run-1",
		State: types.TestStateCompleted,
		Stats: runner.ResultStats{Total: 1, Completed: 1},
		Suites: []*runner.SuiteResult{{
			ID:    "net",
			State: types.TestStateCompleted,
			Cases: []*runner.CaseResult{{
				Name:  "ping-check",
				Suite: "net",
				State: types.TestStateCompleted,
			}},
			Stats: runner.ResultStats{Total: 1, Completed: 1},
		}},
	}
}

// TestAcceptor_Start_RunsTestsImmediately tests that the service runs tests
// immediately when started
func TestAcceptor_Start_RunsTestsImmediately(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockExecutor.On("RunTests").Return(completedResult(), nil)

	err := svc.Start(ctx)
	require.NoError(t, err)

	execCompleted := mockExecutor.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")

	assert.GreaterOrEqual(t, mockExecutor.execCount.Load(), int32(1))
}

// TestAcceptor_Start_RunsTestsPeriodically tests that the service runs tests
// periodically
func TestAcceptor_Start_RunsTestsPeriodically(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockExecutor.On("RunTests").Return(completedResult(), nil)

	err := svc.Start(ctx)
	require.NoError(t, err)

	// Wait for multiple executions (at least 3)
	execCompleted := mockExecutor.waitForExecutions(ctx, 3)
	require.True(t, execCompleted, "Multiple executions should have completed")

	callCount := mockExecutor.execCount.Load()
	assert.GreaterOrEqual(t, callCount, int32(3), "Executor should be called at least 3 times")
}

// TestAcceptor_Context_Cancellation tests that the service properly handles
// context cancellation
func TestAcceptor_Context_Cancellation(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockExecutor.On("RunTests").Return(completedResult(), nil)

	err := svc.Start(ctx)
	require.NoError(t, err)

	execCompleted := mockExecutor.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")

	execCountBeforeCancel := mockExecutor.execCount.Load()

	cancel()

	// Wait a moment for the cancellation to propagate
	time.Sleep(50 * time.Millisecond)

	assert.True(t, svc.Stopped(), "Service should be stopped after context cancellation")

	// Wait more time to ensure no more tests run after stopping
	time.Sleep(3 * svc.config.RunInterval)

	assert.Equal(t, execCountBeforeCancel, mockExecutor.execCount.Load(),
		"No additional test executions should occur after context cancellation")
}

// TestAcceptor_RunOnceMode tests that the service runs once and returns in
// run-once mode
func TestAcceptor_RunOnceMode(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer cancel()

	svc.config.RunOnce = true
	svc.scheduler = NewDefaultTestScheduler(0, true, svc.config.Log)

	mockExecutor.On("RunTests").Return(completedResult(), nil).Once()

	err := svc.Start(ctx)
	require.NoError(t, err)

	// Verify the executor was called exactly once and doesn't continue running
	time.Sleep(100 * time.Millisecond)
	mockExecutor.AssertNumberOfCalls(t, "RunTests", 1)

	require.NoError(t, svc.Stop(context.Background()))
}

// TestAcceptor_RunOnce_PersistenceFailure tests that a state file write
// failure surfaces as a PersistenceError from Start
func TestAcceptor_RunOnce_PersistenceFailure(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer cancel()

	svc.config.RunOnce = true
	svc.scheduler = NewDefaultTestScheduler(0, true, svc.config.Log)

	result := completedResult()
	result.Suites[0].Cases[0].PersistErr = errors.New("write state: permission denied")
	mockExecutor.On("RunTests").Return(result, nil).Once()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err), "expected a PersistenceError, got %v", err)
	assert.Contains(t, err.Error(), "state persistence failure")

	require.NoError(t, svc.Stop(context.Background()))
}

// TestAcceptor_RunOnce_FailedCasesStillExitZero tests that failing cases do
// not produce an error from Start; their outcomes live in the state files
func TestAcceptor_RunOnce_FailedCasesStillExitZero(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer cancel()

	svc.config.RunOnce = true
	svc.scheduler = NewDefaultTestScheduler(0, true, svc.config.Log)

	result := completedResult()
	result.State = types.TestStateFailed
	result.Suites[0].State = types.TestStateFailed
	result.Suites[0].Cases[0].State = types.TestStateFailed
	result.Suites[0].Cases[0].Error = "ping to 10.0.1.2 was not successful"
	result.Stats = runner.ResultStats{Total: 1, Failed: 1}
	mockExecutor.On("RunTests").Return(result, nil).Once()

	err := svc.Start(ctx)
	assert.NoError(t, err, "failed cases must not change the process exit code")

	require.NoError(t, svc.Stop(context.Background()))
}

// TestAcceptor_RunOnce_RuntimeError tests that an executor fault comes back
// as a RuntimeError
func TestAcceptor_RunOnce_RuntimeError(t *testing.T) {
	mockExecutor, svc, ctx, cancel := setupTest(t)
	defer cancel()

	svc.config.RunOnce = true
	svc.scheduler = NewDefaultTestScheduler(0, true, svc.config.Log)

	mockExecutor.On("RunTests").Return(nil, errors.New("runbook exploded")).Once()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err), "expected a RuntimeError, got %v", err)

	require.NoError(t, svc.Stop(context.Background()))
}

// TestNew_RequiresConfig tests constructor validation
func TestNew_RequiresConfig(t *testing.T) {
	svc, err := New(context.Background(), nil, "test")
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "config is required")
}

// TestNew_MissingRunbook tests that a bad runbook path fails fast
func TestNew_MissingRunbook(t *testing.T) {
	cfg := &Config{
		RunbookPath:  "/does/not/exist/runbook.yaml",
		ArtifactsDir: t.TempDir(),
		Log:          logging.Discard(),
	}

	svc, err := New(context.Background(), cfg, "test")
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "failed to create registry")
}
