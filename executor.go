package acceptor

import (
	"context"

	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/runner"
)

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context) (*runner.RunnerResult, error)
}

// DefaultTestExecutor implements the TestExecutor interface.
type DefaultTestExecutor struct {
	runner runner.TestRunner
	logger *zap.SugaredLogger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(runner runner.TestRunner, logger *zap.SugaredLogger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: runner,
		logger: logger,
	}
}

// RunTests runs all tests and returns the results.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*runner.RunnerResult, error) {
	e.logger.Info("Running all tests...")
	result, err := e.runner.RunAllTests(ctx)
	if err != nil {
		e.logger.Errorw("Error running tests", "error", err)
		return nil, err
	}
	e.logger.Infow("Test run completed", "run_id", result.RunID, "state", result.State)
	return result, nil
}
