package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/virtinfra/guest-acceptor/cases"
	"github.com/virtinfra/guest-acceptor/exitcodes"
	"github.com/virtinfra/guest-acceptor/registry"
	"github.com/virtinfra/guest-acceptor/remote"
	"github.com/virtinfra/guest-acceptor/runner"
	"github.com/virtinfra/guest-acceptor/service"
)

// Service is the guest acceptance tester. It loads the runbook, connects to
// the guests over SSH and drives acceptance runs either once or on an
// interval.
type Service struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	remote   remote.Executor

	executor  TestExecutor
	scheduler TestScheduler
	formatter ResultFormatter
	reporter  MetricsReporter
	servers   *service.Service

	mu     sync.Mutex
	result *runner.RunnerResult
}

func New(ctx context.Context, config *Config, version string) (*Service, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugw("Creating acceptor with config",
		"runbook", config.RunbookPath,
		"artifactsDir", config.ArtifactsDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"targetSuite", config.TargetSuite)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		RunbookFile:    config.RunbookPath,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	sshExec, err := remote.NewSSHExecutor(config.Log, remote.Config{
		Targets:     reg.Targets(),
		DialTimeout: config.SSHTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh executor: %w", err)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:     reg,
		Catalog:      cases.Catalog(),
		Executor:     sshExec,
		ArtifactsDir: config.ArtifactsDir,
		TargetSuite:  config.TargetSuite,
		Log:          config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Info("acceptor.New: created registry and test runner")

	return &Service{
		ctx:       ctx,
		config:    config,
		version:   version,
		registry:  reg,
		remote:    sshExec,
		executor:  NewDefaultTestExecutor(testRunner, config.Log),
		scheduler: NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter: NewConsoleResultFormatter(config.Log),
		reporter:  NewDefaultMetricsReporter(),
		servers:   service.New(version, config.HealthzPort, config.MetricsPort),
	}, nil
}

// Start runs the acceptance cases, either once or periodically at the
// configured interval.
func (s *Service) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Errorw("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx

	if s.config.RunOnce {
		s.config.Log.Infow("Starting guest-acceptor in run-once mode", "version", s.version)
	} else {
		s.config.Log.Infow("Starting guest-acceptor in continuous mode",
			"version", s.version,
			"interval", s.config.RunInterval)
	}

	s.servers.Start(ctx)
	s.scheduler.RegisterCallback(s.runTests)

	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	if s.config.RunOnce {
		s.config.Log.Info("Tests completed, exiting (run-once mode)")

		// Case outcomes live in the state files, not in the exit code. The
		// only run-once failure worth a non-zero exit is a state file that
		// could not be written.
		if result := s.Result(); result != nil && result.PersistFailures() > 0 {
			s.config.Log.Warnw("Run completed but state files could not be written, returning exit code 1",
				"failures", result.PersistFailures())
			return NewPersistenceError(result.String())
		}
		return nil
	}

	s.config.Log.Debug("guest-acceptor started successfully")
	return nil
}

// runTests runs all cases and processes the results
func (s *Service) runTests() error {
	result, err := s.executor.RunTests(s.ctx)
	if err != nil {
		// This is a runtime error, not a case outcome
		return NewRuntimeError(err)
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	if err := s.formatter.FormatResults(result); err != nil {
		s.config.Log.Warnw("Failed to print results", "error", err)
	}
	s.reporter.ReportResults(result)

	if n := result.PersistFailures(); n > 0 {
		s.config.Log.Errorw("State files could not be written", "failures", n)
	}
	return nil
}

// Result returns the most recent run result
func (s *Service) Result() *runner.RunnerResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stop stops the guest-acceptor service.
func (s *Service) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping guest-acceptor")

	if s.scheduler.Stopped() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := s.scheduler.Stop(); err != nil {
		return err
	}
	s.servers.Shutdown()

	if err := s.remote.Close(); err != nil {
		s.config.Log.Warnw("Error closing SSH connections", "error", err)
	}

	s.config.Log.Info("guest-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the guest-acceptor service is stopped.
func (s *Service) Stopped() bool {
	return s.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (s *Service) WaitForShutdown(ctx context.Context) error {
	return s.scheduler.WaitForShutdown(ctx)
}
