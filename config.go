package acceptor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/flags"
)

// Config holds the application configuration
type Config struct {
	RunbookPath    string        // Path to the runbook file
	ArtifactsDir   string        // Directory for run artifacts and state files
	TargetSuite    string        // Run only this suite when set
	RunInterval    time.Duration // Interval between test runs
	RunOnce        bool          // Indicates if the service should exit after one test run
	DefaultTimeout time.Duration // Timeout for cases that do not set one in the runbook
	SSHTimeout     time.Duration // Timeout for a single SSH connection attempt
	MetricsPort    string
	HealthzPort    string
	Log            *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	runbook := ctx.String(flags.Runbook.Name)
	absRunbook, err := filepath.Abs(runbook)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for runbook '%s': %w", runbook, err)
	}

	artifactsDir := ctx.String(flags.ArtifactsDir.Name)
	absArtifactsDir, err := filepath.Abs(artifactsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for artifacts directory '%s': %w", artifactsDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		RunbookPath:    absRunbook,
		ArtifactsDir:   absArtifactsDir,
		TargetSuite:    ctx.String(flags.Suite.Name),
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		DefaultTimeout: ctx.Duration(flags.DefaultTimeout.Name),
		SSHTimeout:     ctx.Duration(flags.SSHTimeout.Name),
		MetricsPort:    ctx.String(flags.MetricsPort.Name),
		HealthzPort:    ctx.String(flags.HealthzPort.Name),
		Log:            log,
	}, nil
}
