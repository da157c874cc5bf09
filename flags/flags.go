package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "GUEST_ACCEPTOR"

// prefixEnvVars returns the env var names for a flag under the app prefix
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Runbook = &cli.StringFlag{
		Name:     "runbook",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("RUNBOOK"),
		Usage:    "Path to the runbook file (eg. 'runbook.yaml')",
	}
	ArtifactsDir = &cli.StringFlag{
		Name:     "artifacts-dir",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("ARTIFACTS_DIR"),
		Usage:    "Directory where run artifacts and state files are written",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVars("SUITE"),
		Usage:   "Run only the named suite from the runbook",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Minute,
		EnvVars: prefixEnvVars("DEFAULT_TIMEOUT"),
		Usage:   "Timeout for cases that do not set one in the runbook",
	}
	SSHTimeout = &cli.DurationFlag{
		Name:    "ssh-timeout",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVars("SSH_TIMEOUT"),
		Usage:   "Timeout for a single SSH connection attempt",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "console",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format (console or json)",
	}
	MetricsPort = &cli.StringFlag{
		Name:    "metrics-port",
		Value:   "7300",
		EnvVars: prefixEnvVars("METRICS_PORT"),
		Usage:   "Port for the Prometheus metrics server",
	}
	HealthzPort = &cli.StringFlag{
		Name:    "healthz-port",
		Value:   "8080",
		EnvVars: prefixEnvVars("HEALTHZ_PORT"),
		Usage:   "Port for the healthz server",
	}
)

var requiredFlags = []cli.Flag{
	Runbook,
	ArtifactsDir,
}

var optionalFlags = []cli.Flag{
	Suite,
	RunInterval,
	DefaultTimeout,
	SSHTimeout,
	LogLevel,
	LogFormat,
	MetricsPort,
	HealthzPort,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
