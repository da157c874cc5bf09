package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	acceptor "github.com/virtinfra/guest-acceptor"
	"github.com/virtinfra/guest-acceptor/exitcodes"
	"github.com/virtinfra/guest-acceptor/flags"
	"github.com/virtinfra/guest-acceptor/logging"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "guest-acceptor"
	app.Usage = "Linux Guest Acceptance Tester Service"
	app.Description = "guest-acceptor validates Linux guests over SSH"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed errors
			if acceptor.IsPersistenceError(err) {
				// State files could not be written, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.PersistenceErr))
			} else {
				// Anything else is a runtime fault, use exit code 2.
				// Case outcomes never reach the exit code; they live in
				// the state files.
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup open telemetry: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler has already mapped the error to an exit code;
		// reaching this point means it chose not to exit.
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	log, err := logging.New(cliCtx.String(flags.LogLevel.Name), cliCtx.String(flags.LogFormat.Name))
	if err != nil {
		return acceptor.NewRuntimeError(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log.Desugar())

	cfg, err := acceptor.NewConfig(cliCtx, log)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	log.Debugw("Config",
		"runbook", cfg.RunbookPath,
		"artifactsDir", cfg.ArtifactsDir,
		"runInterval", cfg.RunInterval)

	svc, err := acceptor.New(cliCtx.Context, cfg, Version)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create acceptor: %w", err))
	}

	startErr := svc.Start(cliCtx.Context)

	if cfg.RunOnce || startErr != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = svc.Stop(shutdownCtx)
		return startErr
	}

	// Continuous mode: run until interrupted
	<-cliCtx.Context.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to stop acceptor: %w", err))
	}
	return svc.WaitForShutdown(shutdownCtx)
}
