package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/metrics"
	"github.com/virtinfra/guest-acceptor/registry"
	"github.com/virtinfra/guest-acceptor/remote"
	"github.com/virtinfra/guest-acceptor/report"
	"github.com/virtinfra/guest-acceptor/state"
	"github.com/virtinfra/guest-acceptor/types"
)

// TranscriptFileName is the per-case log of every remote command and its
// output
const TranscriptFileName = "commands.log"

// SummaryFileName is the per-case human-readable outcome summary
const SummaryFileName = "summary.log"

// TestRunner defines the interface for running acceptance cases
type TestRunner interface {
	RunAllTests(ctx context.Context) (*RunnerResult, error)
	RunCase(ctx context.Context, suite *types.SuiteConfig, cfg types.CaseConfig) *CaseResult
}

// runner struct implements TestRunner
type runner struct {
	registry     *registry.Registry
	catalog      Catalog
	executor     remote.Executor
	artifactsDir string
	targetSuite  string
	log          *zap.SugaredLogger
	runID        string
	runDir       string
	tracer       trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry     *registry.Registry
	Catalog      Catalog
	Executor     remote.Executor
	ArtifactsDir string
	TargetSuite  string // run only this suite when set
	Log          *zap.SugaredLogger
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if len(cfg.Catalog) == 0 {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.ArtifactsDir == "" {
		return nil, fmt.Errorf("artifacts directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.S()
		cfg.Log.Error("No logger provided, using global default")
	}

	runbook := cfg.Registry.Runbook()
	if cfg.TargetSuite != "" {
		found := false
		for _, s := range runbook.Suites {
			if s.ID == cfg.TargetSuite {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("suite %q not found in runbook", cfg.TargetSuite)
		}
	}

	cfg.Log.Infow("Created test runner",
		"suites", len(runbook.Suites),
		"targetSuite", cfg.TargetSuite,
		"artifactsDir", cfg.ArtifactsDir)

	return &runner{
		registry:     cfg.Registry,
		catalog:      cfg.Catalog,
		executor:     cfg.Executor,
		artifactsDir: cfg.ArtifactsDir,
		targetSuite:  cfg.TargetSuite,
		log:          cfg.Log,
		tracer:       otel.Tracer("case runner"),
	}, nil
}

// RunAllTests runs every suite in the runbook (or just the target suite)
// and returns the aggregated result
func (r *runner) RunAllTests(ctx context.Context) (*RunnerResult, error) {
	r.runID = uuid.New().String()
	defer func() {
		r.runID = ""
	}()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", r.runID))
	defer span.End()

	start := time.Now()
	result := &RunnerResult{
		RunID: r.runID,
		Stats: ResultStats{StartTime: start},
	}

	r.runDir = filepath.Join(r.artifactsDir, r.runID)
	if err := os.MkdirAll(r.runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", r.runDir, err)
	}

	r.log.Infow("Starting acceptance run", "run_id", r.runID, "artifacts", r.runDir)

	for _, suite := range r.suites() {
		sr := r.processSuite(ctx, &suite)
		result.Suites = append(result.Suites, sr)
		result.Stats.merge(sr.Stats)
	}

	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.State = determineRunnerState(result)

	r.log.Infow("Acceptance run complete",
		"run_id", r.runID,
		"state", result.State,
		"duration", result.Duration)
	return result, nil
}

// suites returns the runbook suites selected for this run
func (r *runner) suites() []types.SuiteConfig {
	all := r.registry.Runbook().Suites
	if r.targetSuite == "" {
		return all
	}
	for i := range all {
		if all[i].ID == r.targetSuite {
			return all[i : i+1]
		}
	}
	return nil
}

// processSuite runs every case of one suite in runbook order
func (r *runner) processSuite(ctx context.Context, suite *types.SuiteConfig) *SuiteResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.ID))
	defer span.End()

	start := time.Now()
	sr := &SuiteResult{
		ID:          suite.ID,
		Description: suite.Description,
		Stats:       ResultStats{StartTime: start},
	}

	r.log.Infow("Running suite", "suite", suite.ID, "cases", len(suite.Cases))

	for _, caseCfg := range suite.Cases {
		cr := r.RunCase(ctx, suite, caseCfg)
		sr.Cases = append(sr.Cases, cr)
		sr.Stats.record(cr)
		if !cr.Skipped {
			metrics.RecordCaseResult(r.runID, suite.ID, cr.Name, cr.State)
		}
	}

	sr.Duration = time.Since(start)
	sr.Stats.EndTime = time.Now()
	sr.State = determineSuiteState(sr)
	return sr
}

// RunCase runs a single case through its whole lifecycle: validate, set
// up, run the checks, collect artifacts, and persist the terminal state
// in the case artifact directory. The state file is written last so the
// supervisor never reads a terminal state while evidence is still being
// gathered.
func (r *runner) RunCase(ctx context.Context, suite *types.SuiteConfig, cfg types.CaseConfig) (result *CaseResult) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("case %s", cfg.Name))
	defer span.End()

	start := time.Now()
	result = &CaseResult{Name: cfg.Name, Suite: suite.ID, Test: cfg.Test}
	defer func() {
		result.Duration = time.Since(start)
	}()

	clog := r.log.With("suite", suite.ID, "case", cfg.Name)

	if cfg.Disabled {
		clog.Infow("Case disabled in runbook, skipping")
		result.Skipped = true
		result.SkipReason = "disabled in runbook"
		return result
	}

	base := r.runDir
	if base == "" {
		base = r.artifactsDir
	}
	caseDir := filepath.Join(base, suite.ID, cfg.Name)
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		err = fmt.Errorf("failed to create case directory %s: %w", caseDir, err)
		clog.Errorw("Case aborted", "error", err)
		result.State = types.TestStateAborted
		result.Error = err.Error()
		result.PersistErr = err
		return result
	}
	result.ArtifactDir = caseDir

	store := state.New(caseDir)
	result.StateFile = store.Path()

	persist := func(st types.TestState) {
		result.State = st
		if err := store.Write(st); err != nil {
			clog.Errorw("Failed to persist case state", "state", st, "error", err)
			metrics.RecordErrorDetails("state_persist", err)
			result.PersistErr = err
		}
	}

	// A panicking builder or check must not take down the rest of the run
	defer func() {
		if rec := recover(); rec != nil {
			clog.Errorw("Recovered from panic while running case", "recover", rec)
			result.Error = fmt.Sprintf("panic: %v", rec)
			if !result.State.Terminal() {
				persist(types.TestStateAborted)
			}
		}
	}()

	fail := func(err error) *CaseResult {
		st := types.StateForError(err)
		clog.Errorw("Case did not complete", "state", st, "error", err)
		metrics.RecordErrorDetails("case_"+string(st), err)
		result.Error = err.Error()
		persist(st)
		return result
	}

	// Validation happens before anything touches the remote targets, so a
	// misconfigured case aborts without a single SSH command.
	def, ok := r.catalog.Lookup(cfg.Test)
	if !ok {
		return fail(types.NewConfigurationError(fmt.Errorf("unknown test %q", cfg.Test)))
	}
	if missing := cfg.Params.Missing(def.RequiredParams); len(missing) > 0 {
		return fail(types.NewConfigurationError(fmt.Errorf("missing required params %v", missing)))
	}
	for _, role := range def.Roles {
		if cfg.Targets[role] == "" {
			return fail(types.NewConfigurationError(fmt.Errorf("role %q is not bound to a target", role)))
		}
	}

	var transcript io.Writer = io.Discard
	logFile, err := os.Create(filepath.Join(caseDir, TranscriptFileName))
	if err != nil {
		clog.Warnw("Could not create command transcript", "error", err)
	} else {
		defer logFile.Close()
		transcript = logFile
	}
	exec := remote.NewTranscript(r.executor, transcript)

	cc := &CaseContext{
		Executor:    exec,
		Params:      cfg.Params,
		Roles:       Roles(cfg.Targets),
		Log:         clog,
		ArtifactDir: caseDir,
		Timeout:     cfg.Timeout.Std(),
	}
	tc, err := def.Build(cc)
	if err != nil {
		if !types.IsConfigurationError(err) {
			err = types.NewConfigurationError(err)
		}
		return fail(err)
	}
	fillStepTimeouts(tc, cc.Timeout)

	if tc.Gate != nil {
		ok, reason, err := tc.Gate(ctx)
		if err != nil {
			return fail(types.NewInfrastructureError(fmt.Errorf("probing environment: %w", err)))
		}
		if !ok {
			clog.Infow("Environment cannot run case, skipping", "reason", reason)
			result.Skipped = true
			result.SkipReason = reason
			return result
		}
	}

	if err := r.runSetup(ctx, exec, cc.Roles, tc, clog); err != nil {
		return fail(err)
	}

	// Setup succeeded, the case is now properly underway
	persist(types.TestStateRunning)
	if result.PersistErr != nil {
		result.State = types.TestStateAborted
		result.Error = fmt.Sprintf("cannot persist case state: %v", result.PersistErr)
		return result
	}

	checker := checks.NewRunner(clog)
	result.Checks = checker.Run(ctx, tc.Checks)

	outcome := types.TestStateCompleted
	if !checks.AllPassed(result.Checks) {
		outcome = types.TestStateFailed
		result.Error = firstFailureDetail(result.Checks)
		for _, f := range checks.Failures(result.Checks) {
			metrics.RecordCheckFailure(suite.ID, cfg.Name, f.Name)
		}
	}

	if tc.Report != nil {
		if err := tc.Report(ctx); err != nil {
			clog.Warnw("Report hook failed", "error", err)
		}
	}
	r.collectArtifacts(ctx, exec, cc.Roles, tc, caseDir, clog)

	if err := report.WriteSummary(filepath.Join(caseDir, SummaryFileName), cfg.Name, outcome, result.Checks, time.Since(start)); err != nil {
		clog.Warnw("Could not write case summary", "error", err)
	}

	// Everything observable about the case is on disk; now commit the
	// terminal state.
	persist(outcome)

	if outcome == types.TestStateCompleted {
		r.runTeardown(ctx, exec, cc.Roles, tc, clog)
	} else {
		clog.Infow("Leaving targets untouched for diagnosis", "state", outcome)
	}

	clog.Infow("Case finished", "state", result.State, "duration", time.Since(start))
	return result
}

// fillStepTimeouts applies the runbook case timeout to steps that do not
// set their own
func fillStepTimeouts(tc *TestCase, timeout time.Duration) {
	for i := range tc.Setup {
		if tc.Setup[i].Timeout == 0 {
			tc.Setup[i].Timeout = timeout
		}
	}
	for i := range tc.Teardown {
		if tc.Teardown[i].Timeout == 0 {
			tc.Teardown[i].Timeout = timeout
		}
	}
}

// runSetup executes the setup steps in order. Consecutive steps marked
// Parallel run as one stage; the first failure stops the whole setup.
func (r *runner) runSetup(ctx context.Context, exec remote.Executor, roles Roles, tc *TestCase, log *zap.SugaredLogger) error {
	steps := tc.Setup
	for i := 0; i < len(steps); {
		if !steps[i].Parallel {
			if err := r.runStep(ctx, exec, roles, steps[i], log); err != nil {
				return err
			}
			i++
			continue
		}
		j := i
		for j < len(steps) && steps[j].Parallel {
			j++
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, step := range steps[i:j] {
			step := step
			g.Go(func() error {
				return r.runStep(gctx, exec, roles, step, log)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// runStep executes one setup or teardown command on its role's target.
// An executor error or an unexpected non-zero exit is an infrastructure
// problem, not a test verdict.
func (r *runner) runStep(ctx context.Context, exec remote.Executor, roles Roles, step SetupStep, log *zap.SugaredLogger) error {
	target := roles.Target(step.Role)
	if target == "" {
		return types.NewConfigurationError(fmt.Errorf("step %q references unbound role %q", step.Name, step.Role))
	}
	log.Debugw("Running step", "step", step.Name, "target", target)
	res, err := exec.Execute(ctx, target, step.Command, step.Timeout)
	if err != nil {
		return types.NewInfrastructureError(fmt.Errorf("step %q on %s: %w", step.Name, target, err))
	}
	if res.ExitCode != 0 && !step.AllowNonZero {
		return types.NewInfrastructureError(fmt.Errorf("step %q on %s exited %d: %s",
			step.Name, target, res.ExitCode, firstLine(res.Stderr, res.Stdout)))
	}
	return nil
}

// runTeardown is best-effort; a completed case must not flip state
// because cleanup hiccuped
func (r *runner) runTeardown(ctx context.Context, exec remote.Executor, roles Roles, tc *TestCase, log *zap.SugaredLogger) {
	for _, step := range tc.Teardown {
		if err := r.runStep(ctx, exec, roles, step, log); err != nil {
			log.Warnw("Teardown step failed", "step", step.Name, "error", err)
		}
	}
}

// collectArtifacts copies the case's declared remote files into the case
// artifact directory. Collection failures are logged, never fatal.
func (r *runner) collectArtifacts(ctx context.Context, exec remote.Executor, roles Roles, tc *TestCase, caseDir string, log *zap.SugaredLogger) {
	for _, rf := range tc.Collect {
		target := roles.Target(rf.Role)
		if target == "" {
			log.Warnw("Artifact references unbound role", "role", rf.Role, "path", rf.RemotePath)
			continue
		}
		data, err := exec.Fetch(ctx, target, rf.RemotePath)
		if err != nil {
			log.Warnw("Could not fetch artifact", "target", target, "path", rf.RemotePath, "error", err)
			continue
		}
		name := rf.LocalName
		if name == "" {
			name = filepath.Base(rf.RemotePath)
		}
		if err := os.WriteFile(filepath.Join(caseDir, name), data, 0o644); err != nil {
			log.Warnw("Could not write artifact", "file", name, "error", err)
		}
	}
}

// firstLine picks the most useful line of command output for an error
// message
func firstLine(stderr, stdout string) string {
	for _, s := range []string{stderr, stdout} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		}
		return s
	}
	return "(no output)"
}
