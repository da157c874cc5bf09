package runner

import (
	"fmt"
	"time"

	"github.com/virtinfra/guest-acceptor/types"
)

// CaseResult is the outcome of one runbook case
type CaseResult struct {
	Name  string
	Suite string
	Test  string

	// State is the terminal state the case reached. Unset when Skipped.
	State types.TestState

	// Skipped cases never ran and never recorded a state: either disabled
	// in the runbook or refused by the case gate.
	Skipped    bool
	SkipReason string

	Checks []types.CheckResult

	// Error is the failing detail shown in the summary table: the abort
	// reason, or the first failing check's detail.
	Error string

	Duration    time.Duration
	ArtifactDir string
	StateFile   string

	// PersistErr is set when the state file could not be written. The
	// process exit code reports this even when the run itself went fine.
	PersistErr error
}

// SuiteResult groups the case results of one runbook suite
type SuiteResult struct {
	ID          string
	Description string
	Cases       []*CaseResult
	State       types.TestState
	Stats       ResultStats
	Duration    time.Duration
}

// RunnerResult is the outcome of a whole acceptance run
type RunnerResult struct {
	RunID    string
	Suites   []*SuiteResult
	State    types.TestState
	Stats    ResultStats
	Duration time.Duration
}

// ResultStats tallies case outcomes at the suite or run level
type ResultStats struct {
	Total     int
	Completed int
	Failed    int
	Aborted   int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) merge(o ResultStats) {
	s.Total += o.Total
	s.Completed += o.Completed
	s.Failed += o.Failed
	s.Aborted += o.Aborted
	s.Skipped += o.Skipped
}

func (s *ResultStats) record(cr *CaseResult) {
	s.Total++
	if cr.Skipped {
		s.Skipped++
		return
	}
	switch cr.State {
	case types.TestStateCompleted:
		s.Completed++
	case types.TestStateFailed:
		s.Failed++
	default:
		s.Aborted++
	}
}

// Outcome renders the case outcome for logs and tables
func (c *CaseResult) Outcome() string {
	if c.Skipped {
		return "skipped"
	}
	return c.State.String()
}

// PersistFailures counts cases whose state file could not be written
func (r *RunnerResult) PersistFailures() int {
	n := 0
	for _, sr := range r.Suites {
		for _, cr := range sr.Cases {
			if cr.PersistErr != nil {
				n++
			}
		}
	}
	return n
}

// String summarizes the run in one line
func (r *RunnerResult) String() string {
	return fmt.Sprintf("run %s: %s (%d cases: %d completed, %d failed, %d aborted, %d skipped) in %s",
		r.RunID, r.State, r.Stats.Total, r.Stats.Completed, r.Stats.Failed, r.Stats.Aborted, r.Stats.Skipped,
		r.Duration.Round(time.Millisecond))
}

// determineSuiteState folds case states into the suite state. Aborted
// outranks Failed outranks Completed; skipped cases carry no weight.
func determineSuiteState(sr *SuiteResult) types.TestState {
	state := types.TestStateCompleted
	for _, cr := range sr.Cases {
		if cr.Skipped {
			continue
		}
		switch cr.State {
		case types.TestStateAborted:
			return types.TestStateAborted
		case types.TestStateFailed:
			state = types.TestStateFailed
		}
	}
	return state
}

// determineRunnerState folds suite states into the run state
func determineRunnerState(r *RunnerResult) types.TestState {
	state := types.TestStateCompleted
	for _, sr := range r.Suites {
		switch sr.State {
		case types.TestStateAborted:
			return types.TestStateAborted
		case types.TestStateFailed:
			state = types.TestStateFailed
		}
	}
	return state
}

// firstFailureDetail extracts the first failing check's detail for the
// result table
func firstFailureDetail(results []types.CheckResult) string {
	for _, res := range results {
		if !res.Passed {
			return fmt.Sprintf("%s: %s", res.Name, res.Detail)
		}
	}
	return ""
}
