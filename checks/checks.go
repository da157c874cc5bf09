// Package checks runs the ordered named checks that define a test case's
// pass criteria.
package checks

import (
	"context"

	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/types"
)

// Func is a check body. It returns pass/fail plus a human-readable detail;
// a non-nil error means the check could not run at all (for example a
// transport fault) and is reported as a failure rather than a distinct
// outcome.
type Func func(ctx context.Context) (passed bool, detail string, err error)

// Check is one named pass criterion
type Check struct {
	Name string
	Fn   Func
}

// Runner executes checks strictly in order with fail-fast semantics
type Runner struct {
	log *zap.SugaredLogger
}

// NewRunner creates a check runner
func NewRunner(log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{log: log.Named("checks")}
}

// Run evaluates cs in order and stops at the first failure, returning one
// result per check actually executed. A failing run therefore leaves the
// remote environment exactly as the failing check saw it.
func (r *Runner) Run(ctx context.Context, cs []Check) []types.CheckResult {
	results := make([]types.CheckResult, 0, len(cs))
	for _, c := range cs {
		if err := ctx.Err(); err != nil {
			results = append(results, types.CheckResult{Name: c.Name, Passed: false, Detail: err.Error()})
			return results
		}

		passed, detail, err := c.Fn(ctx)
		if err != nil {
			passed = false
			detail = err.Error()
		}
		results = append(results, types.CheckResult{Name: c.Name, Passed: passed, Detail: detail})

		if !passed {
			r.log.Warnw("check failed", "check", c.Name, "detail", detail)
			return results
		}
		r.log.Infow("check passed", "check", c.Name, "detail", detail)
	}
	return results
}

// AllPassed reports whether every result passed
func AllPassed(results []types.CheckResult) bool {
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failures returns only the failing results
func Failures(results []types.CheckResult) []types.CheckResult {
	var failed []types.CheckResult
	for _, res := range results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}
