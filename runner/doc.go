// Package runner executes runbook cases against remote targets and
// records their outcomes.
//
// The main components are:
//   - TestRunner: Walks the runbook's suites and runs each case through
//     its lifecycle (validate, set up, check, collect, persist)
//   - Definition/Builder: The catalog side of a case; a Definition names
//     the params and roles a test needs, its Builder assembles the
//     concrete setup steps and checks from a CaseContext
//   - TestCase: A built case; ordered setup steps, fail-fast checks, and
//     the artifacts to collect once the outcome is decided
//   - CaseResult/SuiteResult/RunnerResult: The result tree with per-level
//     stats, folded Aborted over Failed over Completed
//
// Each case gets its own artifact directory holding the command
// transcript, collected files, a summary, and the state file the outer
// harness polls. The state file is always written last.
package runner
