package acceptor

import (
	"github.com/virtinfra/guest-acceptor/metrics"
	"github.com/virtinfra/guest-acceptor/runner"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(result *runner.RunnerResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
// Per-case and per-check metrics are recorded by the runner as they happen;
// this reporter records the run-level outcome once the run is complete.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the test results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(result *runner.RunnerResult) {
	metrics.RecordRun(
		result.RunID,
		result.State.String(),
		result.Stats.Total,
		result.Stats.Completed,
		result.Stats.Failed,
		result.Stats.Aborted,
		result.Duration,
	)
}
