package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/types"
)

const (
	MetricsNamespace = "guest_acceptor"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	caseResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_results_total",
		Help:      "Count of case runs by terminal state",
	}, []string{
		"run_id",
		"suite",
		"case",
		"state",
	})

	checkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "check_failures_total",
		Help:      "Count of failing checks",
	}, []string{
		"suite",
		"case",
		"check",
	})

	sshErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "ssh_errors_total",
		Help:      "Count of SSH transport faults by kind",
	}, []string{
		"target",
		"kind",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of acceptance runs",
	}, []string{
		"run_id",
		"state",
	})

	runCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_total",
		Help:      "Total number of cases in a run",
	}, []string{
		"run_id",
	})

	runCasesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_completed",
		Help:      "Number of completed cases in a run",
	}, []string{
		"run_id",
	})

	runCasesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_failed",
		Help:      "Number of failed cases in a run",
	}, []string{
		"run_id",
	})

	runCasesAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_aborted",
		Help:      "Number of aborted cases in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of acceptance runs in seconds",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordCaseResult(runID string, suite string, caseName string, state types.TestState) {
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "case_results_total",
			"run_id", runID,
			"suite", suite,
			"case", caseName,
			"state", state)
	}
	caseResultsTotal.WithLabelValues(runID, suite, caseName, string(state)).Inc()
}

func RecordCheckFailure(suite string, caseName string, check string) {
	checkFailuresTotal.WithLabelValues(suite, caseName, check).Inc()
}

func RecordSSHError(target string, kind string) {
	sshErrorsTotal.WithLabelValues(target, kind).Inc()
}

func RecordRun(
	runID string,
	state string,
	total int,
	completed int,
	failed int,
	aborted int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, state).Set(1)
	runCasesTotal.WithLabelValues(runID).Add(float64(total))
	runCasesCompleted.WithLabelValues(runID).Add(float64(completed))
	runCasesFailed.WithLabelValues(runID).Add(float64(failed))
	runCasesAborted.WithLabelValues(runID).Add(float64(aborted))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
