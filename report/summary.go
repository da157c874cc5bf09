package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/virtinfra/guest-acceptor/types"
)

// WriteSummary writes the human-readable per-case summary: one line per
// check with its outcome and detail, then the terminal state. The file sits
// next to the state file so whoever reads one finds the other.
func WriteSummary(path string, caseName string, st types.TestState, results []types.CheckResult, duration time.Duration) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%.1fs)\n", caseName, duration.Seconds())
	for _, res := range results {
		outcome := "PASS"
		if !res.Passed {
			outcome = "FAIL"
		}
		if res.Detail != "" {
			fmt.Fprintf(&b, "  %s: %s: %s\n", outcome, res.Name, res.Detail)
		} else {
			fmt.Fprintf(&b, "  %s: %s\n", outcome, res.Name)
		}
	}
	fmt.Fprintf(&b, "%s\n", st)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
