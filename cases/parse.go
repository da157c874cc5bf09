package cases

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// pingStats is the parsed summary line of a ping run
type pingStats struct {
	Transmitted int
	Received    int
}

var pingSummaryRe = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)

// parsePingStats extracts the transmitted/received counts from ping output
func parsePingStats(output string) (pingStats, error) {
	m := pingSummaryRe.FindStringSubmatch(output)
	if m == nil {
		return pingStats{}, fmt.Errorf("no ping summary in output %q", snippet(output))
	}
	tx, err := strconv.Atoi(m[1])
	if err != nil {
		return pingStats{}, fmt.Errorf("bad transmitted count %q: %w", m[1], err)
	}
	rx, err := strconv.Atoi(m[2])
	if err != nil {
		return pingStats{}, fmt.Errorf("bad received count %q: %w", m[2], err)
	}
	return pingStats{Transmitted: tx, Received: rx}, nil
}

// pktgenResult is the parsed outcome of a pktgen run
type pktgenResult struct {
	Sent int64
	PPS  int64
}

var pktgenResultRe = regexp.MustCompile(`(\d+) \(\d+byte,\d+frags\)\s+(\d+)pps`)

// parsePktgenResult extracts packet count and rate from pktgen's summary,
// e.g. "Result: OK: 2217494(c2217477+d16) usec, 10000000 (60byte,0frags) 4509555pps 2164Mb/sec (2164586400bps) errors: 0"
func parsePktgenResult(line string) (pktgenResult, error) {
	m := pktgenResultRe.FindStringSubmatch(line)
	if m == nil {
		return pktgenResult{}, fmt.Errorf("no pktgen result in %q", snippet(line))
	}
	sent, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return pktgenResult{}, fmt.Errorf("bad packet count %q: %w", m[1], err)
	}
	pps, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return pktgenResult{}, fmt.Errorf("bad packet rate %q: %w", m[2], err)
	}
	return pktgenResult{Sent: sent, PPS: pps}, nil
}

// parseCounter reads a single numeric counter, the format of the files
// under /sys/class/net/*/statistics
func parseCounter(output string) (int64, error) {
	v := strings.TrimSpace(output)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter output is not a number: %q", snippet(output))
	}
	return n, nil
}

// kernelSemver normalizes a kernel release string like "5.4.0-42-generic"
// into a semver the comparator accepts
func kernelSemver(release string) (string, error) {
	base, _, _ := strings.Cut(release, "-")
	parts := strings.Split(base, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("unrecognized kernel release %q", release)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	v := "v" + strings.Join(parts[:3], ".")
	if !semver.IsValid(v) {
		return "", fmt.Errorf("unrecognized kernel release %q", release)
	}
	return v, nil
}

// snippet trims command output down to something that fits in a detail
// string
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}

// matchingLine returns the first line of out containing substr
func matchingLine(out, substr string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, substr) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// lastLine returns the final non-empty line of out
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
