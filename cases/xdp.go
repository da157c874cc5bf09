package cases

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/report"
	"github.com/virtinfra/guest-acceptor/runner"
)

const (
	// Generic XDP needs at least this kernel on the forwarder
	minXDPKernel = "v5.4.0"

	pktgenLogPath      = "/tmp/pktgen.log"
	pktgenPollInterval = 10 * time.Second
	pktgenPollAttempts = 30
)

func xdpForwardingDefinition() runner.Definition {
	return runner.Definition{
		Test:        "xdp-forwarding",
		Description: "XDP forwarding throughput under pktgen load",
		RequiredParams: []string{
			"nicName",
			"forwarderSecondIP",
			"receiverSecondIP",
			"packetCount",
			"forwardThresholdPct",
			"minPPS",
		},
		Roles: []string{"sender", "forwarder", "receiver"},
		Build: buildXDPForwarding,
	}
}

// buildXDPForwarding drives pktgen on the sender toward the receiver via
// an XDP program on the forwarder, then judges the forwarded fraction and
// the sender's achieved rate. The run is asynchronous: setup starts pktgen
// in the background and the first check waits for its result line.
func buildXDPForwarding(cc *runner.CaseContext) (*runner.TestCase, error) {
	nic := cc.Params.Get("nicName", "")
	fwdIP := cc.Params.Get("forwarderSecondIP", "")
	recvIP := cc.Params.Get("receiverSecondIP", "")
	packetCount, err := cc.Params.Int64("packetCount")
	if err != nil {
		return nil, err
	}
	thresholdPct, err := cc.Params.Int64("forwardThresholdPct")
	if err != nil {
		return nil, err
	}
	minPPS, err := cc.Params.Int64("minPPS")
	if err != nil {
		return nil, err
	}
	pollInterval, err := cc.Params.DurationOr("pktgenPollInterval", pktgenPollInterval)
	if err != nil {
		return nil, err
	}
	pollAttempts, err := cc.Params.IntOr("pktgenPollAttempts", pktgenPollAttempts)
	if err != nil {
		return nil, err
	}

	sender := cc.Roles.Target("sender")
	forwarder := cc.Roles.Target("forwarder")
	receiver := cc.Roles.Target("receiver")

	// Filled by the checks in order, consumed by later checks and the
	// report hook. Checks run sequentially, so no locking.
	var sent, senderPPS, forwarded, received int64

	fwdLimit := packetCount * thresholdPct / 100

	counterCmd := func(dir string) string {
		return fmt.Sprintf("cat /sys/class/net/%s/statistics/%s_packets", nic, dir)
	}

	return &runner.TestCase{
		Name: "xdp-forwarding",
		Gate: func(ctx context.Context) (bool, string, error) {
			res, err := cc.Executor.Execute(ctx, forwarder, "uname -r", cc.Timeout)
			if err != nil {
				return false, "", err
			}
			release := strings.TrimSpace(res.Stdout)
			v, err := kernelSemver(release)
			if err != nil {
				return false, "", err
			}
			if semver.Compare(v, minXDPKernel) < 0 {
				return false, fmt.Sprintf("kernel %s is older than %s, no XDP support",
					release, strings.TrimPrefix(minXDPKernel, "v")), nil
			}
			return true, "", nil
		},
		Setup: []runner.SetupStep{
			{
				Name:     "load pktgen module",
				Role:     "sender",
				Command:  "modprobe pktgen",
				Parallel: true,
			},
			{
				Name:     "attach forwarding program",
				Role:     "forwarder",
				Command:  fmt.Sprintf("samples/bpf/xdp_fwd %s", nic),
				Parallel: true,
			},
			{
				// The pktgen script resolves the forwarder MAC from the
				// neighbor table, so make sure there is an entry
				Name:         "prime neighbor cache",
				Role:         "sender",
				Command:      fmt.Sprintf("ping -I %s -c 1 -W 2 %s", nic, fwdIP),
				AllowNonZero: true,
			},
			{
				Name: "start pktgen",
				Role: "sender",
				Command: fmt.Sprintf(
					"nohup samples/pktgen/pktgen_sample01_simple.sh -i %s -d %s -m $(ip neigh show %s dev %s | awk '{print $3}') -n %d > %s 2>&1 & echo started",
					nic, recvIP, fwdIP, nic, packetCount, pktgenLogPath),
			},
		},
		Checks: []checks.Check{
			{
				Name: "sender completed",
				Fn: func(ctx context.Context) (bool, string, error) {
					out, err := checks.WaitFor(ctx, "pktgen result", pollInterval, uint64(pollAttempts),
						func(ctx context.Context) (bool, string, error) {
							res, err := cc.Executor.Execute(ctx, sender, "cat "+pktgenLogPath, cc.Timeout)
							if err != nil {
								return false, "", err
							}
							if strings.Contains(res.Stdout, "Result:") {
								return true, matchingLine(res.Stdout, "Result:"), nil
							}
							return false, lastLine(res.Stdout), nil
						})
					if err != nil {
						return false, "", err
					}
					stats, perr := parsePktgenResult(out)
					if perr != nil {
						return false, "", perr
					}
					sent, senderPPS = stats.Sent, stats.PPS
					return true, fmt.Sprintf("sent %d packets at %d pps", sent, senderPPS), nil
				},
			},
			{
				Name: "forward threshold",
				Fn: func(ctx context.Context) (bool, string, error) {
					res, err := cc.Executor.Execute(ctx, forwarder, counterCmd("tx"), cc.Timeout)
					if err != nil {
						return false, "", err
					}
					n, perr := parseCounter(res.Stdout)
					if perr != nil {
						return false, "", perr
					}
					forwarded = n
					if forwarded < fwdLimit {
						return false, fmt.Sprintf("forwarded %d packets, below the limit of %d (%d%% of %d sent)",
							forwarded, fwdLimit, thresholdPct, packetCount), nil
					}
					return true, fmt.Sprintf("forwarded %d packets, meeting the limit of %d", forwarded, fwdLimit), nil
				},
			},
			{
				Name: "sender rate",
				Fn: func(ctx context.Context) (bool, string, error) {
					if senderPPS < minPPS {
						return false, fmt.Sprintf("sender rate %d pps is below the minimum %d pps", senderPPS, minPPS), nil
					}
					return true, fmt.Sprintf("sender rate %d pps meets the minimum %d pps", senderPPS, minPPS), nil
				},
			},
		},
		Report: func(ctx context.Context) error {
			res, err := cc.Executor.Execute(ctx, receiver, counterCmd("rx"), cc.Timeout)
			if err == nil && res.ExitCode == 0 {
				if n, perr := parseCounter(res.Stdout); perr == nil {
					received = n
				}
			}
			return report.WritePerfCSV(filepath.Join(cc.ArtifactDir, "report.csv"), "xdp-forwarding", []report.Metric{
				{Name: "sender_pps", Value: senderPPS},
				{Name: "packets_sent", Value: sent},
				{Name: "packets_forwarded", Value: forwarded},
				{Name: "packets_received", Value: received},
			})
		},
		Collect: []runner.RemoteFile{
			{Role: "sender", RemotePath: pktgenLogPath},
		},
		Teardown: []runner.SetupStep{
			{
				Name:    "detach forwarding program",
				Role:    "forwarder",
				Command: fmt.Sprintf("ip link set dev %s xdp off", nic),
			},
			{
				Name:    "remove pktgen module",
				Role:    "sender",
				Command: "rmmod pktgen",
			},
		},
	}, nil
}
