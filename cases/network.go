package cases

import (
	"context"
	"fmt"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/runner"
)

const defaultPingCount = 10

func networkPingDefinition() runner.Definition {
	return runner.Definition{
		Test:           "network-ping",
		Description:    "Reachability between two guests over a secondary NIC",
		RequiredParams: []string{"nicName", "serverPingIP", "expectReachable"},
		Roles:          []string{"client", "server"},
		Build:          buildNetworkPing,
	}
}

// buildNetworkPing covers both directions of the reachability matrix: with
// expectReachable=true the server must answer every probe, with
// expectReachable=false (isolated network contexts) any reply at all is a
// failure.
func buildNetworkPing(cc *runner.CaseContext) (*runner.TestCase, error) {
	nic := cc.Params.Get("nicName", "")
	pingIP := cc.Params.Get("serverPingIP", "")
	expectReachable, err := cc.Params.Bool("expectReachable")
	if err != nil {
		return nil, err
	}
	count, err := cc.Params.IntOr("pingCount", defaultPingCount)
	if err != nil {
		return nil, err
	}

	client := cc.Roles.Target("client")

	return &runner.TestCase{
		Name: "network-ping",
		Setup: []runner.SetupStep{
			{
				Name:    "verify client nic",
				Role:    "client",
				Command: fmt.Sprintf("ip link show %s", nic),
			},
		},
		Checks: []checks.Check{
			{
				Name: fmt.Sprintf("ping %s", pingIP),
				Fn: func(ctx context.Context) (bool, string, error) {
					cmd := fmt.Sprintf("ping -I %s -c %d -W 2 %s", nic, count, pingIP)
					res, err := cc.Executor.Execute(ctx, client, cmd, cc.Timeout)
					if err != nil {
						return false, "", err
					}

					stats, perr := parsePingStats(res.Stdout)
					if perr != nil {
						// ping exits without a summary when the network is
						// entirely absent ("Network is unreachable")
						if !expectReachable {
							return true, fmt.Sprintf("%s is unreachable as intended (ping exited %d)", pingIP, res.ExitCode), nil
						}
						return false, fmt.Sprintf("ping to %s was not successful: %v", pingIP, perr), nil
					}

					if expectReachable {
						if stats.Transmitted > 0 && stats.Received == stats.Transmitted {
							return true, fmt.Sprintf("%d/%d replies from %s", stats.Received, stats.Transmitted, pingIP), nil
						}
						return false, fmt.Sprintf("ping to %s was not successful: %d packets transmitted, %d received",
							pingIP, stats.Transmitted, stats.Received), nil
					}
					if stats.Received == 0 {
						return true, fmt.Sprintf("%s is unreachable as intended (%d packets transmitted, 0 received)",
							pingIP, stats.Transmitted), nil
					}
					return false, fmt.Sprintf("isolation ping to %s was not successful: expected zero replies, received %d of %d",
						pingIP, stats.Received, stats.Transmitted), nil
				},
			},
		},
	}, nil
}
