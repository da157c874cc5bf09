package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/virtinfra/guest-acceptor/checks"
	"github.com/virtinfra/guest-acceptor/runner"
)

const (
	clocksourcePath = "/sys/devices/system/clocksource/clocksource0/current_clocksource"

	// Boot messages can lag behind the console, so the dmesg check polls
	dmesgPollInterval = 5 * time.Second
	dmesgPollAttempts = 6
)

func clocksourceDefinition() runner.Definition {
	return runner.Definition{
		Test:           "clocksource",
		Description:    "Kernel selected the expected timekeeping source",
		RequiredParams: []string{"expected"},
		Roles:          []string{"node"},
		Build:          buildClocksource,
	}
}

// buildClocksource verifies the kernel picked the hypervisor clocksource.
// An optional fallback (such as acpi_pm) is accepted as a pass, with the
// detail noting the substitution.
func buildClocksource(cc *runner.CaseContext) (*runner.TestCase, error) {
	expected := cc.Params.Get("expected", "")
	fallback := cc.Params.Get("fallback", "")
	interval, err := cc.Params.DurationOr("dmesgPollInterval", dmesgPollInterval)
	if err != nil {
		return nil, err
	}
	attempts, err := cc.Params.IntOr("dmesgPollAttempts", dmesgPollAttempts)
	if err != nil {
		return nil, err
	}

	node := cc.Roles.Target("node")

	return &runner.TestCase{
		Name: "clocksource",
		Checks: []checks.Check{
			{
				Name: "current clocksource",
				Fn: func(ctx context.Context) (bool, string, error) {
					res, err := cc.Executor.Execute(ctx, node, "cat "+clocksourcePath, cc.Timeout)
					if err != nil {
						return false, "", err
					}
					if res.ExitCode != 0 {
						return false, fmt.Sprintf("cannot read %s: %s", clocksourcePath, snippet(res.Stderr)), nil
					}
					actual := strings.TrimSpace(res.Stdout)
					if actual == expected {
						return true, fmt.Sprintf("clocksource is %s", actual), nil
					}
					if fallback != "" && actual == fallback {
						return true, fmt.Sprintf("fallback clocksource %s in use (expected %s)", actual, expected), nil
					}
					return false, fmt.Sprintf("expected clocksource %s, found %s", expected, actual), nil
				},
			},
			{
				Name: "clocksource registered",
				Fn: func(ctx context.Context) (bool, string, error) {
					observed, err := checks.WaitFor(ctx, "clocksource in dmesg", interval, uint64(attempts),
						func(ctx context.Context) (bool, string, error) {
							res, err := cc.Executor.Execute(ctx, node, "dmesg | grep -i clocksource", cc.Timeout)
							if err != nil {
								return false, "", err
							}
							if strings.Contains(res.Stdout, expected) {
								return true, matchingLine(res.Stdout, expected), nil
							}
							return false, lastLine(res.Stdout), nil
						})
					if err != nil {
						return false, "", err
					}
					return true, observed, nil
				},
			},
		},
	}, nil
}
