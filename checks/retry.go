package checks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/virtinfra/guest-acceptor/types"
)

// Probe observes an asynchronous remote condition. It reports whether the
// condition holds yet, what was observed (kept for diagnostics), and any
// error that makes further polling pointless.
type Probe func(ctx context.Context) (done bool, observed string, err error)

var errNotDone = errors.New("condition not met")

// WaitFor polls probe at a fixed interval until the condition holds, the
// attempt budget is spent, or ctx is cancelled. On success it returns the
// final observation. When the budget runs out it returns the last observed
// value alongside a TimeoutError carrying it, so the failure detail shows
// what the wait was still seeing. A probe error aborts the wait immediately.
func WaitFor(ctx context.Context, what string, interval time.Duration, attempts uint64, probe Probe) (string, error) {
	if attempts == 0 {
		attempts = 1
	}

	var last string
	operation := func() error {
		done, observed, err := probe(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = observed
		if !done {
			return errNotDone
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), attempts-1),
		ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, errNotDone) {
			return last, types.NewTimeoutError(what, last)
		}
		return last, err
	}
	return last, nil
}
