// Package poll provides the bounded waiting primitives used wherever the
// tool has to wait for the browser or the download manager: a
// poll-until-condition loop and a fixed-count, fixed-delay retry.
//
// Both are built on constant backoffs; no wait is ever unbounded.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultInterval is used when a caller passes a non-positive interval.
const DefaultInterval = 250 * time.Millisecond

// ErrTimeout is returned by Until when the condition did not hold in time.
var ErrTimeout = errors.New("poll: condition not met before timeout")

// Probe reports whether the awaited condition holds. A non-nil error stops
// polling immediately.
type Probe func(ctx context.Context) (bool, error)

var errNotYet = errors.New("poll: not yet")

// Until calls probe immediately and then every interval until it reports
// true, returns an error, or timeout elapses.
func Until(ctx context.Context, timeout, interval time.Duration, probe Probe) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), tctx)
	err := backoff.Retry(func() error {
		ok, err := probe(tctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		return nil
	}, b)
	if err == nil {
		return nil
	}
	if errors.Is(err, errNotYet) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return fmt.Errorf("%w (%s)", ErrTimeout, timeout)
	}
	return err
}

// Retry runs op up to attempts times, waiting delay between attempts.
// op receives the zero-based attempt number. The last error is returned
// when every attempt fails.
func Retry(ctx context.Context, attempts int, delay time.Duration, op func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op(attempt)
		attempt++
		return err
	}, b)
}
