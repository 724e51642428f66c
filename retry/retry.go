// Package retry wraps store calls in bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop. Retries is the number of attempts after the first.
type Policy struct {
	Retries  int
	Initial  time.Duration
	MaxDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Retries: 2, Initial: 100 * time.Millisecond, MaxDelay: time.Second}
}

// Do runs op until it succeeds, returns an error for which retryable is false,
// the retry budget is spent or ctx is done. The last error is returned as is.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		eb.InitialInterval = p.Initial
	}
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	eb.MaxElapsedTime = 0

	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
