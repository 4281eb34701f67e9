package lx16a

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Default 3.
	Attempts int
	// InitialInterval is the delay before the first retry. Default 10ms.
	InitialInterval time.Duration
	// MaxInterval caps the exponential delay. Default 100ms.
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the policy used for zero fields.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	return p
}

// Retry calls fn until it succeeds, returns an error IsRetryable rejects,
// ctx is done, or the policy's attempts are used up. The last error is
// returned.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	return retry(ctx, nil, policy, fn)
}

// Retry is the package Retry that also counts retries in the bus metrics.
func (b *Bus) Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	return retry(ctx, b, policy, fn)
}

func retry(ctx context.Context, bus *Bus, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialInterval
	eb.MaxInterval = policy.MaxInterval
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.Attempts-1)), ctx)

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if bus == nil {
			return
		}
		bus.metrics.incRetries()
		bus.log.Debug("retrying", "error", err, "wait", wait)
	}

	return backoff.RetryNotify(op, b, notify)
}
