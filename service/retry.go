package service

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"coa-docket/models"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// RetryPolicy is the run-scoped bounded retry with exponential backoff applied to
// page fetches, document downloads and analysis calls. Only errors marked
// transient are retried.
type RetryPolicy struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at one second
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
	}
}

// Do calls fn until it succeeds, fails with a non-transient error, the context
// ends or MaxAttempts is reached. It returns how many retries were performed.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt uint, err error)) (int, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		// retry-go treats zero as unlimited
		attempts = 1
	}

	calls := 0
	err := retry.Do(
		func() error {
			calls++
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.InitialDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(models.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			if onRetry != nil {
				onRetry(n+1, err)
			}
		}),
	)

	retries := calls - 1
	if retries < 0 {
		retries = 0
	}
	return retries, err
}

// waitLimiter blocks until the shared upstream limiter allows one more request
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
