package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op with bounded exponential backoff. Failures classified as
// permanent return immediately; transient failures are retried up to
// policy.MaxAttempts total invocations, sleeping
// BaseDelay * Multiplier^(n-1) before retry n. The delay suspends only the
// calling goroutine. Returns the result, the number of invocations made,
// and the last error once attempts are exhausted.
func Retry[T any](ctx context.Context, policy RetryPolicy, classify ClassifyFunc, op func(context.Context) (T, error)) (T, int, error) {
	return retryWithTimer[T](ctx, policy, classify, op, nil)
}

// retryWithTimer exists so tests can observe the exact delay schedule.
func retryWithTimer[T any](ctx context.Context, policy RetryPolicy, classify ClassifyFunc, op func(context.Context) (T, error), timer backoff.Timer) (T, int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if classify == nil {
		classify = ClassifyTransfer
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.BaseDelay
	expo.Multiplier = policy.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxInterval = 24 * time.Hour
	expo.MaxElapsedTime = 0

	var attempts int
	wrapped := func() (T, error) {
		attempts++
		value, err := op(ctx)
		if err != nil && classify(err) == ClassPermanent {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	policyBackoff := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)
	value, err := backoff.RetryNotifyWithTimerAndData(wrapped, policyBackoff, nil, timer)
	return value, attempts, err
}
