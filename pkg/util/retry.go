package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxRetries counts retries after the first attempt.
	MaxRetries uint64
}

// StoreRetryOptions returns retry options for persistence writes.
func StoreRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  10 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxRetries:      4,
	}
}

// NewBackOff builds the exponential policy described by opts. Jitter is disabled
// so the schedule is exactly InitialInterval * 2^n, capped at MaxInterval.
func NewBackOff(ctx context.Context, opts RetryOptions) backoff.BackOffContext {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
	), opts.MaxRetries)
	return backoff.WithContext(b, ctx)
}

// WithRetry executes the given operation with exponential backoff using provided options.
// Wrap an error in backoff.Permanent to stop retrying.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	backoffOperation := func() error {
		var err error
		result, err = operation()
		return err
	}

	err := backoff.Retry(backoffOperation, NewBackOff(ctx, opts))
	return result, err
}

// Retry is WithRetry for operations without a result.
func Retry(ctx context.Context, operation func() error, opts RetryOptions) error {
	_, err := WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts)
	return err
}
