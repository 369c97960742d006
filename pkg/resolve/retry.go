package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/secondary"
)

// Retrier decides whether a caught error should be retried, and with what
// backoff schedule.
type Retrier interface {
	// Retryable classifies an error.
	Retryable(err error) bool

	// Backoff returns a fresh backoff schedule for one retry loop.
	Backoff() backoff.BackOff
}

const (
	defaultRetryBase     = 100 * time.Millisecond
	defaultRetryAttempts = 3
	// Delays grow as base * 4^attempt.
	retryMultiplier = 4
)

// DefaultRetrier retries HTTP request failures only. Everything else is
// rethrown unchanged.
type DefaultRetrier struct {
	// MaxAttempts bounds the number of retries; 0 means the default.
	MaxAttempts uint64
	// BaseDelay is the first retry delay; 0 means the default.
	BaseDelay time.Duration
}

func (r DefaultRetrier) Retryable(err error) bool {
	var reqErr *secondary.HTTPRequestError
	return errors.As(err, &reqErr)
}

func (r DefaultRetrier) Backoff() backoff.BackOff {
	return newExponential(r.BaseDelay, r.MaxAttempts)
}

// ProxyRetrier retries remote errors whose retryable flag is set.
type ProxyRetrier struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
}

func (r ProxyRetrier) Retryable(err error) bool {
	var remErr *remote.Error
	return errors.As(err, &remErr) && remErr.Retryable
}

func (r ProxyRetrier) Backoff() backoff.BackOff {
	return newExponential(r.BaseDelay, r.MaxAttempts)
}

func newExponential(base time.Duration, attempts uint64) backoff.BackOff {
	if base == 0 {
		base = defaultRetryBase
	}
	if attempts == 0 {
		attempts = defaultRetryAttempts
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = base * 256
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, attempts)
}

// withRetry runs op, retrying per the retrier's policy. Cancellation wins
// over retries; a nil retrier runs op once.
func withRetry(ctx context.Context, r Retrier, op func() error) error {
	if r == nil {
		return op()
	}
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var cancelled *async.CancelledError
		if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		if !r.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(r.Backoff(), ctx))
}
