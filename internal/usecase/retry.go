package usecase

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

// RetryPolicy bounds how external calls are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// NoDelayRetryPolicy keeps the attempt budget but never sleeps.
func NoDelayRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

// Retry runs fn until it succeeds, returns a fatal error, or the attempt
// budget is spent. The last error is returned with the zero value.
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{
		Min:    policy.BaseDelay,
		Max:    policy.MaxDelay,
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if domain.IsFatal(err) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := b.Duration()
		if policy.BaseDelay <= 0 {
			delay = 0
		}
		logger.Warn("Retrying external call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, lastErr
}
