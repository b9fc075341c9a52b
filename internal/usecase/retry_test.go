package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

func TestRetry_SucceedsWithinBudget(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), NoDelayRetryPolicy(), zap.NewNop(), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), NoDelayRetryPolicy(), zap.NewNop(), "op", func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"partial"}, fmt.Errorf("attempt %d: %w", calls, errTransient)
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "attempt 3")
	assert.Nil(t, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_FatalErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), NoDelayRetryPolicy(), zap.NewNop(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("submit: %w", domain.ErrAuthentication)
	})
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	_, err := Retry(ctx, policy, zap.NewNop(), "op", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, errTransient))
	assert.Equal(t, 1, calls)
}
