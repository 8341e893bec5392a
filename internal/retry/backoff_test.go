package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		Multiplier: 2,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	assert.Equal(t, RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Jitter:     true,
		LogRetries: true,
	}, DefaultRetryConfig())
}

func TestRetryWithBackoff(t *testing.T) {
	cases := []struct {
		name         string
		failures     int
		maxRetries   int
		wantSuccess  bool
		wantAttempts int
	}{
		{name: "first try", failures: 0, maxRetries: 3, wantSuccess: true, wantAttempts: 1},
		{name: "recovers", failures: 2, maxRetries: 3, wantSuccess: true, wantAttempts: 3},
		{name: "exhausted", failures: 10, maxRetries: 3, wantSuccess: false, wantAttempts: 4},
		{name: "no retries", failures: 1, maxRetries: 0, wantSuccess: false, wantAttempts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			result := RetryWithBackoff(context.Background(), quickConfig(tc.maxRetries), func() error {
				calls++
				if calls <= tc.failures {
					return errors.New("upstream responded 503")
				}
				return nil
			}, nil)

			assert.Equal(t, tc.wantSuccess, result.Success)
			assert.Equal(t, tc.wantAttempts, result.Attempts)
			assert.Equal(t, tc.wantAttempts, calls)
			if !tc.wantSuccess {
				assert.EqualError(t, result.LastError, "upstream responded 503")
			}
		})
	}
}

func TestRetryWithBackoff_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	calls := 0
	done := make(chan RetryResult, 1)
	go func() {
		done <- RetryWithBackoff(ctx, cfg, func() error {
			calls++
			return errors.New("connection reset")
		}, nil)
	}()
	cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.LastError, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}

func TestRetryWithBackoff_PermanentErrorStopsImmediately(t *testing.T) {
	cause := errors.New("400 bad request")
	calls := 0
	result := RetryWithBackoff(context.Background(), quickConfig(5), func() error {
		calls++
		return Permanent(cause)
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Same(t, cause, result.LastError)
	assert.Empty(t, result.RetryReasons)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	wrapped := Permanent(context.Canceled)
	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, context.Canceled)
	assert.False(t, IsPermanent(errors.New("plain")))
}

func TestRetryWithBackoffAndReason_RecordsReasons(t *testing.T) {
	reasons := []string{"transport_error", "status_502"}
	calls := 0
	result := RetryWithBackoffAndReason(context.Background(), quickConfig(3), func() (error, string) {
		calls++
		if calls <= len(reasons) {
			return errors.New("failed"), reasons[calls-1]
		}
		return nil, ""
	}, nil)

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, reasons, result.RetryReasons)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2}

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for attempt, w := range want {
		assert.Equal(t, w, calculateDelay(cfg, attempt), "attempt %d", attempt)
	}
}

func TestCalculateDelay_JitterStaysWithinTenPercent(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, Jitter: true}

	for i := 0; i < 200; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}
