package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/maklermate/maklermate-api/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(maxRetries int) retry.Options {
	return retry.Options{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &retry.StatusError{Code: 503}
		}
		return nil
	}, fastOptions(3))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedReturnsLastErrorUnchanged(t *testing.T) {
	calls := 0
	var last error
	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		last = &retry.StatusError{Code: 502, Body: fmt.Sprintf("attempt %d", calls)}
		return last
	}, fastOptions(2))

	assert.Equal(t, 3, calls, "one attempt plus two retries")
	assert.Same(t, last, err)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	want := &retry.StatusError{Code: 400}
	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		return want
	}, fastOptions(5))

	assert.Equal(t, 1, calls)
	assert.Same(t, want, err)
}

func TestDo_CustomPredicate(t *testing.T) {
	errBusy := errors.New("busy")
	calls := 0
	opts := fastOptions(4)
	opts.Retryable = func(err error) bool { return errors.Is(err, errBusy) }

	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("lock: %w", errBusy)
	}, opts)

	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, errBusy)
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		return retry.ErrNoResponse
	}, fastOptions(0))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, retry.ErrNoResponse)
}

func TestDo_NegativeRetriesMeanSingleAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func(context.Context) error {
		calls++
		return &retry.StatusError{Code: 503}
	}, fastOptions(-2))

	assert.Equal(t, 1, calls)
	assert.Error(t, err)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := retry.Options{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry.Do(ctx, func(context.Context) error {
			calls++
			return retry.ErrNoResponse
		}, opts)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDelay(t *testing.T) {
	opts := retry.Options{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	tests := []struct {
		attempt int
		r       float64
		want    time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{2, 0, 4 * time.Second},
		{3, 0, 8 * time.Second},
		{4, 0, 10 * time.Second},
		{50, 0, 10 * time.Second},
		{5000, 0, 10 * time.Second},
		{0, 0.5, 1150 * time.Millisecond},
		{10, 0.5, 11500 * time.Millisecond},
		{1, -1, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d r %.3f", tt.attempt, tt.r), func(t *testing.T) {
			assert.Equal(t, tt.want, retry.Delay(opts, tt.attempt, tt.r))
		})
	}
}

func TestNewBackoff_JitterIsBounded(t *testing.T) {
	opts := retry.Options{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	b := retry.NewBackoff(opts)

	for attempt := 0; attempt < 20; attempt++ {
		d, stop := b.Next()
		require.False(t, stop)

		floor := retry.Delay(opts, attempt, 0)
		assert.GreaterOrEqual(t, d, floor)
		assert.Less(t, float64(d), float64(floor)*(1+retry.JitterFraction))
		assert.LessOrEqual(t, float64(d), float64(opts.MaxDelay)*(1+retry.JitterFraction))
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no response", retry.ErrNoResponse, true},
		{"wrapped no response", fmt.Errorf("call: %w", retry.ErrNoResponse), true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"408", &retry.StatusError{Code: 408}, true},
		{"429", &retry.StatusError{Code: 429}, true},
		{"500", &retry.StatusError{Code: 500}, true},
		{"502", &retry.StatusError{Code: 502}, true},
		{"503", &retry.StatusError{Code: 503}, true},
		{"504", &retry.StatusError{Code: 504}, true},
		{"400", &retry.StatusError{Code: 400}, false},
		{"401", &retry.StatusError{Code: 401}, false},
		{"404", &retry.StatusError{Code: 404}, false},
		{"cancelled", context.Canceled, false},
		{"cancelled request", &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsTransient(tt.err))
		})
	}
}
