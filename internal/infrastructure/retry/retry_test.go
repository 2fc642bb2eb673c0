package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDo(t *testing.T) {
	errTransient := errors.New("transient")

	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{name: "succeeds first try", failures: 0, attempts: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, err: errTransient, attempts: 3, wantCalls: 3},
		{name: "exhausts attempts", failures: 5, err: errTransient, attempts: 3, wantCalls: 3, wantErr: true},
		{name: "rate limit is not retried", failures: 5, err: &domain.RateLimitExceeded{WaitSeconds: 1}, attempts: 3, wantCalls: 1, wantErr: true},
		{name: "unsupported store is not retried", failures: 5, err: &domain.StoreNotSupportedError{Store: "x"}, attempts: 3, wantCalls: 1, wantErr: true},
		{name: "zero attempts still runs once", failures: 0, attempts: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := New("test", tt.attempts, time.Millisecond)

			err := p.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.err, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDoReturnsValue(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), New("value", 3, time.Millisecond), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first call fails")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestDoDelayGrowsLinearly(t *testing.T) {
	start := time.Now()
	_ = New("linear", 3, 20*time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		return errors.New("always")
	})

	// 20ms after the first attempt, 40ms after the second
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := New("cancel", 5, time.Hour).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fails")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnceNeverRetries(t *testing.T) {
	calls := 0
	_ = Once("once").Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fails")
	})
	assert.Equal(t, 1, calls)
}
