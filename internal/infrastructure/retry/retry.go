package retry

import (
	"context"
	"errors"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

// Policy retries a failing operation with a delay that grows linearly with the attempt number.
// No jitter, no circuit breaking: the last error is returned once attempts are exhausted.
type Policy struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether an error is worth another attempt; nil uses DefaultRetryable
	Retryable func(error) bool
}

// New creates a policy with the given attempts and base delay
func New(name string, maxAttempts int, delay time.Duration) Policy {
	return Policy{Name: name, MaxAttempts: maxAttempts, Delay: delay}
}

// Once is a policy that never retries
func Once(name string) Policy {
	return Policy{Name: name, MaxAttempts: 1}
}

// DefaultRetryable refuses to retry cancellation, throttling and caller errors
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *domain.RateLimitExceeded
	if errors.As(err, &rl) {
		return false
	}
	var ns *domain.StoreNotSupportedError
	if errors.As(err, &ns) {
		return false
	}
	return !errors.Is(err, domain.ErrInvalidRequest)
}

// Do runs op until it succeeds, the error is not retryable, or attempts run out
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op under policy p and returns its value
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 || !retryable(err) {
			break
		}

		wait := p.Delay * time.Duration(attempt+1)
		logrus.WithError(err).Debugf("[RETRY] %s attempt %d/%d failed, retrying in %s", p.Name, attempt+1, attempts, wait)

		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(wait):
		}
	}

	return zero, lastErr
}
