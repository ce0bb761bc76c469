package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures Retry
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterFraction  float64

	// Retryable limits retries to matching errors. Nil retries everything.
	Retryable func(error) bool
	// NonRetryable wins over Retryable. Nil defaults to IsExhausted.
	NonRetryable func(error) bool

	// OnRetry observes each scheduled retry
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the policy used for outbound fetches
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		JitterFraction:  0.1,
		Retryable:       IsTransient,
	}
}

// retrySleepFunc is swapped out in tests
var retrySleepFunc = sleepContext

// Backoff returns the un-jittered delay before the retry following attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}
	delay := float64(p.BaseDelay) * math.Pow(base, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p RetryPolicy) jittered(delay time.Duration) time.Duration {
	if p.JitterFraction <= 0 || delay <= 0 {
		return delay
	}
	jitter := float64(delay) * p.JitterFraction * (2*rand.Float64() - 1)
	out := time.Duration(float64(delay) + jitter)
	if out < 0 {
		return 0
	}
	return out
}

func (p RetryPolicy) shouldRetry(err error) bool {
	nonRetryable := p.NonRetryable
	if nonRetryable == nil {
		nonRetryable = IsExhausted
	}
	if nonRetryable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Retry runs op until it succeeds, fails with a non-retryable error, or runs out
// of attempts. The last error is returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = retrySleepFunc
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !p.shouldRetry(err) {
			return err
		}

		delay := p.jittered(p.Backoff(attempt))
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}
