package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { retrySleepFunc = orig })
	return &delays
}

func TestRetry_BackoffSchedule(t *testing.T) {
	delays := captureSleeps(t)
	p := RetryPolicy{
		MaxAttempts:     4,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        300 * time.Millisecond,
		ExponentialBase: 2,
	}

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errBoom
	})

	if !errors.Is(err, errBoom) {
		t.Fatalf("expected last error unchanged, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay %d: expected %s, got %s", i, d, (*delays)[i])
		}
	}
}

func TestRetry_JitterBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, ExponentialBase: 2, JitterFraction: 0.1}
	for i := 0; i < 200; i++ {
		d := p.jittered(p.Backoff(2))
		if d < 1800*time.Millisecond || d > 2200*time.Millisecond {
			t.Fatalf("jittered delay %s outside ±10%% of 2s", d)
		}
	}
}

func TestRetry_SucceedsEventually(t *testing.T) {
	captureSleeps(t)
	var observed []int
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		OnRetry:     func(attempt int, err error, delay time.Duration) { observed = append(observed, attempt) },
	}

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("unexpected retry callbacks: %v", observed)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	delays := captureSleeps(t)
	p := DefaultRetryPolicy()

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return &HTTPStatusError{URL: "https://example.gov", StatusCode: 404}
	})

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 404 {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if calls != 1 || len(*delays) != 0 {
		t.Errorf("expected a single attempt, got %d calls and %d sleeps", calls, len(*delays))
	}
}

func TestRetry_ExhaustionIsNotRetried(t *testing.T) {
	captureSleeps(t)
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	_ = Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return &CircuitOpenError{Dependency: "gao", RetryAfter: time.Minute}
	})
	if calls != 1 {
		t.Errorf("expected open-circuit error not to be retried, got %d calls", calls)
	}
}

func TestRetry_TransientServerError(t *testing.T) {
	captureSleeps(t)
	p := DefaultRetryPolicy()

	calls := 0
	_ = Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return &HTTPStatusError{StatusCode: 503}
	})
	if calls != p.MaxAttempts {
		t.Errorf("expected %d attempts for 503, got %d", p.MaxAttempts, calls)
	}
}
