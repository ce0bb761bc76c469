package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLimiter(clock *fakeClock, rps float64, burst int) *Limiter {
	l := NewLimiter("congress", rps, burst)
	l.now = clock.Now
	l.sleep = func(ctx context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}
	return l
}

func TestLimiter_DefaultBurst(t *testing.T) {
	l := NewLimiter("x", 10, -1)
	if l.Stats().Burst != 5 {
		t.Errorf("expected default burst 5, got %d", l.Stats().Burst)
	}
}

func TestLimiter_Conservation(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 1, 3)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow() {
			allowed++
		}
	}

	if allowed != 3 {
		t.Errorf("expected burst of 3 within one refill period, got %d", allowed)
	}
	stats := l.Stats()
	if stats.TotalAllowed+stats.TotalDenied != 10 {
		t.Errorf("allowed+denied = %d, want 10", stats.TotalAllowed+stats.TotalDenied)
	}
	if stats.TotalAllowed != 3 || stats.TotalDenied != 7 {
		t.Errorf("unexpected counters: %+v", stats)
	}
}

func TestLimiter_Refill(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 2, 1)

	if !l.Allow() {
		t.Fatal("first call should be allowed")
	}
	if l.Allow() {
		t.Fatal("second call should be denied")
	}
	if got := l.RetryAfter(); got != 500*time.Millisecond {
		t.Errorf("expected retry after 500ms, got %s", got)
	}

	clock.Advance(500 * time.Millisecond)
	if !l.Allow() {
		t.Error("expected a token after refill")
	}
}

func TestLimiter_AcquireWaits(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 1, 1)
	l.Allow()

	start := clock.Now()
	if err := l.Acquire(context.Background(), 1, 5*time.Second); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if waited := clock.Now().Sub(start); waited < time.Second {
		t.Errorf("expected to wait about 1s, waited %s", waited)
	}
}

func TestLimiter_AcquireTimeout(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 0.1, 1)
	l.Allow()

	err := l.Acquire(context.Background(), 1, time.Second)
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if limited.RetryAfter <= time.Second {
		t.Errorf("expected retry-after beyond the timeout, got %s", limited.RetryAfter)
	}
	if !IsExhausted(err) {
		t.Error("rate limit error should classify as exhaustion")
	}
}
