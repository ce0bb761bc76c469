package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimiterStats is a snapshot of limiter counters
type LimiterStats struct {
	Name         string  `json:"name"`
	Rate         float64 `json:"requests_per_second"`
	Burst        int     `json:"burst"`
	Tokens       float64 `json:"tokens"`
	TotalAllowed int64   `json:"total_allowed"`
	TotalDenied  int64   `json:"total_denied"`
}

// Limiter is a token bucket for one named dependency
type Limiter struct {
	name    string
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	allowed atomic.Int64
	denied  atomic.Int64
}

// NewLimiter creates a token bucket refilling at requestsPerSecond up to burst tokens
func NewLimiter(name string, requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Name returns the dependency name
func (l *Limiter) Name() string {
	return l.name
}

// Allow takes one token if available
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN takes cost tokens if available. Every call counts as exactly one
// allowed or one denied decision.
func (l *Limiter) AllowN(cost int) bool {
	if l.limiter.AllowN(l.now(), cost) {
		l.allowed.Add(1)
		return true
	}
	l.denied.Add(1)
	rateLimitDenied.WithLabelValues(l.name).Inc()
	return false
}

// RetryAfter returns the wait until one token is available
func (l *Limiter) RetryAfter() time.Duration {
	return l.retryAfterN(1)
}

func (l *Limiter) retryAfterN(cost int) time.Duration {
	tokens := l.limiter.TokensAt(l.now())
	deficit := float64(cost) - tokens
	if deficit <= 0 {
		return 0
	}
	perSecond := float64(l.limiter.Limit())
	if perSecond <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(deficit / perSecond * float64(time.Second))
}

// Acquire polls until cost tokens are available or timeout elapses, then fails
// with a RateLimitError carrying the suggested wait. The outcome counts once.
func (l *Limiter) Acquire(ctx context.Context, cost int, timeout time.Duration) error {
	deadline := l.now().Add(timeout)
	for {
		now := l.now()
		if l.limiter.AllowN(now, cost) {
			l.allowed.Add(1)
			return nil
		}

		wait := l.retryAfterN(cost)
		remaining := deadline.Sub(now)
		if remaining <= 0 || wait > remaining || cost > l.limiter.Burst() {
			l.denied.Add(1)
			rateLimitDenied.WithLabelValues(l.name).Inc()
			return &RateLimitError{Dependency: l.name, RetryAfter: wait}
		}

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Stats returns counters and the current token level
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		Name:         l.name,
		Rate:         float64(l.limiter.Limit()),
		Burst:        l.limiter.Burst(),
		Tokens:       l.limiter.TokensAt(l.now()),
		TotalAllowed: l.allowed.Load(),
		TotalDenied:  l.denied.Load(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
