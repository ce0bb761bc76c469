package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// CircuitOpenError is returned when a breaker rejects a call
type CircuitOpenError struct {
	Dependency string
	RetryAfter time.Duration
	HalfOpen   bool // rejected because the half-open probe cap was reached
}

func (e *CircuitOpenError) Error() string {
	if e.HalfOpen {
		return fmt.Sprintf("circuit breaker %q is HALF_OPEN and probe capacity is exhausted", e.Dependency)
	}
	return fmt.Sprintf("circuit breaker %q is OPEN (retry after %s)", e.Dependency, e.RetryAfter.Round(time.Millisecond))
}

// RateLimitError is returned when a limiter has no tokens in time
type RateLimitError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q (retry after %s)", e.Dependency, e.RetryAfter.Round(time.Millisecond))
}

// TimeoutError is returned when a guarded call exceeds its hard timeout
type TimeoutError struct {
	Dependency string
	After      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to %q timed out after %s", e.Dependency, e.After)
}

// HTTPStatusError reports a non-2xx response
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsExhausted reports whether err means a dependency refused the call (open breaker or no quota)
func IsExhausted(err error) bool {
	var open *CircuitOpenError
	var limited *RateLimitError
	return errors.As(err, &open) || errors.As(err, &limited)
}

// RetryAfterOf extracts the suggested wait from an exhaustion error
func RetryAfterOf(err error) (time.Duration, bool) {
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return open.RetryAfter, true
	}
	var limited *RateLimitError
	if errors.As(err, &limited) {
		return limited.RetryAfter, true
	}
	return 0, false
}

// IsTransient classifies network failures, timeouts, 5xx and 429 responses as transient
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsExhausted(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// CountsAsFailure is the default breaker classification: everything except
// caller cancellation and 4xx responses (other than 429) counts against the dependency
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
