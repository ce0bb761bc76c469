package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/signalwatch/internal/logging"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
)

func newTestFetcher(t *testing.T, rcfg model.ResilienceConfig) (*Fetcher, *resilience.Dependencies) {
	t.Helper()
	deps := resilience.NewDependencies(rcfg, logging.Discard())
	f := NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test-agent", MaxBodyBytes: 1 << 20}, deps, logging.Discard())
	// Override sleep for fast tests
	f.retry.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f, deps
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, "<rss></rss>")
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(t, model.DefaultConfig().Resilience)
	result, err := fetcher.Fetch(context.Background(), "", server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result.Body) != "<rss></rss>" {
		t.Errorf("Unexpected body: %s", result.Body)
	}
	if result.ContentType != "application/rss+xml" {
		t.Errorf("Unexpected content type: %s", result.ContentType)
	}
}

func TestFetch_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(t, model.DefaultConfig().Resilience)
	result, err := fetcher.Fetch(context.Background(), "", server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if string(result.Body) != "OK" {
		t.Errorf("Unexpected body: %s", result.Body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetch_TimedOutAttemptDoesNotLeak(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
			}
			_, _ = fmt.Fprint(w, "stale")
			return
		}
		_, _ = fmt.Fprint(w, "fresh")
	}))
	defer server.Close()

	rcfg := model.DefaultConfig().Resilience
	rcfg.CallTimeout = 50 * time.Millisecond
	fetcher, _ := newTestFetcher(t, rcfg)

	result, err := fetcher.Fetch(context.Background(), "", server.URL)
	if err != nil {
		t.Fatalf("Expected success on retry, got %v", err)
	}
	if string(result.Body) != "fresh" {
		t.Errorf("Expected body from the second attempt, got %s", result.Body)
	}
}

func TestFetch_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, deps := newTestFetcher(t, model.DefaultConfig().Resilience)
	_, err := fetcher.Fetch(context.Background(), "feeds", server.URL)
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	// 404 is not retryable, so should fail immediately
	if got := err.Error(); got != "unexpected status: 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
	if deps.Breaker("feeds").Stats().TotalFailures != 0 {
		t.Error("404 should not count against the breaker")
	}
}

func TestFetch_BreakerOpensAcrossRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rcfg := model.DefaultConfig().Resilience
	rcfg.FailureThreshold = 2
	rcfg.Retry.MaxAttempts = 5
	fetcher, _ := newTestFetcher(t, rcfg)

	_, err := fetcher.Fetch(context.Background(), "feeds", server.URL)
	var open *resilience.CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("Expected circuit open error, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected breaker to stop after 2 requests, got %d", attempts.Load())
	}
}

func TestFetch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()

	rcfg := model.DefaultConfig().Resilience
	rcfg.Dependencies = map[string]model.DependencyConfig{
		"quota": {RequestsPerSecond: 0.01, Burst: 1},
	}
	fetcher, _ := newTestFetcher(t, rcfg)

	if _, err := fetcher.Fetch(context.Background(), "quota", server.URL); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	_, err := fetcher.Fetch(context.Background(), "quota", server.URL)
	var limited *resilience.RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
}

func TestDependencyFor(t *testing.T) {
	if got := DependencyFor("https://www.gao.gov/rss/reports.xml"); got != "www.gao.gov" {
		t.Errorf("DependencyFor = %q", got)
	}
}
