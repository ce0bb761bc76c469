package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// Dependencies holds one breaker and at most one limiter per named external
// dependency. It is created once at startup and passed to whatever makes
// outbound calls, so agents sharing a dependency share its state.
type Dependencies struct {
	cfg model.ResilienceConfig
	log logrus.FieldLogger

	mu       sync.RWMutex
	breakers map[string]*Breaker
	limiters map[string]*Limiter
}

// NewDependencies creates an empty registry
func NewDependencies(cfg model.ResilienceConfig, log logrus.FieldLogger) *Dependencies {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dependencies{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*Breaker),
		limiters: make(map[string]*Limiter),
	}
}

// Breaker returns the breaker for a dependency, creating it on first use
func (d *Dependencies) Breaker(name string) *Breaker {
	d.mu.RLock()
	b, exists := d.breakers[name]
	d.mu.RUnlock()

	if exists {
		return b
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := d.breakers[name]; exists {
		return b
	}

	b = NewBreaker(d.breakerConfig(name))
	d.breakers[name] = b
	breakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Limiter returns the limiter for a dependency, or nil when it has no quota
func (d *Dependencies) Limiter(name string) *Limiter {
	dep := d.cfg.Dependencies[name]
	if dep.RequestsPerSecond <= 0 {
		return nil
	}

	d.mu.RLock()
	l, exists := d.limiters[name]
	d.mu.RUnlock()

	if exists {
		return l
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if l, exists := d.limiters[name]; exists {
		return l
	}

	l = NewLimiter(name, dep.RequestsPerSecond, dep.Burst)
	d.limiters[name] = l
	return l
}

func (d *Dependencies) breakerConfig(name string) BreakerConfig {
	dep := d.cfg.Dependencies[name]
	cfg := BreakerConfig{
		Name:             name,
		FailureThreshold: firstPositive(dep.FailureThreshold, d.cfg.FailureThreshold),
		SuccessThreshold: firstPositive(dep.SuccessThreshold, d.cfg.SuccessThreshold),
		OpenTimeout:      firstPositiveDuration(dep.OpenTimeout, d.cfg.OpenTimeout),
		HalfOpenMaxCalls: firstPositive(dep.HalfOpenMaxCalls, d.cfg.HalfOpenMaxCalls),
	}
	cfg.OnStateChange = func(name string, from, to State) {
		RecordBreakerTransition(name, from, to)
		d.log.WithFields(logrus.Fields{
			"dependency": name,
			"from":       from.String(),
			"to":         to.String(),
		}).Warn("circuit breaker state change")
	}
	return cfg
}

func (d *Dependencies) callTimeout(name string) time.Duration {
	return firstPositiveDuration(d.cfg.Dependencies[name].CallTimeout, d.cfg.CallTimeout)
}

// Guard runs op as one outbound call to a dependency: quota first, then the
// breaker, then a hard per-call timeout
func (d *Dependencies) Guard(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if l := d.Limiter(name); l != nil {
		maxWait := d.cfg.Dependencies[name].MaxWait
		if maxWait > 0 {
			if err := l.Acquire(ctx, 1, maxWait); err != nil {
				return err
			}
		} else if !l.Allow() {
			return &RateLimitError{Dependency: name, RetryAfter: l.RetryAfter()}
		}
	}

	timeout := d.callTimeout(name)
	return d.Breaker(name).Call(func() error {
		return WithTimeout(ctx, name, timeout, op)
	})
}

// Breakers returns a snapshot of every breaker, sorted by name
func (d *Dependencies) Breakers() []BreakerStats {
	d.mu.RLock()
	out := make([]BreakerStats, 0, len(d.breakers))
	for _, b := range d.breakers {
		out = append(out, b.Stats())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Limiters returns a snapshot of every limiter, sorted by name
func (d *Dependencies) Limiters() []LimiterStats {
	d.mu.RLock()
	out := make([]LimiterStats, 0, len(d.limiters))
	for _, l := range d.limiters {
		out = append(out, l.Stats())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetBreaker forces a known breaker back to CLOSED
func (d *Dependencies) ResetBreaker(name string) bool {
	d.mu.RLock()
	b, exists := d.breakers[name]
	d.mu.RUnlock()
	if !exists {
		return false
	}
	b.Reset()
	return true
}

// RetryPolicy builds the fetch retry policy from config
func (d *Dependencies) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	r := d.cfg.Retry
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelay > 0 {
		p.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay
	}
	if r.ExponentialBase > 0 {
		p.ExponentialBase = r.ExponentialBase
	}
	if r.JitterFraction >= 0 {
		p.JitterFraction = r.JitterFraction
	}
	return p
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
