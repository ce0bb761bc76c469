package resilience

import (
	"sync"
	"time"
)

// State is a circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // consecutive half-open successes that close it
	OpenTimeout      time.Duration // how long to stay open before probing
	HalfOpenMaxCalls int           // concurrent probes admitted while half-open

	// IsFailure decides which errors count against the dependency.
	// Errors it rejects are treated like successes. Defaults to CountsAsFailure.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the breaker lock
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerConfig returns sensible defaults
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// BreakerStats is a read-only snapshot of a breaker
type BreakerStats struct {
	Name                 string        `json:"name"`
	State                string        `json:"state"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	TotalCalls           int64         `json:"total_calls"`
	TotalFailures        int64         `json:"total_failures"`
	TotalSuccesses       int64         `json:"total_successes"`
	TotalRejected        int64         `json:"total_rejected"`
	HalfOpenInFlight     int           `json:"half_open_in_flight"`
	OpenedAt             time.Time     `json:"opened_at,omitempty"`
	LastFailureAt        time.Time     `json:"last_failure_at,omitempty"`
	LastStateChangeAt    time.Time     `json:"last_state_change_at,omitempty"`
	RetryAfter           time.Duration `json:"retry_after"`
}

type transition struct {
	from, to State
}

// Breaker is a consecutive-failure circuit breaker for one dependency.
// All state changes happen under mu so concurrent callers see atomic transitions.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	// halfOpenEpoch changes on every transition, so probes admitted in an
	// earlier half-open window never release a slot in the current one
	halfOpenEpoch uint64

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64

	openedAt        time.Time
	lastFailureAt   time.Time
	lastStateChange time.Time
}

// NewBreaker creates a breaker in the CLOSED state
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	return &Breaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// Name returns the dependency name
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// Call executes fn through the breaker
func (b *Breaker) Call(fn func() error) error {
	probe, epoch, changes, err := b.admit()
	b.notify(changes)
	if err != nil {
		return err
	}

	callErr := fn()

	b.mu.Lock()
	if probe && epoch == b.halfOpenEpoch && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	if b.cfg.IsFailure(callErr) {
		changes = b.onFailure()
	} else {
		changes = b.onSuccess()
	}
	b.mu.Unlock()
	b.notify(changes)

	return callErr
}

// admit decides whether a call may proceed and reserves a half-open probe slot
func (b *Breaker) admit() (bool, uint64, []transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changes []transition
	now := b.now()

	if b.state == StateOpen {
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.cfg.OpenTimeout {
			b.totalRejected++
			return false, 0, nil, &CircuitOpenError{Dependency: b.cfg.Name, RetryAfter: b.cfg.OpenTimeout - elapsed}
		}
		changes = append(changes, b.setState(StateHalfOpen, now))
	}

	probe := false
	if b.state == StateHalfOpen {
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			b.totalRejected++
			return false, 0, changes, &CircuitOpenError{Dependency: b.cfg.Name, HalfOpen: true}
		}
		b.halfOpenInFlight++
		probe = true
	}

	b.totalCalls++
	return probe, b.halfOpenEpoch, changes, nil
}

func (b *Breaker) onSuccess() []transition {
	b.totalSuccesses++
	b.consecutiveFailures = 0

	if b.state != StateHalfOpen {
		return nil
	}
	b.consecutiveSuccesses++
	if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
		return []transition{b.setState(StateClosed, b.now())}
	}
	return nil
}

func (b *Breaker) onFailure() []transition {
	now := b.now()
	b.totalFailures++
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			return []transition{b.setState(StateOpen, now)}
		}
	case StateHalfOpen:
		return []transition{b.setState(StateOpen, now)}
	}
	return nil
}

// setState must be called with mu held
func (b *Breaker) setState(to State, now time.Time) transition {
	from := b.state
	b.state = to
	b.lastStateChange = now
	b.consecutiveSuccesses = 0
	b.halfOpenEpoch++
	b.halfOpenInFlight = 0

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.consecutiveFailures = 0
	}
	return transition{from: from, to: to}
}

func (b *Breaker) notify(changes []transition) {
	if b.cfg.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		b.cfg.OnStateChange(b.cfg.Name, c.from, c.to)
	}
}

// State returns the current state. An OPEN breaker whose timeout has elapsed
// still reports OPEN until the next call moves it to HALF_OPEN.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter returns how long an OPEN breaker will keep rejecting calls
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryAfterLocked()
}

func (b *Breaker) retryAfterLocked() time.Duration {
	if b.state != StateOpen {
		return 0
	}
	remaining := b.cfg.OpenTimeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats returns a snapshot of counters and timestamps
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:                 b.cfg.Name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalCalls:           b.totalCalls,
		TotalFailures:        b.totalFailures,
		TotalSuccesses:       b.totalSuccesses,
		TotalRejected:        b.totalRejected,
		HalfOpenInFlight:     b.halfOpenInFlight,
		OpenedAt:             b.openedAt,
		LastFailureAt:        b.lastFailureAt,
		LastStateChangeAt:    b.lastStateChange,
		RetryAfter:           b.retryAfterLocked(),
	}
}

// Reset forces the breaker back to CLOSED (administrative action)
func (b *Breaker) Reset() {
	b.mu.Lock()
	var changes []transition
	if b.state != StateClosed {
		changes = append(changes, b.setState(StateClosed, b.now()))
	}
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenEpoch++
	b.halfOpenInFlight = 0
	b.mu.Unlock()
	b.notify(changes)
}
