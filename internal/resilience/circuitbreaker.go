// Package resilience provides failover primitives for the external model
// backends. A [CircuitBreaker] stops sending traffic to a backend that keeps
// failing, and a [FallbackGroup] chains several backends of the same kind so
// each call goes to the first healthy one.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Successful
	// probes close the breaker; a failed probe re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// backend again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. The breaker
	// closes once this many probes succeed. Default 3.
	HalfOpenMax int
}

// CircuitBreaker tracks consecutive failures of a single backend and cuts
// traffic to it once the failure budget is exhausted.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu             sync.Mutex
	state          State
	failures       int
	openedAt       time.Time
	probesStarted  int
	probeSuccesses int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero config fields fall
// back to the documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker is open. While half-open, only the probe
// budget worth of calls gets through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn()
	cb.record(err, probe)
	return err
}

// allow decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probesStarted = 0
		cb.probeSuccesses = 0
		slog.Info("probing backend after reset timeout", "breaker", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.probesStarted >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probesStarted++
		return true, nil
	}

	return false, nil
}

// record updates breaker state with the outcome of a permitted call.
func (cb *CircuitBreaker) record(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if probe {
			cb.probeSuccesses++
			if cb.probeSuccesses >= cb.halfOpenMax {
				cb.state = StateClosed
				cb.failures = 0
				slog.Info("backend recovered, breaker closed", "breaker", cb.name)
			}
			return
		}
		cb.failures = 0
		return
	}

	cb.openedAt = time.Now()
	if probe {
		// One failed probe is enough evidence the backend is still down.
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("probe failed, breaker re-opened", "breaker", cb.name)
		return
	}

	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("breaker opened",
			"breaker", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// State reports the breaker's state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the stored state changes on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probesStarted = 0
	cb.probeSuccesses = 0
	slog.Info("breaker reset", "breaker", cb.name)
}
