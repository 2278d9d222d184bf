// Package resilience guards calls to remote providers with circuit breakers
// and ordered failover.
//
// [CircuitBreaker] is a closed/open/half-open breaker. [FallbackGroup] keeps
// one breaker per provider and walks the providers in registration order,
// skipping those whose breaker is open. [LLMFallback], [TTSFallback] and
// [STTFallback] adapt a group to the provider interfaces so that callers see
// a single provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. One failed
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the state name used in logs and readiness output.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, usually the provider name.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker's lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
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
		onChange:     cfg.OnStateChange,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker is rejecting calls, in which case it
// returns [ErrCircuitOpen] without calling fn. The error of fn is returned
// unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probe)
	} else {
		cb.onSuccess(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.probes, cb.probeWins = 0, 0
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probe bool) {
	cb.openedAt = cb.now()
	if probe {
		cb.failures = cb.maxFailures
		cb.transition(StateOpen)
		return
	}
	if cb.state != StateClosed {
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.failures)
		cb.transition(StateOpen)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	if cb.state != StateHalfOpen {
		return
	}
	cb.probeWins++
	if cb.probeWins >= cb.halfOpenMax {
		cb.failures, cb.probes, cb.probeWins = 0, 0, 0
		cb.transition(StateClosed)
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	slog.Info("circuit breaker state change", "name", cb.name, "from", from, "to", to)
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State reports the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call to [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.probes, cb.probeWins = 0, 0, 0
	cb.transition(StateClosed)
}
