package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests, cooldown running
	StateHalfOpen              // Testing with a single trial request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings configures one breaker. Clock is overridable so tests can drive
// cooldown transitions deterministically; nil means time.Now.
type Settings struct {
	FailureThreshold int
	Cooldown         time.Duration
	MaxBackoff       time.Duration
	Clock            func() time.Time
}

// CircuitBreaker gates whether one provider may currently receive traffic.
// Transitions are lazy: OPEN becomes HALF-OPEN on the first Allow call after
// the cooldown elapses, never via a background timer. In HALF-OPEN exactly
// one trial is admitted; the slot is taken under the breaker's own lock.
type CircuitBreaker struct {
	mutex         sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	cooldown      time.Duration // current cooldown, grows on reopen
	trialInFlight bool
	settings      Settings
	now           func() time.Time
	onStateChange func(from, to State)
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxBackoff < settings.Cooldown {
		settings.MaxBackoff = settings.Cooldown
	}

	now := settings.Clock
	if now == nil {
		now = time.Now
	}

	return &CircuitBreaker{
		state:    StateClosed,
		cooldown: settings.Cooldown,
		settings: settings,
		now:      now,
	}
}

// OnStateChange registers a callback invoked on every transition. The
// callback runs with the breaker lock held and must not call back in.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.onStateChange = fn
}

// Allow reports whether an attempt may proceed right now, acquiring the
// single HALF-OPEN trial slot when it does so during recovery. A true
// return during recovery obligates the caller to report the outcome via
// RecordSuccess or RecordFailure, or to give the slot back with
// ReleaseTrial.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.transitionTo(StateHalfOpen)
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

// CanAttempt reports whether Allow could currently succeed, without
// mutating state or taking the trial slot. Used for eligibility listings.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return cb.now().Sub(cb.openedAt) >= cb.cooldown
	case StateHalfOpen:
		return !cb.trialInFlight
	default:
		return true
	}
}

// ReleaseTrial gives back an admitted trial slot without recording an
// outcome, for attempts abandoned before the provider was actually called.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.trialInFlight = false
}

// RecordSuccess resets the failure run and closes the circuit. The cooldown
// shrinks back to its configured base.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.trialInFlight = false
	cb.cooldown = cb.settings.Cooldown

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure counts a failed attempt. Reaching the threshold opens the
// circuit; a failed HALF-OPEN trial reopens it and doubles the cooldown up
// to MaxBackoff so the breaker does not thrash against a broken provider.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++

	switch cb.state {
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.openedAt = cb.now()
		cb.cooldown = min(cb.cooldown*2, cb.settings.MaxBackoff)
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.failures >= cb.settings.FailureThreshold {
			cb.openedAt = cb.now()
			cb.transitionTo(StateOpen)
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Cooldown returns the current cooldown duration, including any backoff
// accumulated from repeated reopenings.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.cooldown
}

func (cb *CircuitBreaker) transitionTo(to State) {
	from := cb.state
	cb.state = to

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
