package breaker

import (
	"sync"
	"time"

	"conductor/internal/api"
)

// Clock abstracts time so tests can drive recovery windows deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Key identifies the breaker of one instance.
type Key struct {
	Service  string
	Instance string
}

func (k Key) String() string {
	return k.Service + "/" + k.Instance
}

// Config holds the thresholds shared by every breaker in a Set.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

// TransitionFunc is called after a breaker changes state, outside its lock.
type TransitionFunc func(key Key, from, to api.BreakerState)

// Snapshot is a point-in-time copy of a breaker's counters.
type Snapshot struct {
	State               api.BreakerState `json:"state" yaml:"state"`
	ConsecutiveFailures int              `json:"consecutiveFailures" yaml:"consecutiveFailures"`
	LastFailureTime     time.Time        `json:"lastFailureTime" yaml:"lastFailureTime"`
	HalfOpenSuccesses   int              `json:"halfOpenSuccesses" yaml:"halfOpenSuccesses"`
}

type transition struct {
	from, to api.BreakerState
}

// Breaker is the fault-isolation state machine of a single instance.
//
// Closed counts consecutive unhealthy results and opens at FailureThreshold.
// Open rejects selection until RecoveryTimeout has passed since the last
// failure, then becomes HalfOpen. HalfOpen closes after SuccessThreshold
// healthy results and reopens on any unhealthy one. The Open to HalfOpen
// move is evaluated lazily on every Record, Allow and State call.
type Breaker struct {
	mu    sync.Mutex
	key   Key
	cfg   Config
	clock Clock

	state               api.BreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenSuccesses   int

	onTransition TransitionFunc
}

// New creates a closed breaker.
func New(key Key, cfg Config, clock Clock, onTransition TransitionFunc) *Breaker {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{
		key:          key,
		cfg:          cfg,
		clock:        clock,
		state:        api.BreakerClosed,
		onTransition: onTransition,
	}
}

// Key returns the breaker's identity.
func (b *Breaker) Key() Key { return b.key }

// Record feeds one probe result and returns the resulting state.
func (b *Breaker) Record(healthy bool) api.BreakerState {
	b.mu.Lock()
	transitions := b.evaluateLocked()

	switch b.state {
	case api.BreakerClosed:
		if healthy {
			b.consecutiveFailures = 0
			break
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.lastFailureTime = b.clock.Now()
			transitions = append(transitions, b.setStateLocked(api.BreakerOpen))
		}

	case api.BreakerOpen:
		// Results while open do not shorten or extend the recovery window.

	case api.BreakerHalfOpen:
		if healthy {
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
				b.consecutiveFailures = 0
				b.halfOpenSuccesses = 0
				transitions = append(transitions, b.setStateLocked(api.BreakerClosed))
			}
			break
		}
		b.consecutiveFailures++
		b.halfOpenSuccesses = 0
		b.lastFailureTime = b.clock.Now()
		transitions = append(transitions, b.setStateLocked(api.BreakerOpen))
	}

	state := b.state
	b.mu.Unlock()

	b.notify(transitions)
	return state
}

// Allow reports whether the instance may be selected.
func (b *Breaker) Allow() bool {
	return b.State() != api.BreakerOpen
}

// State returns the current state after applying any due Open to HalfOpen move.
func (b *Breaker) State() api.BreakerState {
	b.mu.Lock()
	transitions := b.evaluateLocked()
	state := b.state
	b.mu.Unlock()

	b.notify(transitions)
	return state
}

// Snapshot returns a copy of the breaker's counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	transitions := b.evaluateLocked()
	snap := Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureTime:     b.lastFailureTime,
		HalfOpenSuccesses:   b.halfOpenSuccesses,
	}
	b.mu.Unlock()

	b.notify(transitions)
	return snap
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var transitions []transition
	if b.state != api.BreakerClosed {
		transitions = append(transitions, b.setStateLocked(api.BreakerClosed))
	}
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	b.lastFailureTime = time.Time{}
	b.mu.Unlock()

	b.notify(transitions)
}

func (b *Breaker) evaluateLocked() []transition {
	if b.state != api.BreakerOpen {
		return nil
	}
	if b.clock.Now().Sub(b.lastFailureTime) < b.cfg.RecoveryTimeout {
		return nil
	}
	b.halfOpenSuccesses = 0
	return []transition{b.setStateLocked(api.BreakerHalfOpen)}
}

func (b *Breaker) setStateLocked(to api.BreakerState) transition {
	from := b.state
	b.state = to
	return transition{from: from, to: to}
}

func (b *Breaker) notify(transitions []transition) {
	if b.onTransition == nil {
		return
	}
	for _, t := range transitions {
		b.onTransition(b.key, t.from, t.to)
	}
}
