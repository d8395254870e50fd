package breaker

import (
	"sync"

	"conductor/internal/api"
)

// Set holds one breaker per instance, created lazily on first use.
type Set struct {
	mu       sync.RWMutex
	breakers map[Key]*Breaker

	cfg          Config
	clock        Clock
	onTransition TransitionFunc
}

// NewSet creates an empty set. A nil clock selects the wall clock.
func NewSet(cfg Config, clock Clock) *Set {
	if clock == nil {
		clock = RealClock()
	}
	return &Set{
		breakers: make(map[Key]*Breaker),
		cfg:      cfg,
		clock:    clock,
	}
}

// SetTransitionHandler installs the callback for breakers created afterwards.
// It must be called before the set is used.
func (s *Set) SetTransitionHandler(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

// Get returns the breaker for an instance, creating it closed if needed.
func (s *Set) Get(service, instance string) *Breaker {
	key := Key{Service: service, Instance: instance}

	s.mu.RLock()
	b, ok := s.breakers[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	b = New(key, s.cfg, s.clock, s.onTransition)
	s.breakers[key] = b
	return b
}

// Record feeds a probe result to the instance's breaker.
func (s *Set) Record(service, instance string, healthy bool) api.BreakerState {
	return s.Get(service, instance).Record(healthy)
}

// Allow reports whether the instance may be selected. Instances without a
// breaker are allowed.
func (s *Set) Allow(service, instance string) bool {
	return s.State(service, instance) != api.BreakerOpen
}

// State returns the instance's breaker state without creating a breaker.
func (s *Set) State(service, instance string) api.BreakerState {
	s.mu.RLock()
	b, ok := s.breakers[Key{Service: service, Instance: instance}]
	s.mu.RUnlock()
	if !ok {
		return api.BreakerClosed
	}
	return b.State()
}

// Remove drops the instance's breaker.
func (s *Set) Remove(service, instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, Key{Service: service, Instance: instance})
}

// Snapshot returns the counters of every breaker keyed by "service/instance".
func (s *Set) Snapshot() map[string]Snapshot {
	s.mu.RLock()
	list := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		list = append(list, b)
	}
	s.mu.RUnlock()

	out := make(map[string]Snapshot, len(list))
	for _, b := range list {
		out[b.Key().String()] = b.Snapshot()
	}
	return out
}
