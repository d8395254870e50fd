package services

import (
	"sync"
	"sync/atomic"
	"time"

	"conductor/internal/api"
)

// StateChangeCallback is invoked after an instance changes lifecycle state.
// It runs outside the instance lock.
type StateChangeCallback func(inst *ServiceInstance, oldState, newState api.LifecycleState, err error)

// ServiceInstance is the registry record of one running copy of a service.
//
// Routing counters are atomics so the request path never takes the record
// lock. Lifecycle state, health and timestamps are guarded by mu; the health
// monitor and the balancer may observe each other's writes with a small delay.
type ServiceInstance struct {
	ID          string
	ServiceName string
	// Index is the lowest ordinal not used by another live instance of the
	// same service. Deployment templates use it to derive ports.
	Index int

	seq uint64
	now func() time.Time

	activeConnections atomic.Int64
	weight            atomic.Int64
	totalRequests     atomic.Int64
	failedRequests    atomic.Int64
	lastResponseNanos atomic.Int64
	sumResponseNanos  atomic.Int64

	mu            sync.RWMutex
	address       string
	state         api.LifecycleState
	health        api.HealthStatus
	startedAt     time.Time
	stoppedAt     time.Time
	restartCount  int
	lastError     error
	stateChangeCb StateChangeCallback
}

// NewServiceInstance creates a record in StateUnknown with unknown health.
func NewServiceInstance(id, serviceName string, weight int64) *ServiceInstance {
	inst := &ServiceInstance{
		ID:          id,
		ServiceName: serviceName,
		now:         time.Now,
		state:       api.StateUnknown,
		health:      api.HealthUnknown,
	}
	inst.weight.Store(weight)
	return inst
}

// Address returns the network address reported by the launcher.
func (s *ServiceInstance) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SetAddress records the network address reported by the launcher.
func (s *ServiceInstance) SetAddress(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = addr
}

// State returns the current lifecycle state.
func (s *ServiceInstance) State() api.LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Health returns the result of the latest probe.
func (s *ServiceInstance) Health() api.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// SetHealth stores a probe result and returns the previous value.
func (s *ServiceInstance) SetHealth(h api.HealthStatus) api.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.health
	s.health = h
	return old
}

// StartedAt returns when the instance last entered Starting.
func (s *ServiceInstance) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// StoppedAt returns when the instance last entered Stopped.
func (s *ServiceInstance) StoppedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stoppedAt
}

// LastError returns the error recorded with the latest transition.
func (s *ServiceInstance) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// RestartCount returns how many automatic restarts have been scheduled over
// the life of the record. Reaching Running does not reset it, so MaxAttempts
// bounds the total.
func (s *ServiceInstance) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// IncRestartCount increments the restart counter and returns the new value.
func (s *ServiceInstance) IncRestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartCount++
	return s.restartCount
}

// SetStateChangeCallback sets the state change callback
func (s *ServiceInstance) SetStateChangeCallback(cb StateChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateChangeCb = cb
}

// UpdateState moves the instance to newState and notifies the callback when
// the state actually changed. Entering Starting stamps StartedAt, entering
// Stopped stamps StoppedAt. Entering Stopped or Starting resets health to
// unknown.
func (s *ServiceInstance) UpdateState(newState api.LifecycleState, err error) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.lastError = err
	switch newState {
	case api.StateStarting:
		s.startedAt = s.now()
		s.stoppedAt = time.Time{}
		s.health = api.HealthUnknown
	case api.StateStopped:
		s.stoppedAt = s.now()
		s.health = api.HealthUnknown
	}
	callback := s.stateChangeCb
	s.mu.Unlock()

	// Call the callback outside of the lock to avoid deadlocks
	if callback != nil && oldState != newState {
		callback(s, oldState, newState, err)
	}
}

// CompareAndSetState transitions to newState only when the current state is
// expected. It reports whether the transition happened.
func (s *ServiceInstance) CompareAndSetState(expected, newState api.LifecycleState) bool {
	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()
	if current != expected {
		return false
	}
	s.UpdateState(newState, nil)
	return true
}

// Weight returns the effective load-balancing weight.
func (s *ServiceInstance) Weight() int64 {
	return s.weight.Load()
}

// SetWeight changes the weight; the next selection observes it.
func (s *ServiceInstance) SetWeight(w int64) {
	s.weight.Store(w)
}

// ActiveConnections returns the number of in-flight requests.
func (s *ServiceInstance) ActiveConnections() int64 {
	return s.activeConnections.Load()
}

// IncConnections registers a new in-flight request.
func (s *ServiceInstance) IncConnections() int64 {
	return s.activeConnections.Add(1)
}

// DecConnections releases an in-flight request. The counter never drops below zero.
func (s *ServiceInstance) DecConnections() int64 {
	for {
		cur := s.activeConnections.Load()
		if cur <= 0 {
			return 0
		}
		if s.activeConnections.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// RecordRequest updates the request counters after a forwarded call.
func (s *ServiceInstance) RecordRequest(failed bool, elapsed time.Duration) {
	s.totalRequests.Add(1)
	if failed {
		s.failedRequests.Add(1)
	}
	s.lastResponseNanos.Store(int64(elapsed))
	s.sumResponseNanos.Add(int64(elapsed))
}

// TotalRequests returns the number of forwarded requests.
func (s *ServiceInstance) TotalRequests() int64 { return s.totalRequests.Load() }

// FailedRequests returns the number of forwarded requests that failed.
func (s *ServiceInstance) FailedRequests() int64 { return s.failedRequests.Load() }

// LastResponseTime returns the latency of the most recent request.
func (s *ServiceInstance) LastResponseTime() time.Duration {
	return time.Duration(s.lastResponseNanos.Load())
}

// TotalResponseTime returns the summed latency of all requests.
func (s *ServiceInstance) TotalResponseTime() time.Duration {
	return time.Duration(s.sumResponseNanos.Load())
}

// Info returns an externally visible snapshot. The breaker state is supplied
// by the caller because breakers live outside the registry.
func (s *ServiceInstance) Info(breaker api.BreakerState) api.InstanceInfo {
	s.mu.RLock()
	info := api.InstanceInfo{
		ID:           s.ID,
		Service:      s.ServiceName,
		Address:      s.address,
		State:        s.state,
		Health:       s.health,
		Breaker:      breaker,
		RestartCount: s.restartCount,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		info.StartedAt = &t
	}
	if !s.stoppedAt.IsZero() {
		t := s.stoppedAt
		info.StoppedAt = &t
	}
	if s.lastError != nil {
		info.LastError = s.lastError.Error()
	}
	s.mu.RUnlock()

	info.Weight = s.Weight()
	info.ActiveConnections = s.ActiveConnections()
	info.TotalRequests = s.TotalRequests()
	info.FailedRequests = s.FailedRequests()
	info.LastResponseTime = s.LastResponseTime()
	return info
}
