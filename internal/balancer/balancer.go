package balancer

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"conductor/internal/api"
	"conductor/internal/breaker"
	"conductor/internal/services"
)

type cursorKey struct {
	service   string
	algorithm api.Algorithm
}

// Balancer selects one eligible instance per call. Selection never blocks on
// I/O; cursors are shared per (service, algorithm) and concurrent callers may
// skew the distribution slightly, never break it.
type Balancer struct {
	registry *services.Registry
	breakers *breaker.Set

	mu      sync.Mutex
	cursors map[cursorKey]uint64
	intn    func(n int) int
}

// New creates a balancer over the registry. breakers may be nil.
func New(registry *services.Registry, breakers *breaker.Set) *Balancer {
	return &Balancer{
		registry: registry,
		breakers: breakers,
		cursors:  make(map[cursorKey]uint64),
		intn:     rand.Intn,
	}
}

// Candidates returns the instances of service that may receive traffic, in
// registration order: Running, healthy and not isolated by their breaker.
func (b *Balancer) Candidates(service string) []*services.ServiceInstance {
	all := b.registry.ForService(service)
	out := make([]*services.ServiceInstance, 0, len(all))
	for _, inst := range all {
		if inst.State() != api.StateRunning || inst.Health() != api.HealthHealthy {
			continue
		}
		if b.breakers != nil && !b.breakers.Allow(service, inst.ID) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// SelectInstance picks an instance of service with the given algorithm.
func (b *Balancer) SelectInstance(service string, algorithm api.Algorithm) (*services.ServiceInstance, error) {
	candidates := b.Candidates(service)
	if len(candidates) == 0 {
		return nil, &api.NoHealthyInstanceError{Service: service}
	}

	switch algorithm {
	case api.AlgorithmRoundRobin, "":
		return b.roundRobin(service, candidates), nil
	case api.AlgorithmLeastConnections:
		return b.leastConnections(service, candidates), nil
	case api.AlgorithmWeightedRoundRobin:
		return b.weightedRoundRobin(service, candidates)
	case api.AlgorithmRandom:
		b.mu.Lock()
		i := b.intn(len(candidates))
		b.mu.Unlock()
		return candidates[i], nil
	default:
		return nil, fmt.Errorf("unknown load balancing algorithm %q", algorithm)
	}
}

// next returns the current cursor value for key and advances it.
func (b *Balancer) next(key cursorKey) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.cursors[key]
	b.cursors[key] = v + 1
	return v
}

func (b *Balancer) roundRobin(service string, candidates []*services.ServiceInstance) *services.ServiceInstance {
	pos := b.next(cursorKey{service, api.AlgorithmRoundRobin})
	return candidates[pos%uint64(len(candidates))]
}

func (b *Balancer) leastConnections(service string, candidates []*services.ServiceInstance) *services.ServiceInstance {
	least := candidates[0].ActiveConnections()
	tied := []*services.ServiceInstance{candidates[0]}
	for _, inst := range candidates[1:] {
		c := inst.ActiveConnections()
		switch {
		case c < least:
			least = c
			tied = tied[:0]
			tied = append(tied, inst)
		case c == least:
			tied = append(tied, inst)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	pos := b.next(cursorKey{service, api.AlgorithmLeastConnections})
	return tied[pos%uint64(len(tied))]
}

func (b *Balancer) weightedRoundRobin(service string, candidates []*services.ServiceInstance) (*services.ServiceInstance, error) {
	weights := make([]int64, len(candidates))
	var total int64
	for i, inst := range candidates {
		w := inst.Weight()
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("service %s: %w", service, api.ErrZeroTotalWeight)
	}

	slot := int64(b.next(cursorKey{service, api.AlgorithmWeightedRoundRobin}) % uint64(total))
	for i, w := range weights {
		if slot < w {
			return candidates[i], nil
		}
		slot -= w
	}
	return candidates[len(candidates)-1], nil
}

// ResetCursors forgets the selection cursors of service.
func (b *Balancer) ResetCursors(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.cursors {
		if key.service == service {
			delete(b.cursors, key)
		}
	}
}

// Release ends a lease taken with Acquire. err marks the request as failed.
type Release func(err error, elapsed time.Duration)

// Acquire registers an in-flight request on inst. The returned Release must
// be called exactly once; further calls are ignored.
func Acquire(inst *services.ServiceInstance) Release {
	inst.IncConnections()
	var once sync.Once
	return func(err error, elapsed time.Duration) {
		once.Do(func() {
			inst.DecConnections()
			inst.RecordRequest(err != nil, elapsed)
		})
	}
}

// Stats aggregates the routing counters of every instance of service.
func (b *Balancer) Stats(service string, algorithm api.Algorithm) api.ServiceStats {
	stats := api.ServiceStats{Service: service, Algorithm: algorithm}
	var sum time.Duration
	for _, inst := range b.registry.ForService(service) {
		stats.TotalRequests += inst.TotalRequests()
		stats.FailedRequests += inst.FailedRequests()
		stats.ActiveConnections += inst.ActiveConnections()
		sum += inst.TotalResponseTime()

		if !inst.State().IsActive() {
			continue
		}
		switch inst.Health() {
		case api.HealthHealthy:
			stats.HealthyCount++
		case api.HealthUnhealthy:
			stats.UnhealthyCount++
		}
	}
	if stats.TotalRequests > 0 {
		stats.AvgResponseTime = sum / time.Duration(stats.TotalRequests)
	}
	return stats
}
