package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/internal/api"
)

// Registry holds every known instance record, keyed by instance ID and
// indexed by service in registration order.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*ServiceInstance
	byService map[string][]*ServiceInstance
	seq       uint64

	now      func() time.Time
	callback StateChangeCallback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*ServiceInstance),
		byService: make(map[string][]*ServiceInstance),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for instance timestamps. It affects
// instances registered afterwards.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetStateChangeCallback installs the callback on every instance registered
// afterwards.
func (r *Registry) SetStateChangeCallback(cb StateChangeCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = cb
}

// Create allocates a new instance of service with a fresh ID and the lowest
// free Index, and registers it.
func (r *Registry) Create(service string, weight int64) *ServiceInstance {
	inst := NewServiceInstance(uuid.NewString(), service, weight)

	r.mu.Lock()
	defer r.mu.Unlock()
	inst.Index = r.freeIndexLocked(service)
	r.registerLocked(inst)
	return inst
}

// Register adds an externally constructed instance.
func (r *Registry) Register(inst *ServiceInstance) error {
	if inst == nil {
		return fmt.Errorf("cannot register nil instance")
	}
	if inst.ID == "" {
		return fmt.Errorf("instance has empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[inst.ID]; exists {
		return fmt.Errorf("instance %s already registered", inst.ID)
	}
	r.registerLocked(inst)
	return nil
}

func (r *Registry) registerLocked(inst *ServiceInstance) {
	r.seq++
	inst.seq = r.seq
	inst.now = r.now
	if r.callback != nil {
		inst.SetStateChangeCallback(r.callback)
	}
	r.instances[inst.ID] = inst
	r.byService[inst.ServiceName] = append(r.byService[inst.ServiceName], inst)
}

// freeIndexLocked returns the lowest ordinal not held by a live instance.
func (r *Registry) freeIndexLocked(service string) int {
	used := map[int]bool{}
	for _, inst := range r.byService[service] {
		switch inst.State() {
		case api.StateStopped, api.StateFailed:
		default:
			used[inst.Index] = true
		}
	}
	for i := 0; ; i++ {
		if !used[i] {
			return i
		}
	}
}

// Deregister removes an instance record.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, exists := r.instances[id]
	if !exists {
		return api.NewInstanceNotFoundError(id)
	}
	delete(r.instances, id)

	list := r.byService[inst.ServiceName]
	for i, candidate := range list {
		if candidate.ID == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byService, inst.ServiceName)
	} else {
		r.byService[inst.ServiceName] = list
	}
	return nil
}

// Get returns an instance by ID.
func (r *Registry) Get(id string) (*ServiceInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// ForService returns the instances of a service in registration order.
func (r *Registry) ForService(service string) []*ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byService[service]
	out := make([]*ServiceInstance, len(list))
	copy(out, list)
	return out
}

// All returns every instance ordered by service name, then registration order.
func (r *Registry) All() []*ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServiceInstance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceName != out[j].ServiceName {
			return out[i].ServiceName < out[j].ServiceName
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Count returns how many instances of service are in one of the given states.
func (r *Registry) Count(service string, states ...api.LifecycleState) int {
	n := 0
	for _, inst := range r.ForService(service) {
		s := inst.State()
		for _, want := range states {
			if s == want {
				n++
				break
			}
		}
	}
	return n
}

// ReapStopped deregisters instances that have been Stopped for longer than
// ttl and returns them ordered by ID. Instances for which keep reports true
// stay registered; keep may be nil.
func (r *Registry) ReapStopped(ttl time.Duration, keep func(*ServiceInstance) bool) []*ServiceInstance {
	r.mu.RLock()
	now := r.now()
	var expired []*ServiceInstance
	for _, inst := range r.instances {
		if inst.State() != api.StateStopped {
			continue
		}
		if keep != nil && keep(inst) {
			continue
		}
		if stoppedAt := inst.StoppedAt(); !stoppedAt.IsZero() && now.Sub(stoppedAt) > ttl {
			expired = append(expired, inst)
		}
	}
	r.mu.RUnlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	reaped := expired[:0]
	for _, inst := range expired {
		if r.Deregister(inst.ID) == nil {
			reaped = append(reaped, inst)
		}
	}
	return reaped
}
