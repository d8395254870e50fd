package health

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"conductor/internal/api"
	"conductor/internal/breaker"
	"conductor/internal/config"
	"conductor/internal/events"
	"conductor/internal/services"
	"conductor/pkg/logging"
)

// ResultHook observes every completed probe. Used for metrics.
type ResultHook func(service string, healthy bool, elapsed time.Duration)

type watch struct {
	inst   *services.ServiceInstance
	spec   config.ProbeSpec
	cancel context.CancelFunc
}

// Monitor runs periodic health probes for watched instances and feeds the
// results into the breaker set.
type Monitor struct {
	breakers  *breaker.Set
	publisher *events.Publisher
	probers   map[config.ProbeKind]Prober
	sem       *semaphore.Weighted

	mu      sync.Mutex
	watches map[string]*watch
	hook    ResultHook
	jitter  func(max time.Duration) time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor that runs at most workers probes at once.
func NewMonitor(workers int, breakers *breaker.Set, publisher *events.Publisher, probers map[config.ProbeKind]Prober) *Monitor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		breakers:  breakers,
		publisher: publisher,
		probers:   probers,
		sem:       semaphore.NewWeighted(int64(workers)),
		watches:   make(map[string]*watch),
		jitter:    randomJitter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// SetResultHook installs a hook called after every probe.
func (m *Monitor) SetResultHook(hook ResultHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Watch starts periodic probing of inst. Watching an already watched
// instance replaces its probe spec.
func (m *Monitor) Watch(inst *services.ServiceInstance, spec config.ProbeSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return
	}
	if existing, ok := m.watches[inst.ID]; ok {
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &watch{inst: inst, spec: spec, cancel: cancel}
	m.watches[inst.ID] = w

	m.wg.Add(1)
	go m.run(ctx, w)

	logging.Debug("HealthMonitor", "Watching instance %s of %s every %s", inst.ID, inst.ServiceName, spec.Interval)
}

// Unwatch stops probing the instance and cancels any in-flight probe.
func (m *Monitor) Unwatch(instanceID string) {
	m.mu.Lock()
	w, ok := m.watches[instanceID]
	delete(m.watches, instanceID)
	m.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// Watching reports whether the instance is currently watched.
func (m *Monitor) Watching(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[instanceID]
	return ok
}

// Stop cancels every probing loop and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.cancel()
	m.watches = make(map[string]*watch)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, w *watch) {
	defer m.wg.Done()

	interval := w.spec.Interval
	if interval <= 0 {
		interval = config.DefaultOrchestratorSettings().HealthProbeInterval
	}

	timer := time.NewTimer(m.jitter(interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.Check(ctx, w.inst, w.spec)
		timer.Reset(interval)
	}
}

// ProbeOnce runs a single probe against inst without touching its health or
// breaker. The Lifecycle Manager uses it while an instance is Starting.
func (m *Monitor) ProbeOnce(ctx context.Context, inst *services.ServiceInstance, spec config.ProbeSpec) (bool, error) {
	prober, ok := m.probers[spec.Kind]
	if !ok {
		return false, fmt.Errorf("no prober for kind %q", spec.Kind)
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer m.sem.Release(1)

	err := runProbe(ctx, prober, targetFor(inst, spec), probeTimeout(spec))
	return err == nil, err
}

// Check runs one probing cycle for inst. Instances that are neither Running
// nor in Maintenance are skipped. Returns the recorded status, or
// HealthUnknown when nothing was recorded.
func (m *Monitor) Check(ctx context.Context, inst *services.ServiceInstance, spec config.ProbeSpec) api.HealthStatus {
	state := inst.State()
	if state != api.StateRunning && state != api.StateMaintenance {
		return api.HealthUnknown
	}

	prober, ok := m.probers[spec.Kind]
	if !ok {
		logging.Warn("HealthMonitor", "No prober for kind %q on instance %s", spec.Kind, inst.ID)
		return api.HealthUnknown
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return api.HealthUnknown
	}
	start := time.Now()
	err := runProbe(ctx, prober, targetFor(inst, spec), probeTimeout(spec))
	elapsed := time.Since(start)
	m.sem.Release(1)

	// Cancelled while probing: the instance was stopped or unwatched.
	if ctx.Err() != nil {
		return api.HealthUnknown
	}

	healthy := err == nil
	status := api.HealthHealthy
	if !healthy {
		status = api.HealthUnhealthy
		logging.Debug("HealthMonitor", "Probe of instance %s (%s) failed: %v", inst.ID, inst.ServiceName, err)
	}

	old := inst.SetHealth(status)
	if m.breakers != nil {
		m.breakers.Record(inst.ServiceName, inst.ID, healthy)
	}

	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		hook(inst.ServiceName, healthy, elapsed)
	}

	if old != status {
		data := events.EventData{
			Service:  inst.ServiceName,
			Instance: inst.ID,
			Address:  inst.Address(),
			Health:   string(status),
		}
		if err != nil {
			data.Error = err.Error()
		}
		m.publisher.Publish(events.ReasonHealthChanged, data)
	}
	return status
}

func targetFor(inst *services.ServiceInstance, spec config.ProbeSpec) Target {
	return Target{
		Service:    inst.ServiceName,
		InstanceID: inst.ID,
		Address:    inst.Address(),
		Path:       spec.Path,
	}
}

func probeTimeout(spec config.ProbeSpec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return config.DefaultOrchestratorSettings().HealthProbeTimeout
}
