package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"conductor/internal/api"
	"conductor/internal/balancer"
	"conductor/internal/breaker"
	"conductor/internal/bus"
	"conductor/internal/config"
	"conductor/internal/containerizer"
	"conductor/internal/dependency"
	"conductor/internal/events"
	"conductor/internal/health"
	"conductor/internal/metrics"
	"conductor/internal/services"
	"conductor/pkg/logging"
)

const subsystem = "Orchestrator"

// startupProbeInterval is how often a Starting instance is probed while the
// lifecycle manager waits for it to become ready.
const startupProbeInterval = 250 * time.Millisecond

// Scaler changes the number of instances of a service. The scaling
// controller implements it; the orchestrator only forwards commands.
type Scaler interface {
	ScaleService(ctx context.Context, service string, target int) (api.ScaleResult, error)
}

// Config holds the components the orchestrator drives. Nil components are
// created from Settings, except Bus and Metrics which stay disabled.
type Config struct {
	Settings  config.OrchestratorSettings
	Registry  *services.Registry
	Breakers  *breaker.Set
	Monitor   *health.Monitor
	Router    *balancer.Router
	Launcher  containerizer.Launcher
	Bus       bus.Bus
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
}

// Orchestrator is the lifecycle manager of the fleet. It owns the current
// service definitions and their dependency graph, starts and stops instances
// in dependency order and restarts failed instances per their policy.
type Orchestrator struct {
	settings  config.OrchestratorSettings
	registry  *services.Registry
	breakers  *breaker.Set
	monitor   *health.Monitor
	router    *balancer.Router
	launcher  containerizer.Launcher
	bus       bus.Bus
	publisher *events.Publisher
	metrics   *metrics.Metrics

	defsMu sync.RWMutex
	defs   map[string]config.ServiceDefinition
	graph  *dependency.Graph

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// launches counts launch generations per instance. A stop or a new
	// launch bumps it, which invalidates pending restarts and exit watchers.
	launchesMu sync.Mutex
	launches   map[string]uint64
	restarts   map[string]*time.Timer

	scalerMu sync.RWMutex
	scaler   Scaler

	subs []bus.Subscription

	startupPoll time.Duration
	randInt63n  func(n int64) int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator with an empty definition set.
func New(cfg Config) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		settings:    cfg.Settings,
		registry:    cfg.Registry,
		breakers:    cfg.Breakers,
		monitor:     cfg.Monitor,
		router:      cfg.Router,
		launcher:    cfg.Launcher,
		bus:         cfg.Bus,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		defs:        make(map[string]config.ServiceDefinition),
		graph:       dependency.New(),
		locks:       make(map[string]*sync.Mutex),
		launches:    make(map[string]uint64),
		restarts:    make(map[string]*time.Timer),
		startupPoll: startupProbeInterval,
		randInt63n:  rand.Int63n,
		ctx:         ctx,
		cancel:      cancel,
	}

	if o.registry == nil {
		o.registry = services.NewRegistry()
	}
	if o.breakers == nil {
		o.breakers = breaker.NewSet(breaker.Config{
			FailureThreshold: cfg.Settings.FailureThreshold,
			SuccessThreshold: cfg.Settings.SuccessThreshold,
			RecoveryTimeout:  cfg.Settings.RecoveryTimeout,
		}, nil)
	}
	if o.publisher == nil && o.bus != nil {
		o.publisher = events.NewPublisher(o.bus, cfg.Settings.PublishTimeout)
	}
	if o.monitor == nil {
		o.monitor = health.NewMonitor(cfg.Settings.ProbeWorkers, o.breakers, o.publisher, health.DefaultProbers(o.bus, nil))
	}
	if o.router == nil {
		o.router = balancer.NewRouter(balancer.New(o.registry, o.breakers), cfg.Settings.ForwardTimeout, o.algorithmFor)
	}
	if o.launcher == nil {
		o.launcher = containerizer.NewMulti(map[config.Runtime]containerizer.Launcher{
			config.RuntimeProcess: containerizer.NewProcessLauncher(),
			config.RuntimeStatic:  containerizer.NewStaticLauncher(),
		})
	}

	o.breakers.SetTransitionHandler(o.onBreakerTransition)
	o.registry.SetStateChangeCallback(o.onStateChange)
	o.monitor.SetResultHook(o.metrics.RecordProbe)
	o.router.SetObserver(func(service, _ string, failed bool, elapsed time.Duration) {
		o.metrics.RecordRequest(service, failed, elapsed)
	})
	return o
}

// Start begins background work: the stopped-instance reaper and, when a bus
// is configured, the command subscriptions. It does not start any instances;
// see StartAll.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.bus != nil {
		if err := o.subscribeCommands(); err != nil {
			return fmt.Errorf("failed to subscribe to commands: %w", err)
		}
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.reapLoop(ctx)
	}()

	logging.Info(subsystem, "Started orchestrator with %d service definitions", len(o.Definitions()))
	return nil
}

// Stop cancels pending restarts, health probes and background loops. Running
// instances are left alone; call StopAll first to stop them.
func (o *Orchestrator) Stop() {
	o.cancel()

	o.launchesMu.Lock()
	for id, t := range o.restarts {
		t.Stop()
		delete(o.restarts, id)
	}
	o.launchesMu.Unlock()

	for _, sub := range o.subs {
		if err := sub.Unsubscribe(); err != nil {
			logging.Debug(subsystem, "Failed to unsubscribe from %s: %v", sub.Pattern(), err)
		}
	}
	o.subs = nil

	o.monitor.Stop()
	o.wg.Wait()
	logging.Info(subsystem, "Orchestrator stopped")
}

func (o *Orchestrator) reapLoop(ctx context.Context) {
	ttl := o.settings.StoppedTTL
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.reapStopped(ttl)
		}
	}
}

func (o *Orchestrator) reapStopped(ttl time.Duration) {
	reaped := o.registry.ReapStopped(ttl, func(inst *services.ServiceInstance) bool {
		return o.PendingRestart(inst.ID)
	})
	if len(reaped) == 0 {
		return
	}
	o.launchesMu.Lock()
	for _, inst := range reaped {
		delete(o.launches, inst.ID)
	}
	o.launchesMu.Unlock()
	for _, inst := range reaped {
		o.metrics.ForgetInstance(inst.ServiceName, api.StateStopped)
	}
	logging.Debug(subsystem, "Reaped %d stopped instances", len(reaped))
}

// SetScaler installs the scaling controller used by scale commands and the
// admin API.
func (o *Orchestrator) SetScaler(s Scaler) {
	o.scalerMu.Lock()
	defer o.scalerMu.Unlock()
	o.scaler = s
}

func (o *Orchestrator) getScaler() Scaler {
	o.scalerMu.RLock()
	defer o.scalerMu.RUnlock()
	return o.scaler
}

// Registry returns the instance registry.
func (o *Orchestrator) Registry() *services.Registry { return o.registry }

// Breakers returns the breaker set.
func (o *Orchestrator) Breakers() *breaker.Set { return o.breakers }

// Router returns the request router.
func (o *Orchestrator) Router() *balancer.Router { return o.router }

// Publisher returns the event publisher. It may be nil.
func (o *Orchestrator) Publisher() *events.Publisher { return o.publisher }

// Settings returns the fleet-wide settings.
func (o *Orchestrator) Settings() config.OrchestratorSettings { return o.settings }

// ApplyDefinitions replaces the definition set. The new set is checked for
// duplicate names, missing required dependencies and required cycles first;
// a rejected set leaves the current one in place.
func (o *Orchestrator) ApplyDefinitions(defs []config.ServiceDefinition) error {
	g, err := buildGraph(defs)
	if err != nil {
		logging.Error(subsystem, err, "Rejected service definitions, keeping the previous set")
		o.publisher.Publish(events.ReasonDefinitionsRejected, events.EventData{Error: err.Error()})
		return fmt.Errorf("service definitions rejected: %w", err)
	}

	for _, cycle := range g.OptionalCycles() {
		logging.Warn(subsystem, "Optional dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	byName := make(map[string]config.ServiceDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	o.defsMu.Lock()
	previous := o.defs
	o.defs = byName
	o.graph = g
	o.defsMu.Unlock()

	for name := range previous {
		if _, ok := byName[name]; !ok && o.registry.Count(name, api.StateStarting, api.StateRunning, api.StateMaintenance) > 0 {
			logging.Warn(subsystem, "Service %s was removed but still has live instances", name)
		}
	}

	logging.Info(subsystem, "Applied %d service definitions", len(byName))
	o.publisher.Publish(events.ReasonDefinitionsReloaded, events.EventData{Count: len(byName)})
	return nil
}

func buildGraph(defs []config.ServiceDefinition) (*dependency.Graph, error) {
	g := dependency.New()
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate service definition %q", def.Name)
		}
		seen[def.Name] = true
		g.AddNode(dependency.Node{
			ID:       dependency.NodeID(def.Name),
			Priority: def.Priority,
			Requires: nodeIDs(def.RequiredDependencies()),
			Prefers:  nodeIDs(def.OptionalDependencies()),
		})
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func nodeIDs(names []string) []dependency.NodeID {
	if len(names) == 0 {
		return nil
	}
	out := make([]dependency.NodeID, len(names))
	for i, n := range names {
		out[i] = dependency.NodeID(n)
	}
	return out
}

// Definition returns the current definition of a service.
func (o *Orchestrator) Definition(name string) (config.ServiceDefinition, bool) {
	o.defsMu.RLock()
	defer o.defsMu.RUnlock()
	def, ok := o.defs[name]
	return def, ok
}

// Definitions returns the current definitions sorted by name.
func (o *Orchestrator) Definitions() []config.ServiceDefinition {
	o.defsMu.RLock()
	out := make([]config.ServiceDefinition, 0, len(o.defs))
	for _, def := range o.defs {
		out = append(out, def)
	}
	o.defsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (o *Orchestrator) currentGraph() *dependency.Graph {
	o.defsMu.RLock()
	defer o.defsMu.RUnlock()
	return o.graph
}

func (o *Orchestrator) definition(name string) (config.ServiceDefinition, error) {
	def, ok := o.Definition(name)
	if !ok {
		return config.ServiceDefinition{}, api.NewServiceNotFoundError(name)
	}
	return def, nil
}

// algorithmFor resolves the load-balancing algorithm of a service: its own
// setting, then the fleet default, then round-robin.
func (o *Orchestrator) algorithmFor(service string) api.Algorithm {
	if def, ok := o.Definition(service); ok && def.Algorithm != "" {
		if alg, err := api.ParseAlgorithm(def.Algorithm); err == nil {
			return alg
		}
	}
	if alg, err := api.ParseAlgorithm(o.settings.DefaultAlgorithm); err == nil {
		return alg
	}
	return api.AlgorithmRoundRobin
}

// serviceLock returns the mutex serializing lifecycle transitions of a
// service. Callers never hold two service locks at once.
func (o *Orchestrator) serviceLock(service string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[service]
	if !ok {
		l = &sync.Mutex{}
		o.locks[service] = l
	}
	return l
}

func (o *Orchestrator) nextLaunch(instanceID string) uint64 {
	o.launchesMu.Lock()
	defer o.launchesMu.Unlock()
	o.launches[instanceID]++
	return o.launches[instanceID]
}

func (o *Orchestrator) currentLaunch(instanceID string) uint64 {
	o.launchesMu.Lock()
	defer o.launchesMu.Unlock()
	return o.launches[instanceID]
}

func (o *Orchestrator) onStateChange(inst *services.ServiceInstance, oldState, newState api.LifecycleState, err error) {
	o.metrics.RecordInstanceTransition(inst.ServiceName, oldState, newState)
	if err != nil {
		logging.Debug(subsystem, "Instance %s (%s): %s -> %s: %v", inst.ID, inst.ServiceName, oldState, newState, err)
	} else {
		logging.Debug(subsystem, "Instance %s (%s): %s -> %s", inst.ID, inst.ServiceName, oldState, newState)
	}
}

func (o *Orchestrator) onBreakerTransition(key breaker.Key, _, to api.BreakerState) {
	o.metrics.RecordBreakerTransition(key.Service, to)

	var reason events.EventReason
	switch to {
	case api.BreakerOpen:
		reason = events.ReasonBreakerOpened
		logging.Warn("Breaker", "Breaker for instance %s (%s) opened", key.Instance, key.Service)
	case api.BreakerHalfOpen:
		reason = events.ReasonBreakerHalfOpen
		logging.Info("Breaker", "Breaker for instance %s (%s) is half-open", key.Instance, key.Service)
	case api.BreakerClosed:
		reason = events.ReasonBreakerClosed
		logging.Info("Breaker", "Breaker for instance %s (%s) closed", key.Instance, key.Service)
	default:
		return
	}

	data := events.EventData{Service: key.Service, Instance: key.Instance}
	if inst, ok := o.registry.Get(key.Instance); ok {
		data.Address = inst.Address()
	}
	o.publisher.Publish(reason, data)
}
