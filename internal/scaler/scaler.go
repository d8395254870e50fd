package scaler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor/internal/api"
	"conductor/internal/config"
	"conductor/internal/events"
	"conductor/internal/services"
	"conductor/pkg/logging"
)

const subsystem = "Scaler"

// drainPollInterval is how often a draining instance's connections are read.
const drainPollInterval = 50 * time.Millisecond

// Lifecycle is the part of the lifecycle manager the scaler drives.
type Lifecycle interface {
	Definition(name string) (config.ServiceDefinition, bool)
	Definitions() []config.ServiceDefinition
	Registry() *services.Registry
	StartService(ctx context.Context, name string) (*services.ServiceInstance, error)
	StopService(ctx context.Context, instanceID string) error
	ForceStopService(ctx context.Context, instanceID string) error
	SetMaintenance(instanceID string, enabled bool) error
	CheckDependents(service string) error
	PendingRestart(instanceID string) bool
	CancelRestart(instanceID string) bool
}

// Config holds the scaler timings.
type Config struct {
	DrainTimeout  time.Duration
	ScaleInterval time.Duration
}

// Scaler adjusts instance counts. Scale-down drains victims before stopping
// them; a background loop restores every service's MinInstances.
type Scaler struct {
	fleet     Lifecycle
	publisher *events.Publisher
	config    Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	drainPoll time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scaler. publisher may be nil.
func New(fleet Lifecycle, publisher *events.Publisher, cfg Config) *Scaler {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = config.DefaultOrchestratorSettings().DrainTimeout
	}
	if cfg.ScaleInterval <= 0 {
		cfg.ScaleInterval = config.DefaultOrchestratorSettings().ScaleInterval
	}
	return &Scaler{
		fleet:     fleet,
		publisher: publisher,
		config:    cfg,
		locks:     make(map[string]*sync.Mutex),
		drainPoll: drainPollInterval,
	}
}

func (s *Scaler) serviceLock(service string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[service]
	if !ok {
		l = &sync.Mutex{}
		s.locks[service] = l
	}
	return l
}

// active returns the instances that count toward the scale target: Starting
// and Running, plus Failed or Stopped instances with a restart pending, since
// those come back on their own. Maintenance and Stopping instances do not
// count.
func (s *Scaler) active(service string) []*services.ServiceInstance {
	var out []*services.ServiceInstance
	for _, inst := range s.fleet.Registry().ForService(service) {
		switch inst.State() {
		case api.StateStarting, api.StateRunning:
			out = append(out, inst)
		case api.StateFailed, api.StateStopped:
			if s.fleet.PendingRestart(inst.ID) {
				out = append(out, inst)
			}
		}
	}
	return out
}

// ScaleService brings the active instance count of a service to target.
// Scale-up starts instances one by one; scale-down first cancels pending
// restarts, then drains the oldest Running instances in parallel and stops
// them. Scale-down runs to completion even when ctx ends, so no instance is
// left in Maintenance.
func (s *Scaler) ScaleService(ctx context.Context, name string, target int) (api.ScaleResult, error) {
	def, ok := s.fleet.Definition(name)
	if !ok {
		return api.ScaleResult{}, api.NewServiceNotFoundError(name)
	}
	if target < def.MinInstances || target > def.MaxInstances {
		return api.ScaleResult{}, &api.InvalidTargetError{Service: name, Target: target, Min: def.MinInstances, Max: def.MaxInstances}
	}

	lock := s.serviceLock(name)
	lock.Lock()
	defer lock.Unlock()

	active := s.active(name)
	res := api.ScaleResult{Service: name, Previous: len(active), Target: target}

	switch {
	case target > len(active):
		return res, s.scaleUp(ctx, &res, target-len(active))
	case target < len(active):
		if target == 0 {
			if err := s.fleet.CheckDependents(name); err != nil {
				return res, err
			}
		}
		return res, s.scaleDown(ctx, &res, active, len(active)-target)
	default:
		logging.Debug(subsystem, "Service %s already has %d active instances", name, target)
		return res, nil
	}
}

func (s *Scaler) scaleUp(ctx context.Context, res *api.ScaleResult, n int) error {
	logging.Info(subsystem, "Scaling %s up from %d to %d", res.Service, res.Previous, res.Target)
	for i := 0; i < n && len(s.active(res.Service)) < res.Target; i++ {
		inst, err := s.fleet.StartService(ctx, res.Service)
		if err != nil {
			return fmt.Errorf("scaled %s to %d of %d instances: %w", res.Service, res.Previous+len(res.Started), res.Target, err)
		}
		res.Started = append(res.Started, inst.ID)
	}
	s.publisher.Publish(events.ReasonScaledUp, events.EventData{
		Service:  res.Service,
		Previous: res.Previous,
		Target:   res.Target,
	})
	return nil
}

// victims picks the n oldest Running instances by StartedAt.
func victims(active []*services.ServiceInstance, n int) []*services.ServiceInstance {
	var running []*services.ServiceInstance
	for _, inst := range active {
		if inst.State() == api.StateRunning {
			running = append(running, inst)
		}
	}
	sort.SliceStable(running, func(i, j int) bool {
		return running[i].StartedAt().Before(running[j].StartedAt())
	})
	if n > len(running) {
		n = len(running)
	}
	return running[:n]
}

func (s *Scaler) scaleDown(ctx context.Context, res *api.ScaleResult, active []*services.ServiceInstance, n int) error {
	ctx = context.WithoutCancel(ctx)
	logging.Info(subsystem, "Scaling %s down from %d to %d", res.Service, res.Previous, res.Target)

	var mu sync.Mutex
	for _, inst := range active {
		if n == 0 {
			break
		}
		if state := inst.State(); state != api.StateFailed && state != api.StateStopped {
			continue
		}
		if s.fleet.CancelRestart(inst.ID) {
			logging.Info(subsystem, "Cancelled pending restart of instance %s of %s", inst.ID, res.Service)
			res.Stopped = append(res.Stopped, inst.ID)
			n--
		}
	}

	chosen := victims(active, n)
	var g errgroup.Group
	for _, inst := range chosen {
		g.Go(func() error {
			if err := s.drainAndStop(ctx, inst); err != nil {
				return err
			}
			mu.Lock()
			res.Stopped = append(res.Stopped, inst.ID)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(res.Stopped)

	if short := n - len(chosen); short > 0 {
		logging.Warn(subsystem, "Only %d of %d instances of %s are running and can be drained", len(chosen), n, res.Service)
		err = errors.Join(err, fmt.Errorf("scaled %s to %d of %d instances: %d still starting", res.Service, res.Previous-len(res.Stopped), res.Target, short))
	}

	s.publisher.Publish(events.ReasonScaledDown, events.EventData{
		Service:  res.Service,
		Previous: res.Previous,
		Target:   res.Target,
	})
	return err
}

// drainAndStop takes inst out of routing, waits for its in-flight requests
// and stops it. After a drain timeout the instance is killed instead. Any
// other drain error puts it back into routing.
func (s *Scaler) drainAndStop(ctx context.Context, inst *services.ServiceInstance) error {
	if err := s.fleet.SetMaintenance(inst.ID, true); err != nil {
		return fmt.Errorf("failed to drain instance %s: %w", inst.ID, err)
	}

	err := s.drain(ctx, inst)
	switch {
	case err == nil:
		return s.fleet.StopService(ctx, inst.ID)
	case api.IsDrainTimeout(err):
		logging.Warn(subsystem, "%v; killing it", err)
		s.publisher.Publish(events.ReasonDrainTimeout, events.EventData{
			Service:  inst.ServiceName,
			Instance: inst.ID,
			Count:    int(inst.ActiveConnections()),
		})
		return s.fleet.ForceStopService(ctx, inst.ID)
	default:
		if rerr := s.fleet.SetMaintenance(inst.ID, false); rerr != nil {
			logging.Warn(subsystem, "Failed to return instance %s to service: %v", inst.ID, rerr)
		}
		return fmt.Errorf("failed to drain instance %s: %w", inst.ID, err)
	}
}

func (s *Scaler) drain(ctx context.Context, inst *services.ServiceInstance) error {
	deadline := time.NewTimer(s.config.DrainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.drainPoll)
	defer ticker.Stop()

	for inst.ActiveConnections() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &api.DrainTimeoutError{
				InstanceID: inst.ID,
				Remaining:  inst.ActiveConnections(),
				Timeout:    s.config.DrainTimeout,
			}
		case <-ticker.C:
		}
	}
	return nil
}

// EnforceMinimums starts instances for every service below its
// MinInstances. Errors are logged per service.
func (s *Scaler) EnforceMinimums(ctx context.Context) {
	for _, def := range s.fleet.Definitions() {
		if ctx.Err() != nil {
			return
		}
		s.enforceMinimum(ctx, def)
	}
}

func (s *Scaler) enforceMinimum(ctx context.Context, def config.ServiceDefinition) {
	lock := s.serviceLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	missing := def.MinInstances - len(s.active(def.Name))
	if missing <= 0 {
		return
	}
	logging.Info(subsystem, "Service %s is %d below its minimum of %d instances", def.Name, missing, def.MinInstances)
	for i := 0; i < missing && len(s.active(def.Name)) < def.MinInstances; i++ {
		if _, err := s.fleet.StartService(ctx, def.Name); err != nil {
			logging.Error(subsystem, err, "Failed to restore minimum instances of %s", def.Name)
			return
		}
	}
}

// Start runs EnforceMinimums every ScaleInterval until Stop or ctx ends.
func (s *Scaler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.ScaleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.EnforceMinimums(ctx)
			}
		}
	}()
	logging.Info(subsystem, "Enforcing minimum instance counts every %s", s.config.ScaleInterval)
}

// Stop ends the background loop and waits for it.
func (s *Scaler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
