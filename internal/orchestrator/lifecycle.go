package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conductor/internal/api"
	"conductor/internal/config"
	"conductor/internal/containerizer"
	"conductor/internal/dependency"
	"conductor/internal/events"
	"conductor/internal/services"
	"conductor/pkg/logging"
)

// StartService launches one new instance of a service. Required dependencies
// without a Running instance are started first, leaves first; a failure there
// aborts the start. Optional dependencies are started best-effort.
//
// The call returns once the instance is Running, that is after its first
// successful probe or after the startup grace period, whichever comes first.
// A launch error or an exceeded startup timeout leaves the instance Failed
// with a restart scheduled per its policy.
//
// The launch outlives ctx: a caller that goes away does not fail an instance
// that is coming up. Only the startup timeout or Stop end it early. A start
// that would take the live count past MaxInstances is refused with
// api.InvalidTargetError.
func (o *Orchestrator) StartService(ctx context.Context, name string) (*services.ServiceInstance, error) {
	def, err := o.definition(name)
	if err != nil {
		return nil, err
	}

	launchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	if err := o.ensureDependencies(launchCtx, def); err != nil {
		return nil, err
	}

	lock := o.serviceLock(name)
	lock.Lock()
	defer lock.Unlock()

	if live := o.liveCount(name); live >= def.MaxInstances {
		return nil, &api.InvalidTargetError{Service: name, Target: live + 1, Min: def.MinInstances, Max: def.MaxInstances}
	}

	inst := o.registry.Create(name, def.Weight)
	if err := o.launch(launchCtx, inst, def); err != nil {
		return nil, err
	}
	return inst, nil
}

// liveCount counts the instances of service that are Starting or Running or
// that a pending restart will bring back.
func (o *Orchestrator) liveCount(service string) int {
	n := 0
	for _, inst := range o.registry.ForService(service) {
		switch inst.State() {
		case api.StateStarting, api.StateRunning:
			n++
		case api.StateFailed, api.StateStopped:
			if o.PendingRestart(inst.ID) {
				n++
			}
		}
	}
	return n
}

func (o *Orchestrator) ensureDependencies(ctx context.Context, def config.ServiceDefinition) error {
	order, err := o.currentGraph().StartupOrder(dependency.NodeID(def.Name))
	if err != nil {
		return err
	}
	for _, dep := range order[:len(order)-1] {
		if err := o.ensureRunning(ctx, string(dep)); err != nil {
			return fmt.Errorf("failed to start required dependency %s of %s: %w", dep, def.Name, err)
		}
	}

	for _, name := range def.OptionalDependencies() {
		if _, ok := o.Definition(name); !ok {
			logging.Warn(subsystem, "Optional dependency %s of %s is not defined", name, def.Name)
			continue
		}
		if err := o.ensureRequiredClosure(ctx, name); err != nil {
			logging.Warn(subsystem, "Optional dependency %s of %s did not start: %v", name, def.Name, err)
		}
	}
	return nil
}

// ensureRequiredClosure starts name and its required dependencies. Optional
// edges are not followed, so optional cycles cannot recurse.
func (o *Orchestrator) ensureRequiredClosure(ctx context.Context, name string) error {
	order, err := o.currentGraph().StartupOrder(dependency.NodeID(name))
	if err != nil {
		return err
	}
	for _, id := range order {
		if err := o.ensureRunning(ctx, string(id)); err != nil {
			return err
		}
	}
	return nil
}

// ensureRunning starts an instance of service unless one is already Running.
func (o *Orchestrator) ensureRunning(ctx context.Context, service string) error {
	def, err := o.definition(service)
	if err != nil {
		return err
	}

	lock := o.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	if o.registry.Count(service, api.StateRunning) > 0 {
		return nil
	}
	logging.Info(subsystem, "Starting dependency %s", service)
	return o.launch(ctx, o.registry.Create(service, def.Weight), def)
}

// launch takes inst from Unknown, Stopped or Failed to Running. The service
// lock must be held.
func (o *Orchestrator) launch(ctx context.Context, inst *services.ServiceInstance, def config.ServiceDefinition) error {
	gen := o.nextLaunch(inst.ID)
	timeout := o.settings.StartupTimeout

	inst.UpdateState(api.StateStarting, nil)
	logging.Info(subsystem, "Starting instance %s of %s", inst.ID, def.Name)

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dep, err := containerizer.Render(def.Deployment, containerizer.NewTemplateData(def.Name, inst.ID, inst.Index))
	if err != nil {
		return o.failInstance(inst, def, fmt.Errorf("failed to render deployment of %s: %w", def.Name, err))
	}

	addr, err := o.launcher.Launch(startCtx, containerizer.LaunchSpec{
		Service:    def.Name,
		InstanceID: inst.ID,
		Index:      inst.Index,
		Deployment: dep,
	})
	if err != nil {
		if isStartupDeadline(startCtx, ctx) {
			err = &api.StartupTimeoutError{Service: def.Name, InstanceID: inst.ID, Timeout: timeout}
		} else {
			err = fmt.Errorf("failed to launch instance %s of %s: %w", inst.ID, def.Name, err)
		}
		o.discard(inst.ID)
		return o.failInstance(inst, def, err)
	}
	inst.SetAddress(addr)

	exited := o.watchExit(inst, gen)
	if err := o.awaitReady(startCtx, ctx, inst, def, exited); err != nil {
		o.discard(inst.ID)
		return o.failInstance(inst, def, err)
	}

	if !inst.CompareAndSetState(api.StateStarting, api.StateRunning) {
		return fmt.Errorf("instance %s of %s left Starting during startup (now %s)", inst.ID, def.Name, inst.State())
	}
	o.monitor.Watch(inst, def.HealthProbe)

	logging.Info(subsystem, "Instance %s of %s is running at %s", inst.ID, def.Name, addr)
	o.publisher.Publish(events.ReasonInstanceStarted, events.EventData{
		Service:  def.Name,
		Instance: inst.ID,
		Address:  addr,
		Duration: time.Since(inst.StartedAt()),
	})
	return nil
}

// awaitReady polls the health probe of a Starting instance until it succeeds
// or the grace period passes. A zero grace period waits for a probe.
func (o *Orchestrator) awaitReady(startCtx, parent context.Context, inst *services.ServiceInstance, def config.ServiceDefinition, exited <-chan struct{}) error {
	var graceC <-chan time.Time
	if grace := o.settings.StartupGracePeriod; grace > 0 {
		t := time.NewTimer(grace)
		defer t.Stop()
		graceC = t.C
	}
	ticker := time.NewTicker(o.startupPoll)
	defer ticker.Stop()

	for {
		ok, err := o.monitor.ProbeOnce(startCtx, inst, def.HealthProbe)
		if ok {
			inst.SetHealth(api.HealthHealthy)
			return nil
		}
		if err != nil {
			logging.Debug(subsystem, "Startup probe of instance %s failed: %v", inst.ID, err)
		}

		select {
		case <-startCtx.Done():
			if isStartupDeadline(startCtx, parent) {
				return &api.StartupTimeoutError{Service: def.Name, InstanceID: inst.ID, Timeout: o.settings.StartupTimeout}
			}
			return parent.Err()
		case <-exited:
			return fmt.Errorf("instance %s of %s exited during startup", inst.ID, def.Name)
		case <-graceC:
			logging.Info(subsystem, "Instance %s of %s passed its startup grace period without a healthy probe", inst.ID, def.Name)
			return nil
		case <-ticker.C:
		}
	}
}

// isStartupDeadline reports whether startCtx ended because of its own
// deadline rather than the caller's context.
func isStartupDeadline(startCtx, parent context.Context) bool {
	return errors.Is(startCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

// discard makes sure nothing is left running for a failed launch.
func (o *Orchestrator) discard(instanceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.settings.StopTimeout)
	defer cancel()
	if err := o.launcher.Kill(ctx, instanceID); err != nil {
		logging.Warn(subsystem, "Failed to clean up instance %s: %v", instanceID, err)
	}
}

// StopService stops one instance. Stopping the last Running instance of a
// service is refused while a service that requires it still runs.
func (o *Orchestrator) StopService(ctx context.Context, instanceID string) error {
	inst, ok := o.registry.Get(instanceID)
	if !ok {
		return api.NewInstanceNotFoundError(instanceID)
	}

	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()

	if o.isLastRunning(inst) {
		if err := o.checkDependents(inst.ServiceName); err != nil {
			return err
		}
	}
	return o.stopLocked(ctx, inst, false)
}

// ForceStopService kills one instance without asking it to terminate first.
// The dependents check of StopService applies.
func (o *Orchestrator) ForceStopService(ctx context.Context, instanceID string) error {
	inst, ok := o.registry.Get(instanceID)
	if !ok {
		return api.NewInstanceNotFoundError(instanceID)
	}

	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()

	if o.isLastRunning(inst) {
		if err := o.checkDependents(inst.ServiceName); err != nil {
			return err
		}
	}
	return o.stopLocked(ctx, inst, true)
}

// StopServiceCascade stops one instance. When it is the last Running
// instance of its service, every service depending on it is stopped first,
// most dependent first.
func (o *Orchestrator) StopServiceCascade(ctx context.Context, instanceID string) error {
	inst, ok := o.registry.Get(instanceID)
	if !ok {
		return api.NewInstanceNotFoundError(instanceID)
	}

	if o.isLastRunning(inst) {
		if err := o.stopDependents(ctx, inst.ServiceName); err != nil {
			return err
		}
	}

	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()
	return o.stopLocked(ctx, inst, false)
}

// StopAllInstances stops every instance of a service. Without cascade the
// call is refused while dependents run.
func (o *Orchestrator) StopAllInstances(ctx context.Context, service string, cascade bool) error {
	if _, err := o.definition(service); err != nil && len(o.registry.ForService(service)) == 0 {
		return err
	}

	if cascade {
		if err := o.stopDependents(ctx, service); err != nil {
			return err
		}
	} else if o.registry.Count(service, api.StateRunning) > 0 {
		if err := o.checkDependents(service); err != nil {
			return err
		}
	}
	return o.stopServiceInstances(ctx, service)
}

func (o *Orchestrator) stopDependents(ctx context.Context, service string) error {
	var errs []error
	for _, dep := range o.currentGraph().TransitiveDependents(dependency.NodeID(service)) {
		if err := o.stopServiceInstances(ctx, string(dep)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to stop dependents of %s: %w", service, err)
	}
	return nil
}

func (o *Orchestrator) stopServiceInstances(ctx context.Context, service string) error {
	lock := o.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	var errs []error
	for _, inst := range o.registry.ForService(service) {
		if inst.State() == api.StateStopped {
			continue
		}
		if err := o.stopLocked(ctx, inst, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) isLastRunning(inst *services.ServiceInstance) bool {
	return inst.State() == api.StateRunning && o.registry.Count(inst.ServiceName, api.StateRunning) == 1
}

// CheckDependents returns api.DependentsRunningError when a direct required
// dependent of service has a Running instance.
func (o *Orchestrator) CheckDependents(service string) error {
	return o.checkDependents(service)
}

func (o *Orchestrator) checkDependents(service string) error {
	var running []string
	for _, dep := range o.currentGraph().Dependents(dependency.NodeID(service)) {
		if o.registry.Count(string(dep), api.StateRunning) > 0 {
			running = append(running, string(dep))
		}
	}
	if len(running) > 0 {
		return &api.DependentsRunningError{Service: service, Dependents: running}
	}
	return nil
}

// stopLocked stops inst gracefully, falling back to a forced kill after the
// stop timeout. With force the graceful attempt is skipped. The service lock
// must be held.
func (o *Orchestrator) stopLocked(ctx context.Context, inst *services.ServiceInstance, force bool) error {
	if inst.State() == api.StateStopped {
		return nil
	}

	o.CancelRestart(inst.ID)
	o.nextLaunch(inst.ID)
	o.monitor.Unwatch(inst.ID)
	inst.UpdateState(api.StateStopping, nil)

	var err error
	if force {
		logging.Info(subsystem, "Killing instance %s of %s", inst.ID, inst.ServiceName)
		err = errors.New("forced stop")
	} else {
		logging.Info(subsystem, "Stopping instance %s of %s", inst.ID, inst.ServiceName)
		stopCtx, cancel := context.WithTimeout(ctx, o.settings.StopTimeout)
		err = o.launcher.Terminate(stopCtx, inst.ID)
		cancel()
		if err != nil {
			logging.Warn(subsystem, "Instance %s of %s did not stop within %s, killing it: %v", inst.ID, inst.ServiceName, o.settings.StopTimeout, err)
		}
	}

	reason := events.ReasonInstanceStopped
	if err != nil {
		killCtx, cancel := context.WithTimeout(context.Background(), o.settings.StopTimeout)
		kerr := o.launcher.Kill(killCtx, inst.ID)
		cancel()
		if kerr != nil {
			kerr = fmt.Errorf("failed to kill instance %s of %s: %w", inst.ID, inst.ServiceName, kerr)
			inst.UpdateState(api.StateFailed, kerr)
			o.publisher.Publish(events.ReasonInstanceFailed, events.EventData{
				Service:  inst.ServiceName,
				Instance: inst.ID,
				Error:    kerr.Error(),
			})
			return kerr
		}
		reason = events.ReasonInstanceForceStopped
	}

	o.breakers.Remove(inst.ServiceName, inst.ID)
	inst.UpdateState(api.StateStopped, nil)
	o.publisher.Publish(reason, events.EventData{
		Service:  inst.ServiceName,
		Instance: inst.ID,
		Address:  inst.Address(),
	})
	return nil
}

// StartAll boots every service in startup order up to its MinInstances. A
// failing service does not abort the others; only its required dependents
// are skipped. All failures are returned joined.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	order, err := o.currentGraph().FullStartupOrder()
	if err != nil {
		return err
	}

	failed := make(map[string]bool)
	var errs []error
	for _, id := range order {
		name := string(id)
		def, ok := o.Definition(name)
		if !ok {
			continue
		}

		if blocker := failedDependency(def, failed); blocker != "" {
			failed[name] = true
			logging.Warn(subsystem, "Skipping %s: required dependency %s failed to start", name, blocker)
			errs = append(errs, fmt.Errorf("skipped %s: required dependency %s failed to start", name, blocker))
			continue
		}

		for o.registry.Count(name, api.StateStarting, api.StateRunning) < def.MinInstances {
			if ctx.Err() != nil {
				return errors.Join(append(errs, ctx.Err())...)
			}
			if _, err := o.StartService(ctx, name); err != nil {
				failed[name] = true
				logging.Error(subsystem, err, "Failed to start %s", name)
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func failedDependency(def config.ServiceDefinition, failed map[string]bool) string {
	for _, dep := range def.RequiredDependencies() {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

// StopAll stops every instance in reverse startup order. Instances of
// services no longer defined are stopped last.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	order, err := o.currentGraph().FullStartupOrder()
	if err != nil {
		return err
	}

	var errs []error
	stopped := make(map[string]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		name := string(order[i])
		stopped[name] = true
		if err := o.stopServiceInstances(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	for _, inst := range o.registry.All() {
		if stopped[inst.ServiceName] {
			continue
		}
		stopped[inst.ServiceName] = true
		if err := o.stopServiceInstances(ctx, inst.ServiceName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetMaintenance moves a Running instance into Maintenance or back. An
// instance in Maintenance is still probed but receives no traffic.
func (o *Orchestrator) SetMaintenance(instanceID string, enabled bool) error {
	inst, ok := o.registry.Get(instanceID)
	if !ok {
		return api.NewInstanceNotFoundError(instanceID)
	}

	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()

	from, to, reason := api.StateRunning, api.StateMaintenance, events.ReasonInstanceMaintenanceEntered
	if !enabled {
		from, to, reason = api.StateMaintenance, api.StateRunning, events.ReasonInstanceMaintenanceExited
	}
	if !inst.CompareAndSetState(from, to) {
		if inst.State() == to {
			return nil
		}
		return fmt.Errorf("instance %s is %s, expected %s", instanceID, inst.State(), from)
	}

	logging.Info(subsystem, "Instance %s of %s is now %s", instanceID, inst.ServiceName, to)
	o.publisher.Publish(reason, events.EventData{
		Service:  inst.ServiceName,
		Instance: inst.ID,
		Address:  inst.Address(),
	})
	return nil
}

// SetWeight changes the load-balancing weight of an instance. The next
// selection uses it.
func (o *Orchestrator) SetWeight(instanceID string, weight int64) error {
	if weight < 0 {
		return fmt.Errorf("weight must not be negative, got %d", weight)
	}
	inst, ok := o.registry.Get(instanceID)
	if !ok {
		return api.NewInstanceNotFoundError(instanceID)
	}
	inst.SetWeight(weight)
	logging.Info(subsystem, "Set weight of instance %s (%s) to %d", instanceID, inst.ServiceName, weight)
	return nil
}
