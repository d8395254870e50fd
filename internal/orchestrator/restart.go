package orchestrator

import (
	"context"
	"fmt"
	"time"

	"conductor/internal/api"
	"conductor/internal/config"
	"conductor/internal/containerizer"
	"conductor/internal/events"
	"conductor/internal/services"
	"conductor/pkg/logging"
)

// Backoff returns the delay before restart attempt n (1-based):
// InitialBackoff * 2^(n-1), capped at MaxBackoff. With Jitter the delay is
// drawn uniformly from [0, d) using randInt63n.
func Backoff(policy config.RestartPolicy, attempt int, randInt63n func(n int64) int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := policy.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if policy.MaxBackoff > 0 && d >= policy.MaxBackoff {
			d = policy.MaxBackoff
			break
		}
	}
	if policy.MaxBackoff > 0 && d > policy.MaxBackoff {
		d = policy.MaxBackoff
	}
	if policy.Jitter && d > 0 && randInt63n != nil {
		d = time.Duration(randInt63n(int64(d)))
	}
	return d
}

// failInstance marks inst Failed, publishes the failure and schedules a
// restart per policy. It returns err for convenience. The service lock must
// be held.
func (o *Orchestrator) failInstance(inst *services.ServiceInstance, def config.ServiceDefinition, err error) error {
	o.monitor.Unwatch(inst.ID)
	inst.UpdateState(api.StateFailed, err)
	logging.Error(subsystem, err, "Instance %s of %s failed", inst.ID, def.Name)
	o.publisher.Publish(events.ReasonInstanceFailed, events.EventData{
		Service:  def.Name,
		Instance: inst.ID,
		Address:  inst.Address(),
		Error:    err.Error(),
	})
	o.scheduleRestart(inst, def.RestartPolicy, true)
	return err
}

// scheduleRestart arms a restart timer for inst when policy permits. failed
// distinguishes failures from clean exits, which only "always" restarts.
func (o *Orchestrator) scheduleRestart(inst *services.ServiceInstance, policy config.RestartPolicy, failed bool) {
	switch policy.Mode {
	case config.RestartNever:
		return
	case config.RestartOnFailure:
		if !failed {
			return
		}
	}
	if o.ctx.Err() != nil {
		return
	}

	if policy.MaxAttempts > 0 && inst.RestartCount() >= policy.MaxAttempts {
		logging.Warn(subsystem, "Instance %s of %s exhausted its %d restart attempts", inst.ID, inst.ServiceName, policy.MaxAttempts)
		o.publisher.Publish(events.ReasonInstanceRestartsExhausted, events.EventData{
			Service:  inst.ServiceName,
			Instance: inst.ID,
			Attempt:  inst.RestartCount(),
		})
		return
	}

	attempt := inst.IncRestartCount()
	delay := Backoff(policy, attempt, o.randInt63n)
	gen := o.currentLaunch(inst.ID)

	o.launchesMu.Lock()
	if old, ok := o.restarts[inst.ID]; ok {
		old.Stop()
	}
	o.restarts[inst.ID] = time.AfterFunc(delay, func() { o.restart(inst.ID, gen) })
	o.launchesMu.Unlock()

	o.metrics.RecordRestart(inst.ServiceName)
	logging.Info(subsystem, "Restarting instance %s of %s in %s (attempt %d)", inst.ID, inst.ServiceName, delay, attempt)
	o.publisher.Publish(events.ReasonInstanceRestartScheduled, events.EventData{
		Service:  inst.ServiceName,
		Instance: inst.ID,
		Attempt:  attempt,
		Duration: delay,
	})
}

// PendingRestart reports whether a restart timer is armed for the instance.
func (o *Orchestrator) PendingRestart(instanceID string) bool {
	o.launchesMu.Lock()
	defer o.launchesMu.Unlock()
	_, ok := o.restarts[instanceID]
	return ok
}

// CancelRestart disarms the pending restart of an instance. It reports
// whether a restart was pending and will no longer fire.
func (o *Orchestrator) CancelRestart(instanceID string) bool {
	o.launchesMu.Lock()
	defer o.launchesMu.Unlock()
	t, ok := o.restarts[instanceID]
	if !ok {
		return false
	}
	delete(o.restarts, instanceID)
	return t.Stop()
}

// restart relaunches an instance whose restart timer fired, unless it was
// stopped or relaunched in the meantime. Required dependencies are brought
// up again first; when that fails the instance stays Failed and the next
// attempt is scheduled. A service already at MaxInstances is left alone.
func (o *Orchestrator) restart(instanceID string, gen uint64) {
	o.launchesMu.Lock()
	delete(o.restarts, instanceID)
	o.launchesMu.Unlock()

	if o.ctx.Err() != nil {
		return
	}
	inst, ok := o.registry.Get(instanceID)
	if !ok || !o.restartable(inst, gen) {
		return
	}
	def, ok := o.Definition(inst.ServiceName)
	if !ok {
		logging.Warn(subsystem, "Not restarting instance %s: service %s is no longer defined", instanceID, inst.ServiceName)
		return
	}
	depErr := o.ensureDependencies(o.ctx, def)

	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()

	if !o.restartable(inst, gen) || o.ctx.Err() != nil {
		return
	}
	if depErr != nil {
		_ = o.failInstance(inst, def, fmt.Errorf("cannot restart instance %s of %s: %w", instanceID, def.Name, depErr))
		return
	}
	if live := o.liveCount(def.Name); live >= def.MaxInstances {
		logging.Info(subsystem, "Not restarting instance %s: %s already has %d of at most %d instances", instanceID, def.Name, live, def.MaxInstances)
		return
	}

	if err := o.launch(o.ctx, inst, def); err != nil {
		logging.Debug(subsystem, "Restart of instance %s failed: %v", instanceID, err)
	}
}

func (o *Orchestrator) restartable(inst *services.ServiceInstance, gen uint64) bool {
	if o.currentLaunch(inst.ID) != gen {
		return false
	}
	state := inst.State()
	return state == api.StateFailed || state == api.StateStopped
}

// watchExit follows the launcher's exit notification for the current launch
// of inst. The returned channel is closed when the instance exits; it is nil
// when the launcher cannot report exits.
func (o *Orchestrator) watchExit(inst *services.ServiceInstance, gen uint64) <-chan struct{} {
	w, ok := o.launcher.(containerizer.Waiter)
	if !ok {
		return nil
	}
	ch, ok := w.Wait(inst.ID)
	if !ok {
		return nil
	}

	exited := make(chan struct{})
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		var err error
		select {
		case err = <-ch:
		case <-o.ctx.Done():
			return
		}
		close(exited)
		o.handleExit(inst, gen, err)
	}()
	return exited
}

// handleExit reacts to an instance exiting on its own while Running or in
// Maintenance. Exits caused by a stop or during startup are ignored here.
func (o *Orchestrator) handleExit(inst *services.ServiceInstance, gen uint64, exitErr error) {
	lock := o.serviceLock(inst.ServiceName)
	lock.Lock()
	defer lock.Unlock()

	if o.currentLaunch(inst.ID) != gen {
		return
	}
	state := inst.State()
	if state != api.StateRunning && state != api.StateMaintenance {
		return
	}

	// Let the launcher release whatever it still tracks for the instance.
	ctx, cancel := context.WithTimeout(context.Background(), o.settings.StopTimeout)
	if err := o.launcher.Terminate(ctx, inst.ID); err != nil {
		logging.Debug(subsystem, "Cleanup of exited instance %s: %v", inst.ID, err)
	}
	cancel()
	o.breakers.Remove(inst.ServiceName, inst.ID)

	def, ok := o.Definition(inst.ServiceName)
	if !ok {
		def.Name = inst.ServiceName
		def.RestartPolicy.Mode = config.RestartNever
	}

	if exitErr != nil {
		_ = o.failInstance(inst, def, fmt.Errorf("instance %s of %s exited: %w", inst.ID, inst.ServiceName, exitErr))
		return
	}

	o.monitor.Unwatch(inst.ID)
	inst.UpdateState(api.StateStopped, nil)
	logging.Info(subsystem, "Instance %s of %s exited cleanly", inst.ID, inst.ServiceName)
	o.publisher.Publish(events.ReasonInstanceStopped, events.EventData{
		Service:  inst.ServiceName,
		Instance: inst.ID,
		Address:  inst.Address(),
	})
	o.scheduleRestart(inst, def.RestartPolicy, false)
}
