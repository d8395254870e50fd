// Package orchestrator is the lifecycle manager of the conductor fleet.
//
// The orchestrator owns the current set of service definitions and their
// dependency graph, and drives every instance through its lifecycle:
//
//	Unknown/Stopped --start--> Starting --probe or grace--> Running
//	Starting --launch error, exit or timeout--> Failed
//	Running --stop--> Stopping --> Stopped
//	Running <--toggle--> Maintenance
//	Failed --restart policy--> Starting
//
// # Starting
//
// StartService first makes sure every required dependency has a Running
// instance, starting missing ones leaves first. Optional dependencies are
// started best-effort. The new instance is then launched through the
// configured containerizer.Launcher and probed until it reports healthy or
// the startup grace period passes. The whole start is bounded by the startup
// timeout; exceeding it yields api.StartupTimeoutError.
//
// # Stopping
//
// StopService refuses to stop the last Running instance of a service while a
// service that requires it still runs (api.DependentsRunningError).
// StopServiceCascade stops those dependents first, most dependent first.
// Instances that ignore graceful termination are killed after the stop
// timeout.
//
// # Restarts
//
// Failed instances are restarted per their RestartPolicy with exponential
// backoff (see Backoff). Health probes never trigger restarts: an unhealthy
// instance is only removed from routing by its circuit breaker. Restarts are
// triggered by launch and startup failures and by exits reported by
// launchers that implement containerizer.Waiter.
//
// # Concurrency
//
// Lifecycle transitions are serialized per service. Dependency starts happen
// before the dependent's lock is taken, so no goroutine holds two service
// locks at once.
//
// # Bus commands
//
// When a bus is configured the orchestrator accepts start, stop and scale
// commands on orchestrator/command/{start,stop,scale} and publishes a
// CommandResult on orchestrator/command/result.
//
// # API integration
//
// NewAPIAdapter wraps the orchestrator as an api.FleetHandler and registers
// it with api.RegisterFleet, which is how the admin HTTP server reaches it.
package orchestrator
