// Package logging provides subsystem-tagged structured logging for conductor,
// built on Go's standard slog package.
//
// Every entry carries a subsystem attribute so operators can filter the output
// of one component (for example "HealthMonitor" or "Router") without parsing
// messages.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Bootstrap", "Loaded %d service definitions", len(defs))
//	logging.Warn("Scaler", "Drain of %s timed out, forcing stop", id)
//	logging.Error("Orchestrator", err, "Failed to start service %s", name)
//
// # Subsystems
//
//   - Bootstrap: configuration loading and component wiring
//   - Orchestrator: instance lifecycle transitions and restarts
//   - HealthMonitor: probe cycles
//   - Breaker: circuit breaker transitions
//   - Router: instance selection and request forwarding
//   - Scaler: scale operations and drains
//   - Events: bus publication failures
//   - ConfigWatcher: definition hot reload
//   - Docker, Process: instance launchers
//   - AdminAPI: HTTP requests
//
// The package keeps a single process-wide logger. Init may be called again
// (tests do this) and the last configuration wins.
package logging
