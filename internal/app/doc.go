// Package app bootstraps and runs the control plane.
//
// NewApplication performs the bootstrap phase:
//
//  1. Load config.yaml from the config directory (defaults when absent)
//  2. Initialize logging from logging.level and logging.format; --debug wins
//  3. Load every definition under <config>/services; any error aborts
//  4. Build the components: Prometheus registry, in-process bus,
//     orchestrator, scaler, admin API server and definition watcher
//  5. Register the orchestrator adapter with the api package so the admin
//     API and commands can reach it
//
// Run performs the execution phase: it starts the orchestrator's background
// loops, serves the admin API, boots every service in dependency order
// (failures are logged, dependents of a failed service are skipped), starts
// the scaler's minimum-enforcement loop and watches the services directory.
// A definition change reloads the whole set; a set that fails to load or
// validate is rejected and the previous definitions stay in effect.
//
// SIGINT, SIGTERM or cancellation of the context stop the fleet in reverse
// dependency order.
package app
