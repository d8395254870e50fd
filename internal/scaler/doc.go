// Package scaler implements the scaling controller.
//
// ScaleService validates the target against a service's MinInstances and
// MaxInstances and then moves the active instance count (Starting and
// Running; Maintenance does not count) to the target. Scale-down picks the
// oldest Running instances, moves them to Maintenance so the router stops
// selecting them, waits for their in-flight requests to finish or the drain
// timeout to pass, and stops them. Victims drain in parallel.
//
// Start runs a background loop that restores MinInstances for every service,
// replacing instances that failed or were put into maintenance.
package scaler
