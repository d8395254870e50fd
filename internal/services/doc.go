// Package services implements the Instance Registry.
//
// A ServiceInstance is one running copy of a service definition. The
// lifecycle manager creates records on start; the health monitor writes their
// health; the balancer updates their connection and request counters. Records
// are removed explicitly with Deregister or by ReapStopped once they have been
// Stopped for longer than the configured TTL.
//
// # Concurrency
//
// Counters (active connections, requests, weight) are atomics and safe on the
// request path without locking. State, health and timestamps are guarded by a
// per-record mutex. UpdateState notifies the StateChangeCallback outside the
// lock, so callbacks may call back into the record.
//
// # Lifecycle States
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//	Starting -> Failed -> Starting (restart policy)
//	Running <-> Maintenance
package services
