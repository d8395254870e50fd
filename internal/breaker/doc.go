// Package breaker implements the per-instance circuit breaker.
//
// Breakers are fed health probe results, not request outcomes. They are
// independent of the lifecycle state: a Running instance whose breaker is
// open is simply excluded from selection until it recovers.
//
//	Closed --failureThreshold unhealthy--> Open
//	Open --recoveryTimeout elapsed--> HalfOpen
//	HalfOpen --successThreshold healthy--> Closed
//	HalfOpen --any unhealthy--> Open
//
// Breaker state is never persisted; a restarted control plane starts with
// every breaker closed.
package breaker
