// Package metrics exposes Prometheus collectors for conductor's router,
// health monitor, circuit breakers and instance lifecycle.
//
// Collectors are registered with the registerer passed to New; pass nil in
// tests to get working collectors without touching a registry.
package metrics
