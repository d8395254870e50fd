// Package balancer selects healthy instances and forwards requests to them.
//
// An instance is a candidate when it is Running, its last probe was healthy
// and its circuit breaker allows traffic. Candidates keep registration order
// and four algorithms choose among them:
//
//   - round-robin: a per-service cursor that wraps
//   - least-connections: fewest in-flight requests, ties rotated
//   - weighted-round-robin: each candidate occupies weight consecutive slots
//   - random: uniform
//
// An empty candidate set fails fast with api.NoHealthyInstanceError; nothing
// in this package waits for an instance to become available.
package balancer
