package api

import (
	"fmt"
	"strings"
)

// LifecycleState represents where an instance is in its start/stop lifecycle.
// It is independent of the circuit breaker state: a Running instance may still
// be breaker-open and therefore excluded from routing.
type LifecycleState string

const (
	StateUnknown     LifecycleState = "Unknown"
	StateStopped     LifecycleState = "Stopped"
	StateStarting    LifecycleState = "Starting"
	StateRunning     LifecycleState = "Running"
	StateStopping    LifecycleState = "Stopping"
	StateFailed      LifecycleState = "Failed"
	StateMaintenance LifecycleState = "Maintenance"
)

// IsActive reports whether an instance in this state holds launcher resources
// that must be released by a stop.
func (s LifecycleState) IsActive() bool {
	switch s {
	case StateStarting, StateRunning, StateMaintenance:
		return true
	default:
		return false
	}
}

// HealthStatus is the result of the most recent health probe.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// BreakerState is the fault-isolation state of a single instance.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Algorithm names a load-balancing policy.
type Algorithm string

const (
	AlgorithmRoundRobin         Algorithm = "round-robin"
	AlgorithmLeastConnections   Algorithm = "least-connections"
	AlgorithmWeightedRoundRobin Algorithm = "weighted-round-robin"
	AlgorithmRandom             Algorithm = "random"
)

// Algorithms lists every supported algorithm in a stable order.
var Algorithms = []Algorithm{
	AlgorithmRoundRobin,
	AlgorithmLeastConnections,
	AlgorithmWeightedRoundRobin,
	AlgorithmRandom,
}

// ParseAlgorithm accepts the canonical names plus a few common spellings.
// An empty string selects round robin.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "round-robin", "roundrobin", "rr":
		return AlgorithmRoundRobin, nil
	case "least-connections", "leastconnections", "least-conn", "lc":
		return AlgorithmLeastConnections, nil
	case "weighted-round-robin", "weightedroundrobin", "wrr":
		return AlgorithmWeightedRoundRobin, nil
	case "random":
		return AlgorithmRandom, nil
	default:
		return "", fmt.Errorf("unsupported load-balancing algorithm %q", s)
	}
}
