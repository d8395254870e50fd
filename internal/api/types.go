package api

import "time"

// InstanceInfo is the externally visible snapshot of a single service instance.
type InstanceInfo struct {
	ID                string         `json:"id" yaml:"id"`
	Service           string         `json:"service" yaml:"service"`
	Address           string         `json:"address" yaml:"address"`
	State             LifecycleState `json:"state" yaml:"state"`
	Health            HealthStatus   `json:"health" yaml:"health"`
	Breaker           BreakerState   `json:"breaker" yaml:"breaker"`
	Weight            int64          `json:"weight" yaml:"weight"`
	ActiveConnections int64          `json:"activeConnections" yaml:"activeConnections"`
	TotalRequests     int64          `json:"totalRequests" yaml:"totalRequests"`
	FailedRequests    int64          `json:"failedRequests" yaml:"failedRequests"`
	LastResponseTime  time.Duration  `json:"lastResponseTime" yaml:"lastResponseTime"`
	RestartCount      int            `json:"restartCount" yaml:"restartCount"`
	StartedAt         *time.Time     `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	StoppedAt         *time.Time     `json:"stoppedAt,omitempty" yaml:"stoppedAt,omitempty"`
	LastError         string         `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// DependencyInfo is one edge of the dependency graph.
type DependencyInfo struct {
	Service  string `json:"service" yaml:"service"`
	Required bool   `json:"required" yaml:"required"`
}

// DefinitionInfo summarizes a loaded service definition.
type DefinitionInfo struct {
	Name         string           `json:"name" yaml:"name"`
	Runtime      string           `json:"runtime" yaml:"runtime"`
	DependsOn    []DependencyInfo `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	MinInstances int              `json:"minInstances" yaml:"minInstances"`
	MaxInstances int              `json:"maxInstances" yaml:"maxInstances"`
	Weight       int64            `json:"weight" yaml:"weight"`
	Priority     int              `json:"priority" yaml:"priority"`
	Algorithm    Algorithm        `json:"algorithm" yaml:"algorithm"`
	ProbeKind    string           `json:"probeKind" yaml:"probeKind"`
}

// Topology is the full fleet view returned by the admin API.
type Topology struct {
	Definitions     []DefinitionInfo            `json:"definitions" yaml:"definitions"`
	Instances       []InstanceInfo              `json:"instances" yaml:"instances"`
	DependencyGraph map[string][]DependencyInfo `json:"dependencyGraph" yaml:"dependencyGraph"`
}

// ServiceStats aggregates routing counters over all instances of a service.
type ServiceStats struct {
	Service           string        `json:"service" yaml:"service"`
	Algorithm         Algorithm     `json:"algorithm" yaml:"algorithm"`
	TotalRequests     int64         `json:"totalRequests" yaml:"totalRequests"`
	FailedRequests    int64         `json:"failedRequests" yaml:"failedRequests"`
	ActiveConnections int64         `json:"activeConnections" yaml:"activeConnections"`
	HealthyCount      int           `json:"healthyCount" yaml:"healthyCount"`
	UnhealthyCount    int           `json:"unhealthyCount" yaml:"unhealthyCount"`
	AvgResponseTime   time.Duration `json:"avgResponseTime" yaml:"avgResponseTime"`
}

// ScaleResult reports what a scale operation changed.
type ScaleResult struct {
	Service  string   `json:"service" yaml:"service"`
	Previous int      `json:"previous" yaml:"previous"`
	Target   int      `json:"target" yaml:"target"`
	Started  []string `json:"started,omitempty" yaml:"started,omitempty"`
	Stopped  []string `json:"stopped,omitempty" yaml:"stopped,omitempty"`
}
