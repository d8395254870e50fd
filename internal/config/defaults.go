package config

import (
	"time"

	"conductor/internal/api"
)

const (
	DefaultListenAddress = "127.0.0.1:8095"
	DefaultProbePath     = "/health"
)

// GetDefaultConfig returns the configuration used when config.yaml is absent
// and the base onto which config.yaml is decoded.
func GetDefaultConfig() ConductorConfig {
	return ConductorConfig{
		Orchestrator: DefaultOrchestratorSettings(),
		Server: ServerConfig{
			Enabled: true,
			Listen:  DefaultListenAddress,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultOrchestratorSettings returns the fleet-wide defaults.
func DefaultOrchestratorSettings() OrchestratorSettings {
	return OrchestratorSettings{
		HealthProbeInterval: 10 * time.Second,
		HealthProbeTimeout:  2 * time.Second,
		ProbeWorkers:        16,

		FailureThreshold: 3,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,

		StartupTimeout:     30 * time.Second,
		StartupGracePeriod: 5 * time.Second,
		StopTimeout:        10 * time.Second,
		DrainTimeout:       30 * time.Second,
		ForwardTimeout:     30 * time.Second,
		PublishTimeout:     time.Second,

		ScaleInterval:  15 * time.Second,
		StoppedTTL:     5 * time.Minute,
		ReloadDebounce: 500 * time.Millisecond,

		DefaultAlgorithm: string(api.AlgorithmRoundRobin),
		RestartDefaults: RestartPolicy{
			Mode:           RestartOnFailure,
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Jitter:         true,
		},
	}
}

// DefaultServiceDefinition returns the base onto which a service file is
// decoded, seeded from the orchestrator settings.
func DefaultServiceDefinition(settings OrchestratorSettings) ServiceDefinition {
	return ServiceDefinition{
		HealthProbe: ProbeSpec{
			Kind:     ProbeHTTP,
			Path:     DefaultProbePath,
			Interval: settings.HealthProbeInterval,
			Timeout:  settings.HealthProbeTimeout,
		},
		RestartPolicy: settings.RestartDefaults,
		MinInstances:  1,
		MaxInstances:  1,
		Weight:        1,
		Algorithm:     settings.DefaultAlgorithm,
	}
}
