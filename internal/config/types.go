package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConductorConfig is the top-level configuration structure loaded from config.yaml.
type ConductorConfig struct {
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	Server       ServerConfig         `yaml:"server"`
	Logging      LoggingConfig        `yaml:"logging"`
}

// ServerConfig configures the admin and routing HTTP API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"required_if=Enabled true"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// OrchestratorSettings holds the fleet-wide tunables. Per-service values in a
// ServiceDefinition take precedence where both exist.
type OrchestratorSettings struct {
	HealthProbeInterval time.Duration `yaml:"healthProbeInterval" validate:"gt=0"`
	HealthProbeTimeout  time.Duration `yaml:"healthProbeTimeout" validate:"gt=0"`
	ProbeWorkers        int           `yaml:"probeWorkers" validate:"min=1"`

	FailureThreshold int           `yaml:"failureThreshold" validate:"min=1"`
	SuccessThreshold int           `yaml:"successThreshold" validate:"min=1"`
	RecoveryTimeout  time.Duration `yaml:"recoveryTimeout" validate:"gt=0"`

	StartupTimeout     time.Duration `yaml:"startupTimeout" validate:"gt=0"`
	StartupGracePeriod time.Duration `yaml:"startupGracePeriod" validate:"gte=0"`
	StopTimeout        time.Duration `yaml:"stopTimeout" validate:"gt=0"`
	DrainTimeout       time.Duration `yaml:"drainTimeout" validate:"gt=0"`
	ForwardTimeout     time.Duration `yaml:"forwardTimeout" validate:"gt=0"`
	PublishTimeout     time.Duration `yaml:"publishTimeout" validate:"gt=0"`

	ScaleInterval  time.Duration `yaml:"scaleInterval" validate:"gt=0"`
	StoppedTTL     time.Duration `yaml:"stoppedTTL" validate:"gt=0"`
	ReloadDebounce time.Duration `yaml:"reloadDebounce" validate:"gte=0"`

	DefaultAlgorithm string        `yaml:"defaultAlgorithm" validate:"omitempty,algorithm"`
	RestartDefaults  RestartPolicy `yaml:"restartDefaults"`
}

// Runtime names an instance launcher implementation.
type Runtime string

const (
	RuntimeDocker  Runtime = "docker"
	RuntimeProcess Runtime = "process"
	RuntimeStatic  Runtime = "static"
)

// ProbeKind names a health probe implementation.
type ProbeKind string

const (
	ProbeHTTP ProbeKind = "http"
	ProbeTCP  ProbeKind = "tcp"
	ProbeBus  ProbeKind = "bus"
)

// RestartMode controls when a failed instance is restarted.
type RestartMode string

const (
	RestartAlways    RestartMode = "always"
	RestartOnFailure RestartMode = "on-failure"
	RestartNever     RestartMode = "never"
)

// ServiceDefinition describes one logical service. Definitions are immutable
// once loaded; a redeploy replaces the record wholesale.
type ServiceDefinition struct {
	Name          string           `yaml:"name" validate:"required,servicename"`
	Deployment    DeploymentSpec   `yaml:"deployment"`
	DependsOn     []DependencySpec `yaml:"dependsOn,omitempty" validate:"dive"`
	HealthProbe   ProbeSpec        `yaml:"healthProbe"`
	RestartPolicy RestartPolicy    `yaml:"restartPolicy"`
	MinInstances  int              `yaml:"minInstances" validate:"min=0"`
	MaxInstances  int              `yaml:"maxInstances" validate:"min=1"`
	Weight        int64            `yaml:"weight" validate:"min=0"`
	Priority      int              `yaml:"priority"`
	Algorithm     string           `yaml:"algorithm,omitempty" validate:"omitempty,algorithm"`

	// SourceFile is the file the definition was loaded from.
	SourceFile string `yaml:"-"`
}

// DeploymentSpec is the template handed to the instance launcher. Env values
// and Address are Go templates rendered per instance.
type DeploymentSpec struct {
	Runtime Runtime           `yaml:"runtime" validate:"required,oneof=docker process static"`
	Image   string            `yaml:"image,omitempty" validate:"required_if=Runtime docker"`
	Command []string          `yaml:"command,omitempty" validate:"required_if=Runtime process"`
	Env     map[string]string `yaml:"env,omitempty"`
	Ports   []string          `yaml:"ports,omitempty"`
	Address string            `yaml:"address,omitempty" validate:"required_if=Runtime static"`
	WorkDir string            `yaml:"workDir,omitempty"`
}

// DependencySpec is one dependsOn entry. It accepts either a bare service name
// (a required dependency) or a mapping with service and required keys.
type DependencySpec struct {
	Service  string `yaml:"service" validate:"required,servicename"`
	Required bool   `yaml:"required"`
}

// UnmarshalYAML implements yaml.Unmarshaler so that required defaults to true.
func (d *DependencySpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Service = value.Value
		d.Required = true
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: dependsOn entry must be a service name or a mapping", value.Line)
	}

	var raw struct {
		Service  string `yaml:"service"`
		Required *bool  `yaml:"required"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d.Service = raw.Service
	d.Required = raw.Required == nil || *raw.Required
	return nil
}

// ProbeSpec configures the health probe of every instance of a service.
type ProbeSpec struct {
	Kind     ProbeKind     `yaml:"kind" validate:"required,oneof=http tcp bus"`
	Path     string        `yaml:"path,omitempty"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

// RestartPolicy bounds automatic restarts of failed instances.
type RestartPolicy struct {
	Mode           RestartMode   `yaml:"mode" validate:"required,oneof=always on-failure never"`
	MaxAttempts    int           `yaml:"maxAttempts" validate:"min=0"`
	InitialBackoff time.Duration `yaml:"initialBackoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" validate:"gtefield=InitialBackoff"`
	Jitter         bool          `yaml:"jitter"`
}

// RequiredDependencies returns the names of the required dependencies.
func (d ServiceDefinition) RequiredDependencies() []string {
	var out []string
	for _, dep := range d.DependsOn {
		if dep.Required {
			out = append(out, dep.Service)
		}
	}
	return out
}

// OptionalDependencies returns the names of the optional dependencies.
func (d ServiceDefinition) OptionalDependencies() []string {
	var out []string
	for _, dep := range d.DependsOn {
		if !dep.Required {
			out = append(out, dep.Service)
		}
	}
	return out
}
