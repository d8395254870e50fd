package app

import (
	"conductor/internal/config"
	"conductor/internal/containerizer"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of config.yaml
	Debug bool

	// ConfigPath is the directory holding config.yaml and services/
	ConfigPath string

	// Listen overrides server.listen from config.yaml when set
	Listen string

	// ConductorConfig is loaded by NewApplication when nil
	ConductorConfig *config.ConductorConfig

	// Launcher replaces the default docker/process/static launcher when set
	Launcher containerizer.Launcher
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, listen string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Listen:     listen,
	}
}
