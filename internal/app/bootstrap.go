package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conductor/internal/config"
	"conductor/pkg/logging"
)

const subsystem = "Bootstrap"

// Application wires the control plane together and runs it.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, load service
//     definitions and build the components
//  2. Execution phase: boot the fleet, serve the admin API and watch for
//     definition changes until the context ends
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/conductor", "")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration and definitions and initializes every
// component. Definitions that fail to load abort the bootstrap.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.ConfigPath == "" {
		return nil, fmt.Errorf("config path must not be empty")
	}

	if cfg.ConductorConfig == nil {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error(subsystem, err, "Failed to load configuration from %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
		}
		cfg.ConductorConfig = &loaded
	}
	if cfg.Listen != "" {
		cfg.ConductorConfig.Server.Listen = cfg.Listen
		cfg.ConductorConfig.Server.Enabled = true
	}

	if err := initLogging(cfg); err != nil {
		return nil, err
	}

	defs, err := config.LoadServiceDefinitions(cfg.ConfigPath, cfg.ConductorConfig.Orchestrator)
	if err != nil {
		var collection *config.ConfigurationErrorCollection
		if errors.As(err, &collection) {
			logging.Error(subsystem, err, "Service definitions are invalid:\n%s", collection.Report())
		}
		return nil, fmt.Errorf("failed to load service definitions: %w", err)
	}

	services, err := InitializeServices(ctx, cfg, defs)
	if err != nil {
		logging.Error(subsystem, err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) error {
	level, err := logging.ParseLevel(cfg.ConductorConfig.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(cfg.ConductorConfig.Logging.Format), os.Stderr)
	return nil
}

// Services returns the initialized components.
func (a *Application) Services() *Services {
	return a.services
}

// Run boots the fleet and blocks until ctx is cancelled or SIGINT or
// SIGTERM arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, a.services)
}
