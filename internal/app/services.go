package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"conductor/internal/bus"
	"conductor/internal/config"
	"conductor/internal/containerizer"
	"conductor/internal/metrics"
	"conductor/internal/orchestrator"
	"conductor/internal/scaler"
	"conductor/internal/server"
	"conductor/pkg/logging"
)

// busBufferSize is the per-subscription queue length of the in-process bus.
const busBufferSize = 256

// Services holds every initialized component.
//
// Initialization order:
//  1. Prometheus registry and collectors
//  2. In-process bus
//  3. Orchestrator (registry, breakers, monitor, router, launcher, publisher)
//  4. Scaler, attached to the orchestrator for scale commands
//  5. API adapter registration
//  6. Initial service definitions
//  7. Admin API server and definition watcher
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Scaler       *scaler.Scaler
	Bus          *bus.Memory
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry

	// Server is nil when server.enabled is false.
	Server *server.Server

	// Watcher reloads definitions from <config>/services.
	Watcher *config.Watcher

	configPath string
	settings   config.OrchestratorSettings
}

// InitializeServices builds and wires the components and applies defs.
func InitializeServices(ctx context.Context, cfg *Config, defs []config.ServiceDefinition) (*Services, error) {
	settings := cfg.ConductorConfig.Orchestrator

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	b := bus.NewMemory(busBufferSize)

	launcher := cfg.Launcher
	if launcher == nil {
		launcher = containerizer.NewDefaultMulti(ctx)
	}

	orch := orchestrator.New(orchestrator.Config{
		Settings: settings,
		Launcher: launcher,
		Bus:      b,
		Metrics:  m,
	})

	sc := scaler.New(orch, orch.Publisher(), scaler.Config{
		DrainTimeout:  settings.DrainTimeout,
		ScaleInterval: settings.ScaleInterval,
	})
	orch.SetScaler(sc)

	orchestrator.NewAPIAdapter(orch).Register()

	if err := orch.ApplyDefinitions(defs); err != nil {
		_ = b.Close()
		return nil, err
	}
	logging.Info(subsystem, "Loaded %d service definitions", len(defs))

	s := &Services{
		Orchestrator: orch,
		Scaler:       sc,
		Bus:          b,
		Metrics:      m,
		Registry:     reg,
		configPath:   cfg.ConfigPath,
		settings:     settings,
	}

	if cfg.ConductorConfig.Server.Enabled {
		s.Server = server.New(cfg.ConductorConfig.Server.Listen, reg)
	} else {
		logging.Info(subsystem, "Admin API disabled")
	}

	s.Watcher = config.NewWatcher(cfg.ConfigPath, settings.ReloadDebounce, func() {
		if err := s.Reload(ctx); err != nil {
			logging.Error("ConfigWatcher", err, "Reload failed, keeping the previous definitions")
		}
	})

	return s, nil
}

// Reload re-reads the definitions and applies them. A definition set with
// any load error is rejected whole. New services are brought up to their
// minimum immediately.
func (s *Services) Reload(ctx context.Context) error {
	defs, err := config.LoadServiceDefinitions(s.configPath, s.settings)
	if err != nil {
		return fmt.Errorf("failed to load service definitions: %w", err)
	}
	if err := s.Orchestrator.ApplyDefinitions(defs); err != nil {
		return err
	}
	logging.Info("ConfigWatcher", "Reloaded %d service definitions", len(defs))
	s.Scaler.EnforceMinimums(ctx)
	return nil
}
