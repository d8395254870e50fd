package orchestrator

import (
	"context"
	"fmt"
	"net/http"

	"conductor/internal/api"
)

// Adapter adapts the orchestrator to implement api.FleetHandler
type Adapter struct {
	orchestrator *Orchestrator
}

// NewAPIAdapter creates a new orchestrator adapter
func NewAPIAdapter(orchestrator *Orchestrator) *Adapter {
	return &Adapter{
		orchestrator: orchestrator,
	}
}

// Register registers the adapter with the API
func (a *Adapter) Register() {
	api.RegisterFleet(a)
}

// Views
func (a *Adapter) Topology() api.Topology {
	return a.orchestrator.Topology()
}

func (a *Adapter) Stats(service string) (api.ServiceStats, error) {
	return a.orchestrator.Stats(service)
}

func (a *Adapter) StartupOrder(service string) ([]string, error) {
	return a.orchestrator.StartupOrder(service)
}

// Lifecycle
func (a *Adapter) StartService(ctx context.Context, service string) (api.InstanceInfo, error) {
	inst, err := a.orchestrator.StartService(ctx, service)
	if err != nil {
		return api.InstanceInfo{}, err
	}
	return inst.Info(a.orchestrator.breakers.State(inst.ServiceName, inst.ID)), nil
}

func (a *Adapter) StopInstance(ctx context.Context, instanceID string, cascade bool) error {
	if cascade {
		return a.orchestrator.StopServiceCascade(ctx, instanceID)
	}
	return a.orchestrator.StopService(ctx, instanceID)
}

func (a *Adapter) ScaleService(ctx context.Context, service string, target int) (api.ScaleResult, error) {
	scaler := a.orchestrator.getScaler()
	if scaler == nil {
		return api.ScaleResult{}, fmt.Errorf("scaling is not available")
	}
	return scaler.ScaleService(ctx, service, target)
}

func (a *Adapter) SetMaintenance(instanceID string, enabled bool) error {
	return a.orchestrator.SetMaintenance(instanceID, enabled)
}

func (a *Adapter) SetWeight(instanceID string, weight int64) error {
	return a.orchestrator.SetWeight(instanceID, weight)
}

// Routing
func (a *Adapter) Route(ctx context.Context, service string, req *http.Request) (*http.Response, error) {
	return a.orchestrator.Route(ctx, service, req)
}
