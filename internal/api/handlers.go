package api

import (
	"context"
	"net/http"
	"sync"

	"conductor/pkg/logging"
)

// FleetHandler is the contract the admin API and the command subscriptions use
// to drive the control plane. The orchestrator registers an adapter that
// implements it; callers never import the orchestrator package directly.
type FleetHandler interface {
	Topology() Topology
	Stats(service string) (ServiceStats, error)
	StartupOrder(service string) ([]string, error)

	StartService(ctx context.Context, service string) (InstanceInfo, error)
	StopInstance(ctx context.Context, instanceID string, cascade bool) error
	ScaleService(ctx context.Context, service string, target int) (ScaleResult, error)
	SetMaintenance(instanceID string, enabled bool) error
	SetWeight(instanceID string, weight int64) error

	Route(ctx context.Context, service string, req *http.Request) (*http.Response, error)
}

var (
	fleetHandler FleetHandler

	// handlerMutex protects handler registration and access.
	handlerMutex sync.RWMutex
)

// RegisterFleet registers the fleet handler implementation. Subsequent
// registrations replace the previous handler.
//
// Thread-safe: Yes, protected by handlerMutex.
func RegisterFleet(h FleetHandler) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	logging.Debug("API", "Registering fleet handler: %v", h != nil)
	fleetHandler = h
}

// GetFleet returns the registered fleet handler, or nil if none is registered.
//
// Thread-safe: Yes, protected by handlerMutex read lock.
func GetFleet() FleetHandler {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return fleetHandler
}
