// Package api holds the types shared across conductor's packages.
//
// It defines the lifecycle, health and breaker enums, the load-balancing
// algorithm names, the error taxonomy and the read-only views
// (InstanceInfo, Topology, ServiceStats) that the admin API and CLI exchange.
//
// # Handler Registry
//
// The orchestrator registers a FleetHandler during bootstrap:
//
//	api.RegisterFleet(orchestrator.NewAPIAdapter(orch))
//
// The HTTP server and the bus command subscriptions obtain it with
// GetFleet. This keeps the server free of direct orchestrator imports and
// lets tests register a stub.
//
// # Errors
//
// Every error type is a pointer type with an Is* helper built on errors.As,
// so callers can classify wrapped errors:
//
//	if api.IsNoHealthyInstance(err) {
//	    w.WriteHeader(http.StatusServiceUnavailable)
//	}
package api
