package orchestrator

import (
	"context"
	"net/http"
	"sort"

	"conductor/internal/api"
	"conductor/internal/dependency"
)

// Topology returns the loaded definitions, every registered instance and the
// dependency graph.
func (o *Orchestrator) Topology() api.Topology {
	defs := o.Definitions()
	topo := api.Topology{
		Definitions:     make([]api.DefinitionInfo, 0, len(defs)),
		Instances:       []api.InstanceInfo{},
		DependencyGraph: make(map[string][]api.DependencyInfo, len(defs)),
	}

	for _, def := range defs {
		info := api.DefinitionInfo{
			Name:         def.Name,
			Runtime:      string(def.Deployment.Runtime),
			MinInstances: def.MinInstances,
			MaxInstances: def.MaxInstances,
			Weight:       def.Weight,
			Priority:     def.Priority,
			Algorithm:    o.algorithmFor(def.Name),
			ProbeKind:    string(def.HealthProbe.Kind),
		}
		for _, dep := range def.DependsOn {
			info.DependsOn = append(info.DependsOn, api.DependencyInfo{Service: dep.Service, Required: dep.Required})
		}
		topo.Definitions = append(topo.Definitions, info)
	}

	for _, inst := range o.registry.All() {
		topo.Instances = append(topo.Instances, inst.Info(o.breakers.State(inst.ServiceName, inst.ID)))
	}

	for id, edges := range o.currentGraph().Snapshot() {
		deps := make([]api.DependencyInfo, 0, len(edges))
		for _, e := range edges {
			deps = append(deps, api.DependencyInfo{Service: string(e.To), Required: e.Required})
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i].Service < deps[j].Service })
		topo.DependencyGraph[string(id)] = deps
	}
	return topo
}

// Stats aggregates the routing counters of a service.
func (o *Orchestrator) Stats(service string) (api.ServiceStats, error) {
	if _, err := o.definition(service); err != nil {
		return api.ServiceStats{}, err
	}
	return o.router.Balancer().Stats(service, o.algorithmFor(service)), nil
}

// StartupOrder returns the order in which service and its required
// dependencies start; service itself is last.
func (o *Orchestrator) StartupOrder(service string) ([]string, error) {
	order, err := o.currentGraph().StartupOrder(dependency.NodeID(service))
	if err != nil {
		return nil, err
	}
	return dependency.Strings(order), nil
}

// FullStartupOrder returns every defined service in boot order.
func (o *Orchestrator) FullStartupOrder() ([]string, error) {
	order, err := o.currentGraph().FullStartupOrder()
	if err != nil {
		return nil, err
	}
	return dependency.Strings(order), nil
}

// Route forwards req to a healthy instance of service chosen by the
// service's load-balancing algorithm.
func (o *Orchestrator) Route(ctx context.Context, service string, req *http.Request) (*http.Response, error) {
	if _, err := o.definition(service); err != nil {
		return nil, err
	}
	resp, err := o.router.Route(ctx, service, req)
	if api.IsNoHealthyInstance(err) {
		o.metrics.RecordNoHealthyInstance(service)
	}
	return resp, err
}
