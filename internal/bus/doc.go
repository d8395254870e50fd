// Package bus defines the message transport conductor publishes events on,
// receives commands from and uses for bus-native health probes.
//
// The transport itself is an external collaborator. Memory is the
// in-process implementation used in standalone mode and in tests; a network
// transport plugs in behind the same Bus interface.
//
// Topic layout used by conductor:
//
//	orchestrator/instance/{started|stopped|failed|maintenance}
//	orchestrator/health/{instanceId}
//	orchestrator/breaker/{opened|closed|half_open}
//	orchestrator/scale/{up|down}
//	orchestrator/command/{start|stop|scale}
//	orchestrator/command/result
//	{service}/ping/{instanceId}
package bus
