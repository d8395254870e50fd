package events

import (
	"time"
)

// EventType represents the severity of an event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Instance lifecycle event reasons
const (
	// ReasonInstanceStarted indicates an instance passed its first probe or grace period.
	ReasonInstanceStarted EventReason = "InstanceStarted"

	// ReasonInstanceStopped indicates an instance was stopped.
	ReasonInstanceStopped EventReason = "InstanceStopped"

	// ReasonInstanceForceStopped indicates an instance ignored graceful termination and was killed.
	ReasonInstanceForceStopped EventReason = "InstanceForceStopped"

	// ReasonInstanceFailed indicates a launch, startup or runtime failure.
	ReasonInstanceFailed EventReason = "InstanceFailed"

	// ReasonInstanceRestartScheduled indicates a restart was scheduled after a failure.
	ReasonInstanceRestartScheduled EventReason = "InstanceRestartScheduled"

	// ReasonInstanceRestartsExhausted indicates the restart policy gave up.
	ReasonInstanceRestartsExhausted EventReason = "InstanceRestartsExhausted"

	// ReasonInstanceMaintenanceEntered indicates an instance was taken out of routing.
	ReasonInstanceMaintenanceEntered EventReason = "InstanceMaintenanceEntered"

	// ReasonInstanceMaintenanceExited indicates an instance returned to routing.
	ReasonInstanceMaintenanceExited EventReason = "InstanceMaintenanceExited"
)

// Health and breaker event reasons
const (
	// ReasonHealthChanged indicates the probe result of an instance changed.
	ReasonHealthChanged EventReason = "HealthChanged"

	// ReasonBreakerOpened indicates an instance was isolated.
	ReasonBreakerOpened EventReason = "BreakerOpened"

	// ReasonBreakerHalfOpen indicates an isolated instance accepts trial traffic.
	ReasonBreakerHalfOpen EventReason = "BreakerHalfOpen"

	// ReasonBreakerClosed indicates an instance recovered.
	ReasonBreakerClosed EventReason = "BreakerClosed"
)

// Scaling event reasons
const (
	// ReasonScaledUp indicates instances were added to reach a target.
	ReasonScaledUp EventReason = "ScaledUp"

	// ReasonScaledDown indicates instances were drained and removed.
	ReasonScaledDown EventReason = "ScaledDown"

	// ReasonDrainTimeout indicates an instance was stopped with requests still in flight.
	ReasonDrainTimeout EventReason = "DrainTimeout"
)

// Definition event reasons
const (
	// ReasonDefinitionsReloaded indicates a new definition set was applied.
	ReasonDefinitionsReloaded EventReason = "DefinitionsReloaded"

	// ReasonDefinitionsRejected indicates a reload was refused and the previous set kept.
	ReasonDefinitionsRejected EventReason = "DefinitionsRejected"
)

// EventData holds contextual information for event message templating.
type EventData struct {
	// Service is the service the event concerns.
	Service string

	// Instance is the instance ID, when the event concerns one instance.
	Instance string

	// Address is the instance's network address.
	Address string

	// Error contains error information for failure events.
	Error string

	// Duration is an elapsed time or a scheduled delay.
	Duration time.Duration

	// Attempt is the restart attempt number.
	Attempt int

	// Health is the new probe status for health events.
	Health string

	// Previous and Target are instance counts for scale events.
	Previous int
	Target   int

	// Count is a generic counter (remaining connections, loaded definitions).
	Count int
}

// Event is the payload published on the bus, JSON encoded.
type Event struct {
	Topic     string                 `json:"topic"`
	Reason    EventReason            `json:"reason"`
	Type      EventType              `json:"type"`
	Service   string                 `json:"service,omitempty"`
	Instance  string                 `json:"instance,omitempty"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Topics
const (
	TopicPrefix = "orchestrator"

	TopicInstanceStarted     = "orchestrator/instance/started"
	TopicInstanceStopped     = "orchestrator/instance/stopped"
	TopicInstanceFailed      = "orchestrator/instance/failed"
	TopicInstanceMaintenance = "orchestrator/instance/maintenance"
	TopicHealthPrefix        = "orchestrator/health"
	TopicBreakerOpened       = "orchestrator/breaker/opened"
	TopicBreakerClosed       = "orchestrator/breaker/closed"
	TopicBreakerHalfOpen     = "orchestrator/breaker/half_open"
	TopicScaleUp             = "orchestrator/scale/up"
	TopicScaleDown           = "orchestrator/scale/down"
	TopicDefinitions         = "orchestrator/definitions"
)

// TopicFor returns the bus topic an event with the given reason is published on.
func TopicFor(reason EventReason, instanceID string) string {
	switch reason {
	case ReasonInstanceStarted:
		return TopicInstanceStarted
	case ReasonInstanceStopped, ReasonInstanceForceStopped:
		return TopicInstanceStopped
	case ReasonInstanceFailed, ReasonInstanceRestartScheduled, ReasonInstanceRestartsExhausted:
		return TopicInstanceFailed
	case ReasonInstanceMaintenanceEntered, ReasonInstanceMaintenanceExited:
		return TopicInstanceMaintenance
	case ReasonHealthChanged:
		if instanceID == "" {
			return TopicHealthPrefix
		}
		return TopicHealthPrefix + "/" + instanceID
	case ReasonBreakerOpened:
		return TopicBreakerOpened
	case ReasonBreakerClosed:
		return TopicBreakerClosed
	case ReasonBreakerHalfOpen:
		return TopicBreakerHalfOpen
	case ReasonScaledUp:
		return TopicScaleUp
	case ReasonScaledDown, ReasonDrainTimeout:
		return TopicScaleDown
	case ReasonDefinitionsReloaded, ReasonDefinitionsRejected:
		return TopicDefinitions
	default:
		return TopicPrefix + "/misc"
	}
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonInstanceFailed,
		ReasonInstanceForceStopped,
		ReasonInstanceRestartsExhausted,
		ReasonBreakerOpened,
		ReasonDrainTimeout,
		ReasonDefinitionsRejected:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
