package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrZeroTotalWeight is returned by weighted selection when every candidate
// has weight zero.
var ErrZeroTotalWeight = errors.New("total candidate weight is zero")

// NotFoundError represents a resource not found error with contextual information.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "service", "instance")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// NewServiceNotFoundError creates a NotFoundError for a service definition.
func NewServiceNotFoundError(name string) *NotFoundError {
	return NewNotFoundError("service", name)
}

// NewInstanceNotFoundError creates a NotFoundError for an instance record.
func NewInstanceNotFoundError(id string) *NotFoundError {
	return NewNotFoundError("instance", id)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// CyclicDependencyError is returned when required dependencies form a cycle.
// Cycle lists every member in traversal order and repeats the first member at
// the end, e.g. [a b c a].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic required dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Members returns the distinct services that take part in the cycle.
func (e *CyclicDependencyError) Members() []string {
	if len(e.Cycle) <= 1 {
		return append([]string(nil), e.Cycle...)
	}
	return append([]string(nil), e.Cycle[:len(e.Cycle)-1]...)
}

// IsCyclicDependency reports whether err is or wraps a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	var cycleErr *CyclicDependencyError
	return errors.As(err, &cycleErr)
}

// StartupTimeoutError is returned when an instance does not become ready
// within its startup timeout.
type StartupTimeoutError struct {
	Service    string
	InstanceID string
	Timeout    time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("instance %s of service %s did not become ready within %s", e.InstanceID, e.Service, e.Timeout)
}

// IsStartupTimeout reports whether err is or wraps a StartupTimeoutError.
func IsStartupTimeout(err error) bool {
	var timeoutErr *StartupTimeoutError
	return errors.As(err, &timeoutErr)
}

// ProbeTimeoutError is returned by a health probe that exceeded its timeout.
// It is counted as a single unhealthy result and never escalated directly.
type ProbeTimeoutError struct {
	InstanceID string
	Timeout    time.Duration
}

func (e *ProbeTimeoutError) Error() string {
	return fmt.Sprintf("health probe for instance %s timed out after %s", e.InstanceID, e.Timeout)
}

// IsProbeTimeout reports whether err is or wraps a ProbeTimeoutError.
func IsProbeTimeout(err error) bool {
	var timeoutErr *ProbeTimeoutError
	return errors.As(err, &timeoutErr)
}

// NoHealthyInstanceError is returned to callers when no instance of a service
// is eligible for selection. It is never retried internally.
type NoHealthyInstanceError struct {
	Service string
}

func (e *NoHealthyInstanceError) Error() string {
	return fmt.Sprintf("no healthy instance available for service %s", e.Service)
}

// IsNoHealthyInstance reports whether err is or wraps a NoHealthyInstanceError.
func IsNoHealthyInstance(err error) bool {
	var noHealthy *NoHealthyInstanceError
	return errors.As(err, &noHealthy)
}

// DrainTimeoutError is reported when in-flight connections did not reach zero
// before the drain deadline. The instance is stopped anyway.
type DrainTimeoutError struct {
	InstanceID string
	Remaining  int64
	Timeout    time.Duration
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("drain of instance %s timed out after %s with %d active connections", e.InstanceID, e.Timeout, e.Remaining)
}

// IsDrainTimeout reports whether err is or wraps a DrainTimeoutError.
func IsDrainTimeout(err error) bool {
	var drainErr *DrainTimeoutError
	return errors.As(err, &drainErr)
}

// DependentsRunningError is returned when stopping the last running instance
// of a service would orphan services that require it.
type DependentsRunningError struct {
	Service    string
	Dependents []string
}

func (e *DependentsRunningError) Error() string {
	return fmt.Sprintf("cannot stop last instance of %s: required by running services %s",
		e.Service, strings.Join(e.Dependents, ", "))
}

// IsDependentsRunning reports whether err is or wraps a DependentsRunningError.
func IsDependentsRunning(err error) bool {
	var depErr *DependentsRunningError
	return errors.As(err, &depErr)
}

// InvalidTargetError is returned when a scale target is outside the service bounds.
type InvalidTargetError struct {
	Service string
	Target  int
	Min     int
	Max     int
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("scale target %d for service %s outside bounds [%d, %d]", e.Target, e.Service, e.Min, e.Max)
}

// IsInvalidTarget reports whether err is or wraps an InvalidTargetError.
func IsInvalidTarget(err error) bool {
	var targetErr *InvalidTargetError
	return errors.As(err, &targetErr)
}
