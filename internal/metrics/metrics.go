package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"conductor/internal/api"
)

const namespace = "conductor"

// Metrics holds the Prometheus collectors for routing, health probes,
// breakers and instance lifecycle. All methods are nil-safe: calls on a nil
// *Metrics are no-ops.
type Metrics struct {
	// RequestsTotal counts forwarded requests by service and outcome.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes forward latency by service.
	RequestDuration *prometheus.HistogramVec

	// NoHealthyInstanceTotal counts route attempts that found no candidate.
	NoHealthyInstanceTotal *prometheus.CounterVec

	// ProbesTotal counts health probes by service and result.
	ProbesTotal *prometheus.CounterVec

	// ProbeDuration observes probe latency by service.
	ProbeDuration *prometheus.HistogramVec

	// BreakerTransitionsTotal counts breaker transitions by target state.
	BreakerTransitionsTotal *prometheus.CounterVec

	// InstanceTransitionsTotal counts lifecycle transitions by target state.
	InstanceTransitionsTotal *prometheus.CounterVec

	// Instances tracks the number of instances per service and state.
	Instances *prometheus.GaugeVec

	// RestartsTotal counts scheduled restarts by service.
	RestartsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. If reg is nil the
// collectors are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Total number of forwarded requests by service and outcome",
		}, []string{"service", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "request_duration_seconds",
			Help:      "Forwarded request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		NoHealthyInstanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "no_healthy_instance_total",
			Help:      "Route attempts rejected because no instance was eligible",
		}, []string{"service"}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total number of health probes by service and result",
		}, []string{"service", "result"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Health probe duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"service"}),
		BreakerTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker transitions by service and target state",
		}, []string{"service", "state"}),
		InstanceTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Instance lifecycle transitions by service and target state",
		}, []string{"service", "state"}),
		Instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instances",
			Help:      "Number of instances per service and lifecycle state",
		}, []string{"service", "state"}),
		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "restarts_total",
			Help:      "Scheduled restarts by service",
		}, []string{"service"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.NoHealthyInstanceTotal,
			m.ProbesTotal,
			m.ProbeDuration,
			m.BreakerTransitionsTotal,
			m.InstanceTransitionsTotal,
			m.Instances,
			m.RestartsTotal,
		)
	}

	return m
}

// RecordRequest records one forwarded request.
func (m *Metrics) RecordRequest(service string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// RecordNoHealthyInstance records a rejected route attempt.
func (m *Metrics) RecordNoHealthyInstance(service string) {
	if m == nil {
		return
	}
	m.NoHealthyInstanceTotal.WithLabelValues(service).Inc()
}

// RecordProbe records one health probe.
func (m *Metrics) RecordProbe(service string, healthy bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := string(api.HealthHealthy)
	if !healthy {
		result = string(api.HealthUnhealthy)
	}
	m.ProbesTotal.WithLabelValues(service, result).Inc()
	m.ProbeDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// RecordBreakerTransition records a breaker state change.
func (m *Metrics) RecordBreakerTransition(service string, to api.BreakerState) {
	if m == nil {
		return
	}
	m.BreakerTransitionsTotal.WithLabelValues(service, string(to)).Inc()
}

// RecordInstanceTransition records a lifecycle state change and keeps the
// per-state instance gauge in step.
func (m *Metrics) RecordInstanceTransition(service string, from, to api.LifecycleState) {
	if m == nil {
		return
	}
	m.InstanceTransitionsTotal.WithLabelValues(service, string(to)).Inc()
	if from != "" && from != api.StateUnknown {
		m.Instances.WithLabelValues(service, string(from)).Dec()
	}
	m.Instances.WithLabelValues(service, string(to)).Inc()
}

// ForgetInstance removes a deregistered instance from the state gauge.
func (m *Metrics) ForgetInstance(service string, state api.LifecycleState) {
	if m == nil || state == "" || state == api.StateUnknown {
		return
	}
	m.Instances.WithLabelValues(service, string(state)).Dec()
}

// RecordRestart records a scheduled restart.
func (m *Metrics) RecordRestart(service string) {
	if m == nil {
		return
	}
	m.RestartsTotal.WithLabelValues(service).Inc()
}
