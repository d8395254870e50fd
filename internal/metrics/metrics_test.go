package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.RecordRequest("tts", false, 10*time.Millisecond)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["conductor_router_requests_total"])
	assert.True(t, names["conductor_router_request_duration_seconds"])

	// A second registration of the same collectors must fail.
	assert.Panics(t, func() { New(reg) })
}

func TestRecorders(t *testing.T) {
	m := New(nil)

	m.RecordRequest("tts", false, time.Millisecond)
	m.RecordRequest("tts", true, time.Millisecond)
	m.RecordRequest("tts", true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tts", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tts", "failure")))

	m.RecordNoHealthyInstance("asr")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoHealthyInstanceTotal.WithLabelValues("asr")))

	m.RecordProbe("tts", true, time.Millisecond)
	m.RecordProbe("tts", false, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbesTotal.WithLabelValues("tts", "unhealthy")))

	m.RecordBreakerTransition("tts", api.BreakerOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitionsTotal.WithLabelValues("tts", "open")))

	m.RecordRestart("tts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RestartsTotal.WithLabelValues("tts")))
}

func TestRecordInstanceTransition_Gauge(t *testing.T) {
	m := New(nil)

	m.RecordInstanceTransition("tts", api.StateUnknown, api.StateStarting)
	m.RecordInstanceTransition("tts", api.StateStarting, api.StateRunning)
	m.RecordInstanceTransition("tts", api.StateUnknown, api.StateStarting)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Instances.WithLabelValues("tts", "Running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Instances.WithLabelValues("tts", "Starting")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InstanceTransitionsTotal.WithLabelValues("tts", "Starting")))

	m.ForgetInstance("tts", api.StateRunning)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Instances.WithLabelValues("tts", "Running")))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("x", false, 0)
		m.RecordNoHealthyInstance("x")
		m.RecordProbe("x", true, 0)
		m.RecordBreakerTransition("x", api.BreakerOpen)
		m.RecordInstanceTransition("x", api.StateStopped, api.StateStarting)
		m.ForgetInstance("x", api.StateStopped)
		m.RecordRestart("x")
	})
}
