package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/server"
)

type stubFleet struct {
	stopped  string
	cascade  bool
	weight   int64
	draining bool
}

func (f *stubFleet) Topology() api.Topology {
	started := time.Now().Add(-90 * time.Second)
	return api.Topology{
		Definitions: []api.DefinitionInfo{
			{Name: "api", Runtime: "process", MinInstances: 1, MaxInstances: 3, Algorithm: api.AlgorithmRoundRobin,
				DependsOn: []api.DependencyInfo{{Service: "db", Required: true}, {Service: "cache"}}},
			{Name: "db", Runtime: "static", MinInstances: 1, MaxInstances: 1, Algorithm: api.AlgorithmRoundRobin},
		},
		Instances: []api.InstanceInfo{
			{ID: "db-1", Service: "db", State: api.StateRunning, Health: api.HealthHealthy, Address: "127.0.0.1:5432", Weight: 1, StartedAt: &started},
			{ID: "api-1", Service: "api", State: api.StateRunning, Health: api.HealthHealthy, Address: "127.0.0.1:8080", Weight: 1, StartedAt: &started},
		},
	}
}

func (f *stubFleet) Stats(service string) (api.ServiceStats, error) {
	if service != "api" {
		return api.ServiceStats{}, api.NewServiceNotFoundError(service)
	}
	return api.ServiceStats{Service: "api", Algorithm: api.AlgorithmRoundRobin, HealthyCount: 1, TotalRequests: 10}, nil
}

func (f *stubFleet) StartupOrder(service string) ([]string, error) {
	return []string{"db", service}, nil
}

func (f *stubFleet) StartService(_ context.Context, service string) (api.InstanceInfo, error) {
	return api.InstanceInfo{ID: service + "-2", Service: service, State: api.StateRunning}, nil
}

func (f *stubFleet) StopInstance(_ context.Context, id string, cascade bool) error {
	if id == "db-1" && !cascade {
		return &api.DependentsRunningError{Service: "db", Dependents: []string{"api"}}
	}
	f.stopped, f.cascade = id, cascade
	return nil
}

func (f *stubFleet) ScaleService(_ context.Context, service string, target int) (api.ScaleResult, error) {
	if target > 3 {
		return api.ScaleResult{}, &api.InvalidTargetError{Service: service, Target: target, Min: 1, Max: 3}
	}
	return api.ScaleResult{Service: service, Previous: 1, Target: target, Started: []string{"api-2"}}, nil
}

func (f *stubFleet) SetMaintenance(_ string, enabled bool) error {
	f.draining = enabled
	return nil
}

func (f *stubFleet) SetWeight(_ string, weight int64) error {
	f.weight = weight
	return nil
}

func (f *stubFleet) Route(context.Context, string, *http.Request) (*http.Response, error) {
	return nil, &api.NoHealthyInstanceError{Service: "api"}
}

func newTestClient(t *testing.T) (*Client, *stubFleet) {
	t.Helper()
	f := &stubFleet{}
	api.RegisterFleet(f)
	t.Cleanup(func() { api.RegisterFleet(nil) })

	ts := httptest.NewServer(server.NewRouter(prometheus.NewRegistry()))
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, ts.Client()), f
}

func TestClient_ReadOperations(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	topo, err := c.Topology(ctx)
	require.NoError(t, err)
	assert.Len(t, topo.Definitions, 2)
	assert.Len(t, topo.Instances, 2)

	stats, err := c.Stats(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalRequests)

	order, err := c.StartupOrder(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api"}, order)
}

func TestClient_WriteOperations(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	info, err := c.StartService(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "api-2", info.ID)

	require.NoError(t, c.StopInstance(ctx, "api-1", true))
	assert.Equal(t, "api-1", f.stopped)
	assert.True(t, f.cascade)

	res, err := c.ScaleService(ctx, "api", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Target)

	require.NoError(t, c.SetMaintenance(ctx, "api-1", true))
	assert.True(t, f.draining)

	require.NoError(t, c.SetWeight(ctx, "api-1", 5))
	assert.Equal(t, int64(5), f.weight)
}

func TestClient_Errors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Stats(ctx, "ghost")
	assert.True(t, IsAPIStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "ghost")

	err = c.StopInstance(ctx, "db-1", false)
	assert.True(t, IsAPIStatus(err, http.StatusConflict))

	_, err = c.ScaleService(ctx, "api", 9)
	assert.True(t, IsAPIStatus(err, http.StatusBadRequest))
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewClient(url, &http.Client{Timeout: time.Second})
	err := c.Health(context.Background())
	require.Error(t, err)
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ConnectionErrorNetwork, ce.Type)
}

func TestClient_NoFleet(t *testing.T) {
	api.RegisterFleet(nil)
	ts := httptest.NewServer(server.NewRouter(prometheus.NewRegistry()))
	defer ts.Close()

	err := NewClient(ts.URL, ts.Client()).Health(context.Background())
	assert.True(t, IsAPIStatus(err, http.StatusServiceUnavailable))
}

func TestExecutor_Run(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		format OutputFormat
		want   []string
	}{
		{format: OutputFormatTable, want: []string{"SERVICE", "api", "db,cache?", "1/1-3", "api-1", "127.0.0.1:8080", "1m"}},
		{format: OutputFormatWide, want: []string{"RESTARTS", "PRIORITY"}},
		{format: OutputFormatJSON, want: []string{`"definitions"`, `"id": "api-1"`}},
		{format: OutputFormatYAML, want: []string{"definitions:", "id: api-1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			e := NewExecutor(ExecutorOptions{Format: tt.format, Quiet: true, Endpoint: c.Endpoint()})
			var out, errOut bytes.Buffer
			e.SetOutput(&out, &errOut)

			err := e.Run(context.Background(), "Loading topology...", func(ctx context.Context, c *Client) (any, error) {
				return c.Topology(ctx)
			})
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
			assert.Empty(t, errOut.String())
		})
	}
}

func TestExecutor_RunError(t *testing.T) {
	c, _ := newTestClient(t)
	e := NewExecutor(ExecutorOptions{Format: OutputFormatTable, Endpoint: c.Endpoint(), Timeout: time.Second})
	var out, errOut bytes.Buffer
	e.SetOutput(&out, &errOut)

	err := e.Run(context.Background(), "Loading stats...", func(ctx context.Context, c *Client) (any, error) {
		return c.Stats(ctx, "ghost")
	})
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "Command failed")
	assert.Empty(t, out.String())
}

func TestExecutor_NoHeaders(t *testing.T) {
	e := NewExecutor(ExecutorOptions{Format: OutputFormatTable, NoHeaders: true, Quiet: true})
	var out bytes.Buffer
	e.SetOutput(&out, &out)

	require.NoError(t, e.Print([]string{"db", "api"}))
	assert.NotContains(t, out.String(), "SERVICE")
	assert.Contains(t, out.String(), "db")
}

func TestExecutor_Status(t *testing.T) {
	var out bytes.Buffer
	e := NewExecutor(ExecutorOptions{Format: OutputFormatTable})
	e.SetOutput(&out, &out)
	e.Status("Instance api-1 stopped")
	assert.Contains(t, out.String(), "Instance api-1 stopped")

	out.Reset()
	e = NewExecutor(ExecutorOptions{Format: OutputFormatJSON})
	e.SetOutput(&out, &out)
	e.Status("Instance api-1 stopped")
	assert.Empty(t, out.String())
}

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range ValidOutputFormats {
		assert.NoError(t, ValidateOutputFormat(string(f)))
	}
	assert.Error(t, ValidateOutputFormat("xml"))
}
