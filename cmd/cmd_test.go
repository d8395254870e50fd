package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/cli"
	"conductor/internal/config"
	"conductor/internal/server"
)

type fakeFleet struct {
	stopped     string
	cascade     bool
	maintenance *bool
	weight      int64
	scaled      int
}

func (f *fakeFleet) Topology() api.Topology {
	return api.Topology{
		Definitions: []api.DefinitionInfo{{Name: "api", Runtime: "static", MinInstances: 1, MaxInstances: 2, Algorithm: api.AlgorithmRoundRobin}},
		Instances:   []api.InstanceInfo{{ID: "api-1", Service: "api", State: api.StateRunning, Health: api.HealthHealthy}},
	}
}

func (f *fakeFleet) Stats(service string) (api.ServiceStats, error) {
	if service != "api" {
		return api.ServiceStats{}, api.NewServiceNotFoundError(service)
	}
	return api.ServiceStats{Service: "api", HealthyCount: 1, TotalRequests: 7}, nil
}

func (f *fakeFleet) StartupOrder(service string) ([]string, error) {
	return []string{service}, nil
}

func (f *fakeFleet) StartService(_ context.Context, service string) (api.InstanceInfo, error) {
	return api.InstanceInfo{ID: service + "-2", Service: service, State: api.StateRunning}, nil
}

func (f *fakeFleet) StopInstance(_ context.Context, id string, cascade bool) error {
	f.stopped, f.cascade = id, cascade
	return nil
}

func (f *fakeFleet) ScaleService(_ context.Context, service string, target int) (api.ScaleResult, error) {
	if target > 2 {
		return api.ScaleResult{}, &api.InvalidTargetError{Service: service, Target: target, Min: 1, Max: 2}
	}
	f.scaled = target
	return api.ScaleResult{Service: service, Previous: 1, Target: target}, nil
}

func (f *fakeFleet) SetMaintenance(_ string, enabled bool) error {
	f.maintenance = &enabled
	return nil
}

func (f *fakeFleet) SetWeight(_ string, weight int64) error {
	f.weight = weight
	return nil
}

func (f *fakeFleet) Route(context.Context, string, *http.Request) (*http.Response, error) {
	return nil, &api.NoHealthyInstanceError{Service: "api"}
}

func startAdminAPI(t *testing.T) (string, *fakeFleet) {
	t.Helper()
	f := &fakeFleet{}
	api.RegisterFleet(f)
	t.Cleanup(func() { api.RegisterFleet(nil) })

	ts := httptest.NewServer(server.NewRouter(prometheus.NewRegistry()))
	t.Cleanup(ts.Close)
	return ts.URL, f
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	out, err := execute(t, newVersionCmd())
	require.NoError(t, err)
	assert.Equal(t, "conductor version 1.2.3\n", out)
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"serve", "order", "topology", "stats", "start", "stop", "scale", "maintenance", "weight", "version"}
	for _, name := range want {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unreachable", err: &cli.ConnectionError{Endpoint: "http://x", Type: cli.ConnectionErrorNetwork, Reason: errors.New("refused")}, want: ExitCodeUnreachable},
		{name: "rejected", err: fmt.Errorf("wrapped: %w", &cli.APIError{Status: http.StatusConflict}), want: ExitCodeRejected},
		{name: "server side", err: &cli.APIError{Status: http.StatusServiceUnavailable}, want: ExitCodeError},
		{name: "other", err: errors.New("boom"), want: ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestClientCommands(t *testing.T) {
	endpoint, f := startAdminAPI(t)

	tests := []struct {
		name     string
		cmd      func() *cobra.Command
		args     []string
		contains []string
		check    func(t *testing.T)
	}{
		{
			name:     "topology",
			cmd:      newTopologyCmd,
			contains: []string{"SERVICE", "api", "1/1-2", "api-1"},
		},
		{
			name:     "stats",
			cmd:      newStatsCmd,
			args:     []string{"api"},
			contains: []string{"api", "7"},
		},
		{
			name:     "start",
			cmd:      newStartCmd,
			args:     []string{"api"},
			contains: []string{"api-2"},
		},
		{
			name:     "stop cascade",
			cmd:      newStopCmd,
			args:     []string{"db-1", "--cascade"},
			contains: []string{"Instance db-1 stopped"},
			check: func(t *testing.T) {
				assert.Equal(t, "db-1", f.stopped)
				assert.True(t, f.cascade)
			},
		},
		{
			name: "scale",
			cmd:  newScaleCmd,
			args: []string{"api", "2"},
			check: func(t *testing.T) {
				assert.Equal(t, 2, f.scaled)
			},
		},
		{
			name:     "maintenance on",
			cmd:      newMaintenanceCmd,
			args:     []string{"api-1", "on"},
			contains: []string{"Maintenance on for instance api-1"},
			check: func(t *testing.T) {
				require.NotNil(t, f.maintenance)
				assert.True(t, *f.maintenance)
			},
		},
		{
			name: "weight",
			cmd:  newWeightCmd,
			args: []string{"api-1", "5"},
			check: func(t *testing.T) {
				assert.Equal(t, int64(5), f.weight)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{}, tt.args...), "--endpoint", endpoint)
			out, err := execute(t, tt.cmd(), args...)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestClientCommands_JSONOutput(t *testing.T) {
	endpoint, _ := startAdminAPI(t)

	out, err := execute(t, newStatsCmd(), "api", "-o", "json", "-q", "--endpoint", endpoint)
	require.NoError(t, err)

	var stats api.ServiceStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(7), stats.TotalRequests)
}

func TestClientCommands_Errors(t *testing.T) {
	endpoint, _ := startAdminAPI(t)

	tests := []struct {
		name   string
		cmd    func() *cobra.Command
		args   []string
		status int
	}{
		{name: "unknown service", cmd: newStatsCmd, args: []string{"ghost"}, status: http.StatusNotFound},
		{name: "target out of range", cmd: newScaleCmd, args: []string{"api", "9"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{}, tt.args...), "-q", "--endpoint", endpoint)
			_, err := execute(t, tt.cmd(), args...)
			require.Error(t, err)
			assert.True(t, cli.IsAPIStatus(err, tt.status), "unexpected error: %v", err)
		})
	}
}

func TestClientCommands_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		cmd  func() *cobra.Command
		args []string
	}{
		{name: "scale count not a number", cmd: newScaleCmd, args: []string{"api", "many"}},
		{name: "scale negative count", cmd: newScaleCmd, args: []string{"api", "-1"}},
		{name: "maintenance bad mode", cmd: newMaintenanceCmd, args: []string{"api-1", "maybe"}},
		{name: "weight not a number", cmd: newWeightCmd, args: []string{"api-1", "x"}},
		{name: "bad output format", cmd: newTopologyCmd, args: []string{"-o", "xml"}},
		{name: "missing argument", cmd: newStatsCmd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.cmd(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestClientCommands_Unreachable(t *testing.T) {
	_, err := execute(t, newTopologyCmd(), "-q", "--endpoint", "http://127.0.0.1:1", "--timeout", "2s")
	require.Error(t, err)

	var connErr *cli.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, ExitCodeUnreachable, getExitCode(err))
}

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(config.ServicesPath(dir), name+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func staticDefinition(name string, deps ...string) string {
	def := fmt.Sprintf(`name: %s
deployment:
  runtime: static
  address: "127.0.0.1:1"
minInstances: 1
maxInstances: 1
`, name)
	if len(deps) > 0 {
		def += "dependsOn:\n"
		for _, d := range deps {
			def += "  - " + d + "\n"
		}
	}
	return def
}

func TestOrderCommand(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "db", staticDefinition("db"))
	writeDefinition(t, dir, "cache", staticDefinition("cache"))
	writeDefinition(t, dir, "api", staticDefinition("api", "db", "cache"))

	out, err := execute(t, newOrderCmd(), "--config-path", dir, "-o", "json")
	require.NoError(t, err)
	var order []string
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	require.Len(t, order, 3)
	assert.Equal(t, "api", order[2])

	out, err = execute(t, newOrderCmd(), "db", "--config-path", dir, "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, []string{"db"}, order)
}

func TestOrderCommand_Cycle(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a", staticDefinition("a", "b"))
	writeDefinition(t, dir, "b", staticDefinition("b", "a"))

	_, err := execute(t, newOrderCmd(), "--config-path", dir)
	assert.Error(t, err)
}
