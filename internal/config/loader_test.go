package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
orchestrator:
  failureThreshold: 5
  recoveryTimeout: 90s
  defaultAlgorithm: least-connections
server:
  listen: 0.0.0.0:9000
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator.FailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.RecoveryTimeout)
	assert.Equal(t, "least-connections", cfg.Orchestrator.DefaultAlgorithm)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Orchestrator.SuccessThreshold)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType string
	}{
		{name: "malformed yaml", content: "orchestrator: [", wantType: "parse"},
		{name: "invalid threshold", content: "orchestrator:\n  failureThreshold: 0\n", wantType: "validation"},
		{name: "invalid algorithm", content: "orchestrator:\n  defaultAlgorithm: fastest\n", wantType: "validation"},
		{name: "invalid log format", content: "logging:\n  format: xml\n", wantType: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "config.yaml"), tt.content)

			_, err := LoadConfig(dir)
			require.Error(t, err)
			var cfgErr ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantType, cfgErr.ErrorType)
			assert.Equal(t, "config.yaml", cfgErr.FileName)
		})
	}
}

func TestLoadServiceDefinitions(t *testing.T) {
	dir := t.TempDir()
	settings := DefaultOrchestratorSettings()

	writeFile(t, filepath.Join(dir, "services", "a.yaml"), `
name: a
deployment:
  runtime: static
  address: 127.0.0.1:7001
dependsOn:
  - b
  - service: metrics
    required: false
priority: 2
`)
	writeFile(t, filepath.Join(dir, "services", "b.yml"), `
name: b
deployment:
  runtime: process
  command: ["./b", "--port", "{{ add 7100 .Index }}"]
  address: "127.0.0.1:{{ add 7100 .Index }}"
healthProbe:
  kind: tcp
  interval: 2s
minInstances: 0
maxInstances: 4
weight: 3
algorithm: wrr
`)
	writeFile(t, filepath.Join(dir, "services", "README.md"), "not a definition")

	defs, err := LoadServiceDefinitions(dir, settings)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	a, b := defs[0], defs[1]
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, []DependencySpec{{Service: "b", Required: true}, {Service: "metrics", Required: false}}, a.DependsOn)
	assert.Equal(t, []string{"b"}, a.RequiredDependencies())
	assert.Equal(t, []string{"metrics"}, a.OptionalDependencies())
	assert.Equal(t, 1, a.MinInstances)
	assert.Equal(t, 1, a.MaxInstances)
	assert.Equal(t, int64(1), a.Weight)
	assert.Equal(t, ProbeHTTP, a.HealthProbe.Kind)
	assert.Equal(t, settings.HealthProbeInterval, a.HealthProbe.Interval)
	assert.Equal(t, settings.RestartDefaults, a.RestartPolicy)
	assert.Equal(t, filepath.Join(dir, "services", "a.yaml"), a.SourceFile)

	assert.Equal(t, "b", b.Name)
	assert.Equal(t, ProbeTCP, b.HealthProbe.Kind)
	assert.Equal(t, 2*time.Second, b.HealthProbe.Interval)
	assert.Equal(t, settings.HealthProbeTimeout, b.HealthProbe.Timeout)
	assert.Equal(t, 0, b.MinInstances)
	assert.Equal(t, 4, b.MaxInstances)
	assert.Equal(t, int64(3), b.Weight)
	assert.Equal(t, "wrr", b.Algorithm)
}

func TestLoadServiceDefinitions_MissingDirectory(t *testing.T) {
	defs, err := LoadServiceDefinitions(t.TempDir(), DefaultOrchestratorSettings())
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoadServiceDefinitions_CollectsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "services", "ok.yaml"), "name: ok\ndeployment:\n  runtime: static\n  address: x:1\n")
	writeFile(t, filepath.Join(dir, "services", "dup.yaml"), "name: ok\ndeployment:\n  runtime: static\n  address: x:2\n")
	writeFile(t, filepath.Join(dir, "services", "typo.yaml"), "name: typo\nreplicas: 3\ndeployment:\n  runtime: static\n  address: x:3\n")
	writeFile(t, filepath.Join(dir, "services", "bounds.yaml"), "name: bounds\nminInstances: 3\nmaxInstances: 2\ndeployment:\n  runtime: static\n  address: x:4\n")

	defs, err := LoadServiceDefinitions(dir, DefaultOrchestratorSettings())
	require.Error(t, err)

	var collection *ConfigurationErrorCollection
	require.ErrorAs(t, err, &collection)
	assert.Equal(t, 3, collection.Count())

	types := map[string]string{}
	for _, e := range collection.Errors {
		types[e.FileName] = e.ErrorType
	}
	// dup.yaml sorts before ok.yaml, so ok.yaml is the duplicate
	assert.Equal(t, map[string]string{
		"bounds.yaml": "validation",
		"ok.yaml":     "duplicate",
		"typo.yaml":   "parse",
	}, types)

	require.Len(t, defs, 1)
	assert.Equal(t, "ok", defs[0].Name)
	assert.Contains(t, collection.Report(), "bounds.yaml")
}

func TestParseServiceDefinition(t *testing.T) {
	def, err := ParseServiceDefinition([]byte("name: x\ndeployment:\n  runtime: docker\n  image: nginx\n"), DefaultOrchestratorSettings())
	require.NoError(t, err)
	assert.Equal(t, RuntimeDocker, def.Deployment.Runtime)

	_, err = ParseServiceDefinition([]byte("name: x\ndeployment:\n  runtime: docker\n"), DefaultOrchestratorSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment.image")
}

func TestConfigurationErrorReport(t *testing.T) {
	c := &ConfigurationErrorCollection{}
	assert.False(t, c.HasErrors())

	c.Add(fileError("/etc/conductor/services/a.yaml", "services", "io", "cannot read file", os.ErrPermission))
	assert.Equal(t, "services a.yaml: cannot read file: permission denied", c.Error())

	c.Add(fileError("/etc/conductor/services/b.yaml", "services", "duplicate", "service a already defined in a.yaml", nil, "Rename one of the services"))
	assert.Equal(t, 2, c.Count())
	assert.Contains(t, c.Error(), "2 invalid configuration files")

	report := c.Report()
	assert.Contains(t, report, "/etc/conductor/services/a.yaml (services, io error)")
	assert.Contains(t, report, "hint: Rename one of the services")
}
