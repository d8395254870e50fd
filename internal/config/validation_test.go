package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition(name string) ServiceDefinition {
	def := DefaultServiceDefinition(DefaultOrchestratorSettings())
	def.Name = name
	def.Deployment = DeploymentSpec{Runtime: RuntimeStatic, Address: "127.0.0.1:9000"}
	return def
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ServiceDefinition)
		wantField string
	}{
		{name: "valid", mutate: func(*ServiceDefinition) {}},
		{name: "missing name", mutate: func(d *ServiceDefinition) { d.Name = "" }, wantField: "name"},
		{name: "bad name", mutate: func(d *ServiceDefinition) { d.Name = "Has Space" }, wantField: "name"},
		{name: "unknown runtime", mutate: func(d *ServiceDefinition) { d.Deployment.Runtime = "vm" }, wantField: "deployment.runtime"},
		{name: "docker without image", mutate: func(d *ServiceDefinition) {
			d.Deployment = DeploymentSpec{Runtime: RuntimeDocker}
		}, wantField: "deployment.image"},
		{name: "process without command", mutate: func(d *ServiceDefinition) {
			d.Deployment = DeploymentSpec{Runtime: RuntimeProcess}
		}, wantField: "deployment.command"},
		{name: "static without address", mutate: func(d *ServiceDefinition) { d.Deployment.Address = "" }, wantField: "deployment.address"},
		{name: "max zero", mutate: func(d *ServiceDefinition) { d.MinInstances = 0; d.MaxInstances = 0 }, wantField: "maxInstances"},
		{name: "min above max", mutate: func(d *ServiceDefinition) { d.MinInstances = 3; d.MaxInstances = 2 }, wantField: "minInstances"},
		{name: "negative weight", mutate: func(d *ServiceDefinition) { d.Weight = -1 }, wantField: "weight"},
		{name: "bad probe kind", mutate: func(d *ServiceDefinition) { d.HealthProbe.Kind = "grpc" }, wantField: "healthProbe.kind"},
		{name: "zero probe timeout", mutate: func(d *ServiceDefinition) { d.HealthProbe.Timeout = 0 }, wantField: "healthProbe.timeout"},
		{name: "backoff inverted", mutate: func(d *ServiceDefinition) {
			d.RestartPolicy.InitialBackoff = time.Minute
			d.RestartPolicy.MaxBackoff = time.Second
		}, wantField: "restartPolicy.maxBackoff"},
		{name: "bad algorithm", mutate: func(d *ServiceDefinition) { d.Algorithm = "fastest" }, wantField: "algorithm"},
		{name: "self dependency", mutate: func(d *ServiceDefinition) {
			d.DependsOn = []DependencySpec{{Service: d.Name, Required: true}}
		}, wantField: "dependsOn[0]"},
		{name: "duplicate dependency", mutate: func(d *ServiceDefinition) {
			d.DependsOn = []DependencySpec{{Service: "b", Required: true}, {Service: "b"}}
		}, wantField: "dependsOn[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition("svc")
			tt.mutate(&def)

			err := ValidateDefinition(def)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateDefinitions_Duplicates(t *testing.T) {
	a := validDefinition("a")
	a.SourceFile = "a.yaml"
	dup := validDefinition("a")
	dup.SourceFile = "a2.yaml"

	require.NoError(t, ValidateDefinitions([]ServiceDefinition{a, validDefinition("b")}))

	err := ValidateDefinitions([]ServiceDefinition{a, dup})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service a defined twice (a.yaml and a2.yaml)")
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(GetDefaultConfig()))

	cfg := GetDefaultConfig()
	cfg.Server.Listen = ""
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.listen")

	cfg = GetDefaultConfig()
	cfg.Server.Enabled = false
	cfg.Server.Listen = ""
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("name", "is required")
	assert.Equal(t, "field 'name': is required", errs.Error())

	errs.Add("", "general")
	assert.Equal(t, "validation failed: field 'name': is required; general", errs.Error())
}
