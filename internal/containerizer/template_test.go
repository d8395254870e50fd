package containerizer

import (
	"testing"

	"conductor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	dep := config.DeploymentSpec{
		Runtime: config.RuntimeProcess,
		Command: []string{"./tts", "--port", "{{ add 9100 .Index }}"},
		Env: map[string]string{
			"NAME":  "{{ .Service | upper }}-{{ .ShortID }}",
			"PLAIN": "literal",
		},
		Ports:   []string{"{{ add 9100 .Index }}:9100"},
		Address: "127.0.0.1:{{ add 9100 .Index }}",
		WorkDir: "/srv/{{ .Service }}",
	}

	out, err := Render(dep, NewTemplateData("tts", "0123456789abcdef", 2))
	require.NoError(t, err)

	assert.Equal(t, []string{"./tts", "--port", "9102"}, out.Command)
	assert.Equal(t, "TTS-01234567", out.Env["NAME"])
	assert.Equal(t, "literal", out.Env["PLAIN"])
	assert.Equal(t, []string{"9102:9100"}, out.Ports)
	assert.Equal(t, "127.0.0.1:9102", out.Address)
	assert.Equal(t, "/srv/tts", out.WorkDir)

	// The source definition is never modified.
	assert.Equal(t, "{{ add 9100 .Index }}", dep.Command[2])
	assert.Equal(t, "{{ .Service | upper }}-{{ .ShortID }}", dep.Env["NAME"])
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		dep  config.DeploymentSpec
	}{
		{"parse error", config.DeploymentSpec{Address: "{{ .Service"}},
		{"unknown field", config.DeploymentSpec{Env: map[string]string{"X": "{{ .Nope }}"}}},
		{"unknown function", config.DeploymentSpec{Image: "{{ frobnicate .Service }}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.dep, NewTemplateData("tts", "i1", 0))
			assert.Error(t, err)
		})
	}
}

func TestNewTemplateData(t *testing.T) {
	data := NewTemplateData("asr", "abc", 1)
	assert.Equal(t, "abc", data.ShortID)
	assert.Equal(t, 1, data.Index)
}
