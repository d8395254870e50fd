package containerizer

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"conductor/internal/config"
)

// TemplateData is the context deployment templates are rendered against.
type TemplateData struct {
	Service    string
	InstanceID string
	ShortID    string
	Index      int
}

// NewTemplateData builds the template context for an instance.
func NewTemplateData(service, instanceID string, index int) TemplateData {
	short := instanceID
	if len(short) > 8 {
		short = short[:8]
	}
	return TemplateData{Service: service, InstanceID: instanceID, ShortID: short, Index: index}
}

// Render expands every templated field of dep: image, command, env values,
// ports, address and workDir. Strings without template actions are copied
// untouched. Missing keys are an error.
func Render(dep config.DeploymentSpec, data TemplateData) (config.DeploymentSpec, error) {
	out := dep

	var err error
	render := func(field, text string) string {
		if err != nil || !strings.Contains(text, "{{") {
			return text
		}
		var s string
		s, err = renderString(field, text, data)
		return s
	}

	out.Image = render("image", dep.Image)
	out.Address = render("address", dep.Address)
	out.WorkDir = render("workDir", dep.WorkDir)

	if dep.Command != nil {
		out.Command = make([]string, len(dep.Command))
		for i, arg := range dep.Command {
			out.Command[i] = render(fmt.Sprintf("command[%d]", i), arg)
		}
	}
	if dep.Ports != nil {
		out.Ports = make([]string, len(dep.Ports))
		for i, p := range dep.Ports {
			out.Ports[i] = render(fmt.Sprintf("ports[%d]", i), p)
		}
	}
	if dep.Env != nil {
		out.Env = make(map[string]string, len(dep.Env))
		for k, v := range dep.Env {
			out.Env[k] = render("env."+k, v)
		}
	}

	if err != nil {
		return config.DeploymentSpec{}, err
	}
	return out, nil
}

func renderString(field, text string, data TemplateData) (string, error) {
	tmpl, err := template.New(field).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid template in %s: %w", field, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", field, err)
	}
	return sb.String(), nil
}
