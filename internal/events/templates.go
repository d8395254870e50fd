package events

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
	}
	engine.loadDefaultTemplates()
	return engine
}

var defaultTemplates = map[EventReason]string{
	ReasonInstanceStarted:            "Instance {{.Instance | trunc 8}} of {{.Service}} is running at {{.Address}}",
	ReasonInstanceStopped:            "Instance {{.Instance | trunc 8}} of {{.Service}} stopped",
	ReasonInstanceForceStopped:       "Instance {{.Instance | trunc 8}} of {{.Service}} did not stop within {{.Duration}} and was killed",
	ReasonInstanceFailed:             "Instance {{.Instance | trunc 8}} of {{.Service}} failed{{if .Error}}: {{.Error}}{{end}}",
	ReasonInstanceRestartScheduled:   "Restart {{.Attempt}} of {{.Service}} scheduled in {{.Duration}}",
	ReasonInstanceRestartsExhausted:  "Instance {{.Instance | trunc 8}} of {{.Service}} stays failed after {{.Attempt}} restart attempts",
	ReasonInstanceMaintenanceEntered: "Instance {{.Instance | trunc 8}} of {{.Service}} entered maintenance",
	ReasonInstanceMaintenanceExited:  "Instance {{.Instance | trunc 8}} of {{.Service}} left maintenance",

	ReasonHealthChanged:   "Instance {{.Instance | trunc 8}} of {{.Service}} is {{.Health}}{{if .Error}}: {{.Error}}{{end}}",
	ReasonBreakerOpened:   "Circuit opened for instance {{.Instance | trunc 8}} of {{.Service}}",
	ReasonBreakerHalfOpen: "Circuit half-open for instance {{.Instance | trunc 8}} of {{.Service}}, accepting trial traffic",
	ReasonBreakerClosed:   "Circuit closed for instance {{.Instance | trunc 8}} of {{.Service}}",

	ReasonScaledUp:     "Scaled {{.Service}} up from {{.Previous}} to {{.Target}} {{.Target | plural \"instance\" \"instances\"}}",
	ReasonScaledDown:   "Scaled {{.Service}} down from {{.Previous}} to {{.Target}} {{.Target | plural \"instance\" \"instances\"}}",
	ReasonDrainTimeout: "Drain of instance {{.Instance | trunc 8}} of {{.Service}} timed out with {{.Count}} active connections",

	ReasonDefinitionsReloaded: "Applied {{.Count}} service definitions",
	ReasonDefinitionsRejected: "Rejected definition reload{{if .Error}}: {{.Error}}{{end}}",
}

// funcMap adds a small plural helper on top of sprig. Arguments follow the
// pipeline convention: {{ .N | plural "one" "many" }}.
func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["plural"] = func(one, many string, n int) string {
		if n == 1 {
			return one
		}
		return many
	}
	return fm
}

// loadDefaultTemplates initializes the default message templates for all event reasons.
func (e *MessageTemplateEngine) loadDefaultTemplates() {
	for reason, text := range defaultTemplates {
		if err := e.SetTemplate(reason, text); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", reason, err))
		}
	}
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()
	if !exists {
		// Fallback for unknown event reasons
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Service, data.Instance)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return fmt.Sprintf("Event: %s for %s/%s (template error: %v)", string(reason), data.Service, data.Instance, err)
	}
	return sb.String()
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, text string) error {
	tmpl, err := template.New(string(reason)).Funcs(funcMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	return nil
}

// HasTemplate reports whether a template exists for reason.
func (e *MessageTemplateEngine) HasTemplate(reason EventReason) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[reason]
	return ok
}
