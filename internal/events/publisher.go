package events

import (
	"context"
	"encoding/json"
	"time"

	"conductor/internal/bus"
	"conductor/pkg/logging"
)

const defaultPublishTimeout = time.Second

// Publisher renders events and publishes them on the bus. Publishing never
// blocks the caller for longer than the configured timeout; failures are
// logged and swallowed. A nil *Publisher is a valid no-op.
type Publisher struct {
	bus       bus.Bus
	templates *MessageTemplateEngine
	timeout   time.Duration
	now       func() time.Time
}

// NewPublisher creates a publisher on b.
func NewPublisher(b bus.Bus, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{
		bus:       b,
		templates: NewMessageTemplateEngine(),
		timeout:   timeout,
		now:       time.Now,
	}
}

// Templates exposes the message engine for customization.
func (p *Publisher) Templates() *MessageTemplateEngine {
	return p.templates
}

// Build assembles the event for reason and data without publishing it.
func (p *Publisher) Build(reason EventReason, data EventData) Event {
	evt := Event{
		Topic:     TopicFor(reason, data.Instance),
		Reason:    reason,
		Type:      getEventType(reason),
		Service:   data.Service,
		Instance:  data.Instance,
		Message:   p.templates.Render(reason, data),
		Error:     data.Error,
		Timestamp: p.now().UTC(),
		Data:      dataFields(data),
	}
	return evt
}

// Publish builds and publishes an event and returns it.
func (p *Publisher) Publish(reason EventReason, data EventData) Event {
	if p == nil {
		return Event{}
	}
	evt := p.Build(reason, data)

	logging.Debug("Events", "Publishing %s on %s: %s", reason, evt.Topic, evt.Message)

	payload, err := json.Marshal(evt)
	if err != nil {
		logging.Error("Events", err, "Failed to encode %s event", reason)
		return evt
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.bus.Publish(ctx, evt.Topic, payload); err != nil {
		logging.Warn("Events", "Failed to publish %s on %s: %v", reason, evt.Topic, err)
	}
	return evt
}

func dataFields(d EventData) map[string]interface{} {
	out := map[string]interface{}{}
	if d.Address != "" {
		out["address"] = d.Address
	}
	if d.Duration > 0 {
		out["duration"] = d.Duration.String()
	}
	if d.Attempt > 0 {
		out["attempt"] = d.Attempt
	}
	if d.Health != "" {
		out["health"] = d.Health
	}
	if d.Previous != 0 || d.Target != 0 {
		out["previous"] = d.Previous
		out["target"] = d.Target
	}
	if d.Count != 0 {
		out["count"] = d.Count
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
