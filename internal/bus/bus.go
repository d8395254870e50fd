package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is a single delivery. ReplyTo is set on requests; responders
// publish their answer there with Respond.
type Message struct {
	Topic   string
	Payload []byte
	ReplyTo string
}

// Handler processes one delivered message. Handlers for a given subscription
// are invoked sequentially in publish order.
type Handler func(ctx context.Context, msg Message)

// Subscription is returned by Subscribe.
type Subscription interface {
	Pattern() string
	Unsubscribe() error
}

// Bus is the message transport used for events, commands and bus-native
// health probes. Topics are slash-separated levels; subscription patterns
// may use MQTT-style wildcards: "+" matches exactly one level and a trailing
// "#" matches the remaining levels, including none.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	PublishMessage(ctx context.Context, msg Message) error
	Subscribe(pattern string, handler Handler) (Subscription, error)
	// Request publishes payload with a private reply topic and waits for the
	// first response or ctx expiry.
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)
	Close() error
}

// Respond answers a request message. Messages without ReplyTo are ignored.
func Respond(ctx context.Context, b Bus, req Message, payload []byte) error {
	if req.ReplyTo == "" {
		return nil
	}
	return b.Publish(ctx, req.ReplyTo, payload)
}

// ValidateTopic rejects empty topics, empty levels and wildcards.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	for _, level := range strings.Split(topic, "/") {
		if level == "" {
			return fmt.Errorf("topic %q has an empty level", topic)
		}
		if strings.ContainsAny(level, "+#") {
			return fmt.Errorf("topic %q must not contain wildcards", topic)
		}
	}
	return nil
}

// ValidatePattern checks wildcard placement in a subscription pattern.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	levels := strings.Split(pattern, "/")
	for i, level := range levels {
		switch {
		case level == "":
			return fmt.Errorf("pattern %q has an empty level", pattern)
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("pattern %q: # must be the last level", pattern)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("pattern %q: wildcards must occupy a whole level", pattern)
		}
	}
	return nil
}

// Match reports whether topic matches pattern.
func Match(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, level := range p {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}
