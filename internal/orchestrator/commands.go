package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"conductor/internal/bus"
	"conductor/internal/events"
	"conductor/pkg/logging"
)

// Command topics accepted on the bus.
const (
	TopicCommandStart  = events.TopicPrefix + "/command/start"
	TopicCommandStop   = events.TopicPrefix + "/command/stop"
	TopicCommandScale  = events.TopicPrefix + "/command/scale"
	TopicCommandResult = events.TopicPrefix + "/command/result"
)

// Command is the payload of a command message. Which fields are used depends
// on the topic: start needs Service, stop needs InstanceID or Service (all of
// its instances), scale needs Service and Target.
type Command struct {
	Service    string `json:"service,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	Target     int    `json:"target,omitempty"`
	Cascade    bool   `json:"cascade,omitempty"`
}

// CommandResult is published on TopicCommandResult after every command, and
// sent as the reply when the command was a request.
type CommandResult struct {
	Command   string      `json:"command"`
	Service   string      `json:"service,omitempty"`
	Instance  string      `json:"instance,omitempty"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type commandFunc func(ctx context.Context, cmd Command) (CommandResult, error)

func (o *Orchestrator) subscribeCommands() error {
	handlers := map[string]commandFunc{
		TopicCommandStart: o.commandStart,
		TopicCommandStop:  o.commandStop,
		TopicCommandScale: o.commandScale,
	}
	for topic, fn := range handlers {
		sub, err := o.bus.Subscribe(topic, o.commandHandler(topic, fn))
		if err != nil {
			return err
		}
		o.subs = append(o.subs, sub)
	}
	logging.Debug(subsystem, "Subscribed to %d command topics", len(handlers))
	return nil
}

// commandHandler decodes the payload and runs fn off the delivery goroutine,
// since starts and drains can take a while.
func (o *Orchestrator) commandHandler(topic string, fn commandFunc) bus.Handler {
	return func(_ context.Context, msg bus.Message) {
		var cmd Command
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			logging.Warn(subsystem, "Ignoring malformed command on %s: %v", topic, err)
			o.publishResult(msg, CommandResult{Command: topic, Error: fmt.Sprintf("malformed command: %v", err)})
			return
		}

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			logging.Info(subsystem, "Received command %s (service=%q instance=%q)", topic, cmd.Service, cmd.InstanceID)
			res, err := fn(o.ctx, cmd)
			res.Command = topic
			res.Success = err == nil
			if err != nil {
				res.Error = err.Error()
				logging.Warn(subsystem, "Command %s failed: %v", topic, err)
			}
			o.publishResult(msg, res)
		}()
	}
}

func (o *Orchestrator) publishResult(req bus.Message, res CommandResult) {
	res.Timestamp = time.Now()
	payload, err := json.Marshal(res)
	if err != nil {
		logging.Error(subsystem, err, "Failed to encode command result")
		return
	}

	timeout := o.settings.PublishTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := o.bus.Publish(ctx, TopicCommandResult, payload); err != nil {
		logging.Warn(subsystem, "Failed to publish command result: %v", err)
	}
	if err := bus.Respond(ctx, o.bus, req, payload); err != nil {
		logging.Warn(subsystem, "Failed to reply to command: %v", err)
	}
}

func (o *Orchestrator) commandStart(ctx context.Context, cmd Command) (CommandResult, error) {
	res := CommandResult{Service: cmd.Service}
	if cmd.Service == "" {
		return res, fmt.Errorf("start command requires a service")
	}
	inst, err := o.StartService(ctx, cmd.Service)
	if err != nil {
		return res, err
	}
	res.Instance = inst.ID
	res.Result = inst.Info(o.breakers.State(inst.ServiceName, inst.ID))
	return res, nil
}

func (o *Orchestrator) commandStop(ctx context.Context, cmd Command) (CommandResult, error) {
	res := CommandResult{Service: cmd.Service, Instance: cmd.InstanceID}
	switch {
	case cmd.InstanceID != "" && cmd.Cascade:
		return res, o.StopServiceCascade(ctx, cmd.InstanceID)
	case cmd.InstanceID != "":
		return res, o.StopService(ctx, cmd.InstanceID)
	case cmd.Service != "":
		return res, o.StopAllInstances(ctx, cmd.Service, cmd.Cascade)
	default:
		return res, fmt.Errorf("stop command requires an instanceId or a service")
	}
}

func (o *Orchestrator) commandScale(ctx context.Context, cmd Command) (CommandResult, error) {
	res := CommandResult{Service: cmd.Service}
	if cmd.Service == "" {
		return res, fmt.Errorf("scale command requires a service")
	}
	scaler := o.getScaler()
	if scaler == nil {
		return res, fmt.Errorf("scaling is not available")
	}
	out, err := scaler.ScaleService(ctx, cmd.Service, cmd.Target)
	if err != nil {
		return res, err
	}
	res.Result = out
	return res, nil
}
