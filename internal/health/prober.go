package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"conductor/internal/api"
	"conductor/internal/bus"
	"conductor/internal/config"
)

// Target identifies what a probe is run against.
type Target struct {
	Service    string
	InstanceID string
	Address    string
	Path       string
}

// Prober checks one instance once. A nil error means healthy.
type Prober interface {
	Probe(ctx context.Context, target Target) error
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, target Target) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, target Target) error { return f(ctx, target) }

// HTTPProber issues GET http://address/path and treats any 2xx as healthy.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, target Target) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	url := target.Address
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	path := target.Path
	if path == "" {
		path = config.DefaultProbePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url = strings.TrimSuffix(url, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// TCPProber treats a successful dial as healthy.
type TCPProber struct {
	Dialer *net.Dialer
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, target Target) error {
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	conn, err := dialer.DialContext(ctx, "tcp", target.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// PingTopic returns the request/reply topic a bus-native instance answers
// health pings on.
func PingTopic(service, instanceID string) string {
	return service + "/ping/" + instanceID
}

// BusProber sends a ping request on {service}/ping/{instanceId} and expects
// an "ack" reply.
type BusProber struct {
	Bus bus.Bus
}

var ackPayload = []byte("ack")

// Probe implements Prober.
func (p *BusProber) Probe(ctx context.Context, target Target) error {
	if p.Bus == nil {
		return fmt.Errorf("no bus configured for bus probes")
	}
	reply, err := p.Bus.Request(ctx, PingTopic(target.Service, target.InstanceID), []byte("ping"))
	if err != nil {
		return err
	}
	if !bytes.EqualFold(bytes.TrimSpace(reply), ackPayload) {
		return fmt.Errorf("unexpected ping reply %q", string(reply))
	}
	return nil
}

// DefaultProbers returns the closed set of probe kinds keyed by kind.
func DefaultProbers(b bus.Bus, client *http.Client) map[config.ProbeKind]Prober {
	return map[config.ProbeKind]Prober{
		config.ProbeHTTP: &HTTPProber{Client: client},
		config.ProbeTCP:  &TCPProber{},
		config.ProbeBus:  &BusProber{Bus: b},
	}
}

// runProbe runs p under timeout. Exceeding the timeout while the parent
// context is still live yields a ProbeTimeoutError.
func runProbe(parent context.Context, p Prober, target Target, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	err := p.Probe(ctx, target)
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &api.ProbeTimeoutError{InstanceID: target.InstanceID, Timeout: timeout}
	}
	return err
}
