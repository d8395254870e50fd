package containerizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"conductor/internal/config"
	"conductor/pkg/logging"
)

// Multi dispatches to one launcher per deployment runtime and remembers
// which launcher owns each instance.
type Multi struct {
	launchers map[config.Runtime]Launcher

	mu     sync.Mutex
	owners map[string]config.Runtime
}

// NewMulti creates a dispatcher over the given launchers.
func NewMulti(launchers map[config.Runtime]Launcher) *Multi {
	return &Multi{
		launchers: launchers,
		owners:    make(map[string]config.Runtime),
	}
}

// NewDefaultMulti wires the process and static launchers, plus docker when
// the docker CLI and daemon are available.
func NewDefaultMulti(ctx context.Context) *Multi {
	launchers := map[config.Runtime]Launcher{
		config.RuntimeProcess: NewProcessLauncher(),
		config.RuntimeStatic:  NewStaticLauncher(),
	}
	if docker, err := NewDockerLauncher(ctx); err == nil {
		launchers[config.RuntimeDocker] = docker
	} else {
		logging.Warn(dockerSubsystem, "Docker runtime unavailable, docker services cannot be started: %v", err)
	}
	return NewMulti(launchers)
}

// Runtimes lists the runtimes with a launcher.
func (m *Multi) Runtimes() []config.Runtime {
	out := make([]config.Runtime, 0, len(m.launchers))
	for _, rt := range []config.Runtime{config.RuntimeDocker, config.RuntimeProcess, config.RuntimeStatic} {
		if _, ok := m.launchers[rt]; ok {
			out = append(out, rt)
		}
	}
	return out
}

// Launch implements Launcher.
func (m *Multi) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	rt := config.Runtime(strings.ToLower(string(spec.Deployment.Runtime)))
	l, ok := m.launchers[rt]
	if !ok {
		return "", fmt.Errorf("unsupported runtime %q for service %s", spec.Deployment.Runtime, spec.Service)
	}

	addr, err := l.Launch(ctx, spec)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.owners[spec.InstanceID] = rt
	m.mu.Unlock()
	return addr, nil
}

func (m *Multi) owner(instanceID string, forget bool) (Launcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.owners[instanceID]
	if !ok {
		return nil, false
	}
	if forget {
		delete(m.owners, instanceID)
	}
	return m.launchers[rt], true
}

// Terminate implements Launcher.
func (m *Multi) Terminate(ctx context.Context, instanceID string) error {
	l, ok := m.owner(instanceID, false)
	if !ok {
		return nil
	}
	if err := l.Terminate(ctx, instanceID); err != nil {
		return err
	}
	m.owner(instanceID, true)
	return nil
}

// Kill implements Launcher.
func (m *Multi) Kill(ctx context.Context, instanceID string) error {
	l, ok := m.owner(instanceID, true)
	if !ok {
		return nil
	}
	return l.Kill(ctx, instanceID)
}

// Wait implements Waiter for launchers that support it.
func (m *Multi) Wait(instanceID string) (<-chan error, bool) {
	l, ok := m.owner(instanceID, false)
	if !ok {
		return nil, false
	}
	w, ok := l.(Waiter)
	if !ok {
		return nil, false
	}
	return w.Wait(instanceID)
}
