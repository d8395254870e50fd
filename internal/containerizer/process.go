package containerizer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"conductor/pkg/logging"
)

const processSubsystem = "Process"

// killWait bounds how long Kill waits for the process to be reaped.
const killWait = 5 * time.Second

type process struct {
	cmd    *exec.Cmd
	done   chan struct{}
	exited chan error
}

// ProcessLauncher runs instances as local child processes. Processes outlive
// the Launch context. An exited process stays tracked until Terminate or Kill
// is called for it, so Wait works even for instances that die at once.
type ProcessLauncher struct {
	mu        sync.Mutex
	processes map[string]*process
}

// NewProcessLauncher creates an empty process launcher.
func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{processes: make(map[string]*process)}
}

// Launch starts the deployment command. The address is the rendered
// deployment address, which may be empty for bus-probed services.
func (p *ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	dep := spec.Deployment
	if len(dep.Command) == 0 {
		return "", fmt.Errorf("service %s has no command to run", spec.Service)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cmd := exec.Command(dep.Command[0], dep.Command[1:]...)
	cmd.Dir = dep.WorkDir
	cmd.Env = os.Environ()
	for _, k := range sortedKeys(dep.Env) {
		cmd.Env = append(cmd.Env, k+"="+dep.Env[k])
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", dep.Command[0], err)
	}

	proc := &process{cmd: cmd, done: make(chan struct{}), exited: make(chan error, 1)}
	p.mu.Lock()
	p.processes[spec.InstanceID] = proc
	p.mu.Unlock()

	prefix := fmt.Sprintf("[%s/%s]", spec.Service, shortID(spec.InstanceID))
	var pipes sync.WaitGroup
	pipes.Add(2)
	go forwardOutput(&pipes, prefix, stdout)
	go forwardOutput(&pipes, prefix, stderr)

	go func() {
		pipes.Wait()
		err := cmd.Wait()
		if err != nil {
			logging.Debug(processSubsystem, "%s exited: %v", prefix, err)
		} else {
			logging.Debug(processSubsystem, "%s exited cleanly", prefix)
		}
		proc.exited <- err
		close(proc.exited)
		close(proc.done)
	}()

	logging.Info(processSubsystem, "Started %s for %s with PID %d", dep.Command[0], spec.Service, cmd.Process.Pid)
	return dep.Address, nil
}

func forwardOutput(wg *sync.WaitGroup, prefix string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.Debug(processSubsystem, "%s %s", prefix, scanner.Text())
	}
}

func (p *ProcessLauncher) lookup(instanceID string) (*process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proc, ok := p.processes[instanceID]
	return proc, ok
}

func (p *ProcessLauncher) forget(instanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.processes, instanceID)
}

// Terminate sends SIGTERM and waits for the process to exit or ctx to end.
func (p *ProcessLauncher) Terminate(ctx context.Context, instanceID string) error {
	proc, ok := p.lookup(instanceID)
	if !ok {
		return nil
	}

	if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process may have exited on its own and not been reaped yet.
		select {
		case <-proc.done:
			p.forget(instanceID)
			return nil
		case <-time.After(killWait):
		}
		return fmt.Errorf("failed to signal instance %s: %w", instanceID, err)
	}

	select {
	case <-proc.done:
		p.forget(instanceID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill sends SIGKILL and waits briefly for the process to be reaped.
func (p *ProcessLauncher) Kill(ctx context.Context, instanceID string) error {
	proc, ok := p.lookup(instanceID)
	if !ok {
		return nil
	}

	if err := proc.cmd.Process.Kill(); err != nil {
		select {
		case <-proc.done:
			p.forget(instanceID)
			return nil
		case <-time.After(killWait):
		}
		return fmt.Errorf("failed to kill instance %s: %w", instanceID, err)
	}

	select {
	case <-proc.done:
		p.forget(instanceID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(killWait):
		return fmt.Errorf("instance %s did not exit after SIGKILL", instanceID)
	}
}

// Wait implements Waiter.
func (p *ProcessLauncher) Wait(instanceID string) (<-chan error, bool) {
	proc, ok := p.lookup(instanceID)
	if !ok {
		return nil, false
	}
	return proc.exited, true
}

// Running reports whether the instance's process is alive.
func (p *ProcessLauncher) Running(instanceID string) bool {
	proc, ok := p.lookup(instanceID)
	if !ok {
		return false
	}
	select {
	case <-proc.done:
		return false
	default:
		return true
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
