package containerizer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"conductor/pkg/logging"
)

const dockerSubsystem = "Docker"

// execCommandContext and lookPath are variables to allow mocking in tests
var (
	execCommandContext = exec.CommandContext
	lookPath           = exec.LookPath
)

// DockerLauncher runs instances as detached containers through the docker CLI.
type DockerLauncher struct {
	mu         sync.Mutex
	containers map[string]string // instance ID -> container ID
	hostIP     string
}

// NewDockerLauncher checks that the docker CLI and daemon are reachable.
func NewDockerLauncher(ctx context.Context) (*DockerLauncher, error) {
	if _, err := lookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker command not found in PATH: %w", err)
	}

	cmd := execCommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &DockerLauncher{
		containers: make(map[string]string),
		hostIP:     "127.0.0.1",
	}, nil
}

// ContainerName returns the container name used for an instance.
func ContainerName(spec LaunchSpec) string {
	short := spec.InstanceID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("conductor-%s-%d-%s", spec.Service, spec.Index, short)
}

// Launch pulls the image if needed, starts the container and resolves the
// host address of its first published port.
func (d *DockerLauncher) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	dep := spec.Deployment
	if err := d.pullImage(ctx, dep.Image); err != nil {
		return "", err
	}

	args := []string{"run", "-d", "--name", ContainerName(spec),
		"--label", "conductor.service=" + spec.Service,
		"--label", "conductor.instance=" + spec.InstanceID,
	}
	for _, k := range sortedKeys(dep.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, dep.Env[k]))
	}
	for _, port := range dep.Ports {
		args = append(args, "-p", port)
	}
	args = append(args, dep.Image)
	args = append(args, dep.Command...)

	logging.Debug(dockerSubsystem, "Starting container with command: docker %s", strings.Join(args, " "))

	output, err := execCommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to start container for %s: %w\nOutput: %s", spec.Service, err, strings.TrimSpace(string(output)))
	}
	containerID := strings.TrimSpace(string(output))

	d.mu.Lock()
	d.containers[spec.InstanceID] = containerID
	d.mu.Unlock()

	logging.Info(dockerSubsystem, "Started container %s with ID %s", ContainerName(spec), shortID(containerID))

	if dep.Address != "" {
		return dep.Address, nil
	}
	if len(dep.Ports) == 0 {
		return "", nil
	}

	hostPort, err := d.hostPort(ctx, containerID, containerPort(dep.Ports[0]))
	if err != nil {
		return "", err
	}
	return d.hostIP + ":" + hostPort, nil
}

func (d *DockerLauncher) pullImage(ctx context.Context, image string) error {
	if err := execCommandContext(ctx, "docker", "image", "inspect", image).Run(); err == nil {
		logging.Debug(dockerSubsystem, "Image %s already exists", image)
		return nil
	}

	logging.Info(dockerSubsystem, "Pulling image %s", image)
	output, err := execCommandContext(ctx, "docker", "pull", image).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w\nOutput: %s", image, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// hostPort asks docker for the host side of a published container port.
// Output is usually "0.0.0.0:32768" or "[::]:32768", one line per family.
func (d *DockerLauncher) hostPort(ctx context.Context, containerID, port string) (string, error) {
	output, err := execCommandContext(ctx, "docker", "port", containerID, port).Output()
	if err != nil {
		return "", fmt.Errorf("failed to get port mapping for %s:%s: %w", shortID(containerID), port, err)
	}

	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(string(output)), "\n", 2)[0])
	if line == "" {
		return "", fmt.Errorf("no port mapping found for %s:%s", shortID(containerID), port)
	}
	idx := strings.LastIndex(line, ":")
	if idx < 0 || idx == len(line)-1 {
		return "", fmt.Errorf("unexpected port output format: %s", line)
	}
	return line[idx+1:], nil
}

// containerPort extracts the container side of a -p mapping:
// "8080", "9000:8080", "127.0.0.1:9000:8080" and "8080/udp" all work.
func containerPort(mapping string) string {
	parts := strings.Split(mapping, ":")
	return parts[len(parts)-1]
}

// Terminate runs docker stop and removes the container.
func (d *DockerLauncher) Terminate(ctx context.Context, instanceID string) error {
	return d.stop(ctx, instanceID, "stop")
}

// Kill runs docker kill and removes the container.
func (d *DockerLauncher) Kill(ctx context.Context, instanceID string) error {
	return d.stop(ctx, instanceID, "kill")
}

func (d *DockerLauncher) stop(ctx context.Context, instanceID, verb string) error {
	d.mu.Lock()
	containerID, ok := d.containers[instanceID]
	d.mu.Unlock()
	if !ok {
		return nil
	}

	logging.Info(dockerSubsystem, "Running docker %s on container %s", verb, shortID(containerID))
	if err := execCommandContext(ctx, "docker", verb, containerID).Run(); err != nil {
		return fmt.Errorf("failed to %s container %s: %w", verb, shortID(containerID), err)
	}

	if err := execCommandContext(ctx, "docker", "rm", "-f", containerID).Run(); err != nil {
		logging.Warn(dockerSubsystem, "Failed to remove container %s: %v", shortID(containerID), err)
	}

	d.mu.Lock()
	delete(d.containers, instanceID)
	d.mu.Unlock()
	return nil
}

// ContainerID returns the container backing an instance.
func (d *DockerLauncher) ContainerID(instanceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.containers[instanceID]
	return id, ok
}
