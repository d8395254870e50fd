package containerizer

import (
	"context"

	"conductor/internal/config"
)

// LaunchSpec describes one instance to launch. Deployment is already
// rendered; see Render.
type LaunchSpec struct {
	Service    string
	InstanceID string
	Index      int
	Deployment config.DeploymentSpec
}

// Launcher starts and stops service instances. Launch returns the address
// the instance is reachable at.
type Launcher interface {
	// Launch starts the instance and returns its address
	Launch(ctx context.Context, spec LaunchSpec) (string, error)

	// Terminate asks the instance to stop gracefully, returning when it has
	// exited or ctx is done
	Terminate(ctx context.Context, instanceID string) error

	// Kill forcibly stops the instance
	Kill(ctx context.Context, instanceID string) error
}

// Waiter is implemented by launchers that observe instance exits. The
// returned channel receives the exit error (nil for a clean exit) once and
// is then closed.
type Waiter interface {
	Wait(instanceID string) (<-chan error, bool)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
