package containerizer

import (
	"context"
	"fmt"
	"sync"
)

// StaticLauncher registers pre-existing endpoints. Nothing is started or
// stopped; the instance is whatever already listens at the address.
type StaticLauncher struct {
	mu        sync.Mutex
	instances map[string]string
}

// NewStaticLauncher creates an empty static launcher.
func NewStaticLauncher() *StaticLauncher {
	return &StaticLauncher{instances: make(map[string]string)}
}

// Launch returns the deployment address.
func (s *StaticLauncher) Launch(_ context.Context, spec LaunchSpec) (string, error) {
	if spec.Deployment.Address == "" {
		return "", fmt.Errorf("static service %s has no address", spec.Service)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[spec.InstanceID] = spec.Deployment.Address
	return spec.Deployment.Address, nil
}

// Terminate forgets the instance.
func (s *StaticLauncher) Terminate(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instanceID)
	return nil
}

// Kill forgets the instance.
func (s *StaticLauncher) Kill(ctx context.Context, instanceID string) error {
	return s.Terminate(ctx, instanceID)
}
