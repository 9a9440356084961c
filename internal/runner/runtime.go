// Package runner consumes container tasks from the queue and executes them
// against a container runtime. It also sweeps for containers that died
// without reporting back.
package runner

import "context"

// ContainerState is the runtime's view of one container.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StateUnknown ContainerState = "unknown"
)

// ContainerInfo describes one existing container.
type ContainerInfo struct {
	Name  string
	State ContainerState
}

// ContainerRuntime abstracts the container engine. The docker CLI
// implementation is the default; tests substitute an in-memory fake.
type ContainerRuntime interface {
	Start(ctx context.Context, name, image string, env map[string]string) error
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	// List returns containers whose name starts with prefix, including
	// stopped ones.
	List(ctx context.Context, prefix string) ([]ContainerInfo, error)
}
