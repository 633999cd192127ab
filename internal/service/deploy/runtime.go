package deploy

import (
	"context"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
)

// Runtime is the container engine surface used by deployments.
type Runtime interface {
	Ping(ctx context.Context) error
	BuildImage(ctx context.Context, dir, tag string, labels map[string]string, onOutput docker.BuildOutputCallback) error
	RunContainer(ctx context.Context, spec docker.RunSpec) (docker.ContainerInfo, error)
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RestartContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, nameOrID string) error
	InspectContainer(ctx context.Context, id string) (docker.ContainerState, error)
	ContainerLogs(ctx context.Context, id string, tail int) ([]string, error)
}

var _ Runtime = (*docker.Client)(nil)
