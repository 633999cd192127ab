package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// Labels attached to every managed container.
const (
	LabelManaged    = "catalyst.managed"
	LabelSubdomain  = "catalyst.subdomain"
	LabelDeployment = "catalyst.deployment"
)

// RunSpec describes a container to create and start.
type RunSpec struct {
	Name          string
	Image         string
	Env           []string
	Labels        map[string]string
	ContainerPort int
	HostPort      int
	NanoCPUs      int64
	MemoryBytes   int64
}

// ContainerInfo captures runtime details about a started container.
type ContainerInfo struct {
	ID          string
	HostPort    int
	PortBinding nat.PortMap
}

// ContainerState is the inspected state of a container.
type ContainerState struct {
	ID        string
	Status    string
	Running   bool
	StartedAt time.Time
}

// ManagedContainer is a container carrying the managed label.
type ManagedContainer struct {
	ID     string
	Name   string
	State  string
	Labels map[string]string
}

// RunContainer creates and starts a detached container that restarts unless explicitly stopped.
func (c *Client) RunContainer(ctx context.Context, spec RunSpec) (ContainerInfo, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return ContainerInfo{}, fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return ContainerInfo{}, fmt.Errorf("image name cannot be empty")
	}
	containerPort, err := nat.NewPort("tcp", strconv.Itoa(spec.ContainerPort))
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("container port: %w", err)
	}
	ports := nat.PortMap{containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)}}}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings:  ports,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Resources: container.Resources{
			NanoCPUs: spec.NanoCPUs,
			Memory:   spec.MemoryBytes,
		},
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("container create: %w", err)
	}
	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return ContainerInfo{ID: created.ID}, fmt.Errorf("container start: %w", err)
	}

	info := ContainerInfo{ID: created.ID, HostPort: spec.HostPort, PortBinding: ports}
	inspect, err := c.api.ContainerInspect(ctx, created.ID)
	if err != nil {
		return info, fmt.Errorf("container inspect: %w", err)
	}
	if inspect.NetworkSettings != nil && len(inspect.NetworkSettings.Ports) > 0 {
		info.PortBinding = inspect.NetworkSettings.Ports
	}
	return info, nil
}

// StopContainer stops a container, waiting up to timeout before killing it.
func (c *Client) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	if err := c.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		return wrapNotFound("container stop", err)
	}
	return nil
}

// RestartContainer restarts a running or stopped container.
func (c *Client) RestartContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	if err := c.api.ContainerRestart(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		return wrapNotFound("container restart", err)
	}
	return nil
}

// RemoveContainer force-removes a container by name or id. Missing containers are not an error.
func (c *Client) RemoveContainer(ctx context.Context, nameOrID string) error {
	if strings.TrimSpace(nameOrID) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	err := c.api.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		wrapped := wrapNotFound("container remove", err)
		if isNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// InspectContainer returns the current state of a container.
func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerState, error) {
	inspect, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerState{}, wrapNotFound("container inspect", err)
	}
	state := ContainerState{ID: inspect.ID}
	if inspect.State != nil {
		state.Status = inspect.State.Status
		state.Running = inspect.State.Running
		if started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
			state.StartedAt = started
		}
	}
	return state, nil
}

// ContainerLogs returns the last tail lines of combined stdout and stderr.
func (c *Client) ContainerLogs(ctx context.Context, id string, tail int) ([]string, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	rc, err := c.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return nil, wrapNotFound("container logs", err)
	}
	defer rc.Close()

	var combined bytes.Buffer
	if _, err := stdcopy.StdCopy(&combined, &combined, rc); err != nil {
		return nil, fmt.Errorf("demultiplex logs: %w", err)
	}
	lines := make([]string, 0, tail)
	scanner := bufio.NewScanner(&combined)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// ListManaged lists every container, running or not, that carries the managed label.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}
	out := make([]ManagedContainer, 0, len(list))
	for _, item := range list {
		name := ""
		if len(item.Names) > 0 {
			name = strings.TrimPrefix(item.Names[0], "/")
		}
		out = append(out, ManagedContainer{ID: item.ID, Name: name, State: item.State, Labels: item.Labels})
	}
	return out, nil
}
