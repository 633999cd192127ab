package deploy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/buildpack"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/subdomain"
)

const (
	defaultBaseDomain    = "catalyst.app"
	defaultCPUMillicores = 1000
	defaultMemoryMB      = 512
)

// ContainerRunner starts built images as long-running, resource-limited containers.
type ContainerRunner struct {
	runtime    Runtime
	baseDomain string
	cpu        int
	memory     int
}

// NewContainerRunner constructs a runner. Zero values fall back to catalyst.app, 1000 millicores and 512 MB.
func NewContainerRunner(rt Runtime, baseDomain string, defaultCPU, defaultMemory int) ContainerRunner {
	if baseDomain == "" {
		baseDomain = defaultBaseDomain
	}
	if defaultCPU <= 0 {
		defaultCPU = defaultCPUMillicores
	}
	if defaultMemory <= 0 {
		defaultMemory = defaultMemoryMB
	}
	return ContainerRunner{runtime: rt, baseDomain: baseDomain, cpu: defaultCPU, memory: defaultMemory}
}

// ContainerName is the runtime name for a subdomain's container.
func ContainerName(sub string) string {
	return "catalyst-" + subdomain.Sanitize(sub)
}

// URL is the public address of a subdomain.
func (r ContainerRunner) URL(sub string) string {
	return fmt.Sprintf("https://%s.%s", subdomain.Sanitize(sub), r.baseDomain)
}

// Run starts req.ImageName publishing the app port on req.Port. On failure the
// returned handle still carries the container ID when one was created.
func (r ContainerRunner) Run(ctx context.Context, req domain.RunRequest) (domain.ContainerHandle, error) {
	if r.runtime == nil {
		return domain.ContainerHandle{}, errors.New("container runner not initialised")
	}
	if req.ImageName == "" {
		return domain.ContainerHandle{}, errors.New("image name required")
	}
	if req.Port <= 0 || req.Port > 65535 {
		return domain.ContainerHandle{}, fmt.Errorf("invalid host port %d", req.Port)
	}
	sub := subdomain.Sanitize(req.Subdomain)
	cpu := req.CPULimit
	if cpu <= 0 {
		cpu = r.cpu
	}
	memory := req.MemoryLimit
	if memory <= 0 {
		memory = r.memory
	}

	spec := docker.RunSpec{
		Name:  ContainerName(sub),
		Image: req.ImageName,
		Env:   []string{"PORT=" + strconv.Itoa(buildpack.AppPort)},
		Labels: map[string]string{
			docker.LabelManaged:    "true",
			docker.LabelSubdomain:  sub,
			docker.LabelDeployment: req.DeploymentID,
		},
		ContainerPort: buildpack.AppPort,
		HostPort:      req.Port,
		NanoCPUs:      int64(cpu) * 1_000_000,
		MemoryBytes:   int64(memory) * 1024 * 1024,
	}
	info, err := r.runtime.RunContainer(ctx, spec)
	if err != nil {
		return domain.ContainerHandle{ContainerID: info.ID}, fmt.Errorf("run container %s: %w", spec.Name, err)
	}
	port := req.Port
	if info.HostPort > 0 {
		port = info.HostPort
	}
	return domain.ContainerHandle{
		ContainerID:   info.ID,
		Port:          port,
		DeploymentURL: r.URL(sub),
	}, nil
}
