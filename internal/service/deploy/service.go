// Package deploy orchestrates the build-and-run pipeline and container lifecycle of deployments.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/queue"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/workspace"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
)

const (
	persistTimeout   = 10 * time.Second
	storedLogTail    = 40
	maxProjectName   = 128
	defaultListLimit = 20
)

// ErrInvalidRequest marks deploy requests rejected before any work starts.
var ErrInvalidRequest = errors.New("invalid deployment request")

// Allocator reserves subdomains and host ports.
type Allocator interface {
	AllocateSubdomain(ctx context.Context, projectName, deploymentID string) (string, error)
	AllocatePort(ctx context.Context, deploymentID string) (int, error)
	Release(ctx context.Context, deploymentID string) error
}

// LogSink stores deployment log lines.
type LogSink interface {
	Append(ctx context.Context, line domain.LogLine) error
	List(ctx context.Context, deploymentID string, limit int) ([]domain.LogLine, error)
}

// Dependencies groups the collaborators of a Service.
type Dependencies struct {
	Deployments repository.DeploymentRepository
	Sources     repository.SourceRepository
	Allocator   Allocator
	Locker      lock.Locker
	Queue       queue.Queue
	Runtime     Runtime
	Workspace   *workspace.Manager
	Logs        LogSink
	Registerer  prometheus.Registerer
}

// DeployRequest is a request to deploy generated sources for a project.
type DeployRequest struct {
	ProjectID   string              `json:"project_id"`
	ProjectName string              `json:"project_name"`
	Files       []domain.SourceFile `json:"files"`
	CPULimit    int                 `json:"cpu_limit"`
	MemoryLimit int                 `json:"memory_limit"`
}

// Service coordinates deployments.
type Service struct {
	deployments repository.DeploymentRepository
	sources     repository.SourceRepository
	allocator   Allocator
	locker      lock.Locker
	queue       queue.Queue
	runtime     Runtime
	builder     ImageBuilder
	runner      ContainerRunner
	logs        LogSink
	logger      *slog.Logger
	cfg         config.Config
	metrics     *metrics
	now         func() time.Time
	newID       func() string
}

// New creates a deployment service.
func New(deps Dependencies, cfg config.Config, logger *slog.Logger) (Service, error) {
	switch {
	case deps.Deployments == nil:
		return Service{}, errors.New("deployment repository required")
	case deps.Sources == nil:
		return Service{}, errors.New("source repository required")
	case deps.Allocator == nil:
		return Service{}, errors.New("allocator required")
	case deps.Locker == nil:
		return Service{}, errors.New("locker required")
	case deps.Queue == nil:
		return Service{}, errors.New("queue required")
	case deps.Runtime == nil:
		return Service{}, errors.New("container runtime required")
	case deps.Workspace == nil:
		return Service{}, errors.New("workspace manager required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "deploy")
	return Service{
		deployments: deps.Deployments,
		sources:     deps.Sources,
		allocator:   deps.Allocator,
		locker:      deps.Locker,
		queue:       deps.Queue,
		runtime:     deps.Runtime,
		builder:     NewImageBuilder(deps.Runtime, deps.Workspace, cfg.ImagePrefix, logger),
		runner:      NewContainerRunner(deps.Runtime, cfg.BaseDomain, cfg.DefaultCPUMillicores, cfg.DefaultMemoryMB),
		logs:        deps.Logs,
		logger:      logger,
		cfg:         cfg,
		metrics:     newMetrics(deps.Registerer),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Ping verifies the container runtime is reachable.
func (s Service) Ping(ctx context.Context) error {
	return s.runtime.Ping(ctx)
}

// Submit validates req, claims the project, records a pending deployment with
// reserved subdomain and port, and queues the pipeline. The project lock travels
// with the queued job and is released when the pipeline ends.
func (s Service) Submit(ctx context.Context, req DeployRequest) (*domain.Deployment, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	lease, err := s.locker.Acquire(ctx, lock.Key(req.ProjectID))
	if err != nil {
		return nil, err
	}
	queued := false
	defer func() {
		if !queued {
			s.releaseLease(ctx, lease)
		}
	}()

	id := s.newID()
	log := s.logger.With("deployment_id", id, "project_id", req.ProjectID)

	sub, err := s.allocator.AllocateSubdomain(ctx, req.ProjectName, id)
	if err != nil {
		return nil, err
	}
	port, err := s.allocator.AllocatePort(ctx, id)
	if err != nil {
		s.releaseReservations(ctx, id)
		return nil, err
	}

	now := s.now().UTC()
	dep := &domain.Deployment{
		ID:          id,
		ProjectID:   req.ProjectID,
		ProjectName: req.ProjectName,
		Provider:    domain.ProviderCatalyst,
		Subdomain:   sub,
		Status:      domain.StatusPending,
		Port:        port,
		CPULimit:    req.CPULimit,
		MemoryLimit: req.MemoryLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deployments.CreateDeployment(ctx, dep); err != nil {
		s.releaseReservations(ctx, id)
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	if err := s.sources.SaveSources(ctx, id, req.Files); err != nil {
		s.abort(ctx, dep, fmt.Errorf("save sources: %w", err))
		return nil, fmt.Errorf("save sources: %w", err)
	}
	if err := s.queue.Enqueue(ctx, queue.Job{DeploymentID: id, Lease: lease}); err != nil {
		s.abort(ctx, dep, fmt.Errorf("enqueue deployment: %w", err))
		return nil, fmt.Errorf("enqueue deployment: %w", err)
	}
	queued = true

	s.appendLog(ctx, id, domain.StreamSystem, "info", fmt.Sprintf("deployment queued as %s", sub))
	log.Info("deployment queued", "subdomain", sub, "port", port, "files", len(req.Files))
	return dep, nil
}

// Execute runs the queued pipeline for job: build the image, start the
// container and record the outcome. Pipeline failures are recorded on the
// deployment rather than returned. The job's lease is refreshed before any
// work starts and kept alive until the pipeline ends.
func (s Service) Execute(ctx context.Context, job queue.Job) error {
	defer s.releaseLease(ctx, job.Lease)

	dep, err := s.deployments.GetDeploymentByID(ctx, job.DeploymentID)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", job.DeploymentID, err)
	}
	log := s.logger.With("deployment_id", dep.ID, "project_id", dep.ProjectID)
	if dep.Status != domain.StatusPending {
		log.Warn("skipping deployment that is no longer pending", "status", dep.Status)
		return nil
	}
	defer func() {
		pctx, cancel := s.persistContext(ctx)
		defer cancel()
		if err := s.sources.DeleteSources(pctx, dep.ID); err != nil {
			log.Warn("failed to delete stored sources", "error", err)
		}
	}()

	if job.Lease.Key != "" {
		if err := s.locker.Refresh(ctx, job.Lease); err != nil {
			s.fail(ctx, dep, "queue", fmt.Errorf("project lock lost while queued: %w", err), nil, "")
			return nil
		}
	}
	ctx, stopHeartbeat := s.holdLease(ctx, job.Lease)
	defer stopHeartbeat()

	if err := s.setStatus(ctx, dep.ID, domain.StatusBuilding); err != nil {
		return err
	}
	dep.Status = domain.StatusBuilding
	s.appendLog(ctx, dep.ID, domain.StreamSystem, "info", "building image")

	files, err := s.sources.GetSources(ctx, dep.ID)
	if err != nil {
		s.fail(ctx, dep, "sources", fmt.Errorf("load sources: %w", err), nil, "")
		return nil
	}

	started := s.now()
	buildCtx, cancelBuild := s.withTimeout(ctx, s.cfg.BuildTimeout)
	result, err := s.builder.Build(buildCtx, domain.BuildContext{
		ProjectID:   dep.ProjectID,
		ProjectName: dep.ProjectName,
		Subdomain:   dep.Subdomain,
		Files:       files,
	}, func(line string) {
		s.appendLog(ctx, dep.ID, domain.StreamBuild, "info", line)
	})
	buildTimedOut := errors.Is(buildCtx.Err(), context.DeadlineExceeded)
	cancelBuild()
	if err != nil {
		if buildTimedOut && !strings.Contains(err.Error(), "timed out") {
			err = fmt.Errorf("build timed out after %s: %w", s.cfg.BuildTimeout, err)
		}
		err = leaseCause(ctx, err)
		s.metrics.stage("build", "failed", s.now().Sub(started).Seconds())
		s.fail(ctx, dep, "build", err, result.BuildLogs, "")
		return nil
	}
	s.metrics.stage("build", "succeeded", s.now().Sub(started).Seconds())

	if err := s.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{
		ID:        dep.ID,
		Status:    domain.StatusDeploying,
		ImageName: result.ImageName,
		Framework: result.Framework,
		Logs:      strings.Join(result.BuildLogs, "\n"),
	}); err != nil {
		s.fail(ctx, dep, "deploy", fmt.Errorf("update deployment: %w", err), result.BuildLogs, "")
		return nil
	}
	dep.Status = domain.StatusDeploying
	s.appendLog(ctx, dep.ID, domain.StreamSystem, "info", fmt.Sprintf("image %s built (%s)", result.ImageName, result.Framework))

	started = s.now()
	runCtx, cancelRun := s.withTimeout(ctx, s.cfg.RunTimeout)
	defer cancelRun()
	handle, err := s.runner.Run(runCtx, domain.RunRequest{
		DeploymentID: dep.ID,
		ImageName:    result.ImageName,
		Subdomain:    dep.Subdomain,
		CPULimit:     dep.CPULimit,
		MemoryLimit:  dep.MemoryLimit,
		Port:         dep.Port,
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("container start timed out after %s: %w", s.cfg.RunTimeout, err)
		}
		err = leaseCause(ctx, err)
		s.metrics.stage("run", "failed", s.now().Sub(started).Seconds())
		s.fail(ctx, dep, "run", err, result.BuildLogs, handle.ContainerID)
		return nil
	}
	s.metrics.stage("run", "succeeded", s.now().Sub(started).Seconds())

	completed := s.now().UTC()
	if err := s.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{
		ID:            dep.ID,
		Status:        domain.StatusRunning,
		ContainerID:   handle.ContainerID,
		Port:          handle.Port,
		DeploymentURL: handle.DeploymentURL,
		CompletedAt:   &completed,
	}); err != nil {
		s.fail(ctx, dep, "run", fmt.Errorf("update deployment: %w", err), result.BuildLogs, handle.ContainerID)
		return nil
	}
	s.metrics.outcome("succeeded")
	s.appendLog(ctx, dep.ID, domain.StreamSystem, "info", "deployment running at "+handle.DeploymentURL)
	log.Info("deployment running", "container_id", handle.ContainerID, "url", handle.DeploymentURL)
	return nil
}

// Get returns a deployment by ID.
func (s Service) Get(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.deployments.GetDeploymentByID(ctx, id)
}

// List returns the newest deployments of a project.
func (s Service) List(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.deployments.ListDeploymentsByProject(ctx, projectID, limit)
}

// BuildLogs returns the newest persisted pipeline log lines of a deployment.
func (s Service) BuildLogs(ctx context.Context, id string, limit int) ([]domain.LogLine, error) {
	if _, err := s.deployments.GetDeploymentByID(ctx, id); err != nil {
		return nil, err
	}
	if s.logs == nil {
		return nil, nil
	}
	return s.logs.List(ctx, id, limit)
}

func (s Service) normalize(req DeployRequest) (DeployRequest, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	switch {
	case req.ProjectID == "":
		return req, fmt.Errorf("%w: project id required", ErrInvalidRequest)
	case req.ProjectName == "":
		return req, fmt.Errorf("%w: project name required", ErrInvalidRequest)
	case len(req.ProjectName) > maxProjectName:
		return req, fmt.Errorf("%w: project name longer than %d characters", ErrInvalidRequest, maxProjectName)
	case len(req.Files) == 0:
		return req, fmt.Errorf("%w: at least one source file required", ErrInvalidRequest)
	}
	for _, f := range req.Files {
		if strings.TrimSpace(f.Path) == "" {
			return req, fmt.Errorf("%w: source file path required", ErrInvalidRequest)
		}
	}
	if req.CPULimit == 0 {
		req.CPULimit = s.runner.cpu
	}
	if req.MemoryLimit == 0 {
		req.MemoryLimit = s.runner.memory
	}
	if err := checkLimit("cpu limit", "millicores", req.CPULimit, s.cfg.MaxCPUMillicores); err != nil {
		return req, err
	}
	if err := checkLimit("memory limit", "MB", req.MemoryLimit, s.cfg.MaxMemoryMB); err != nil {
		return req, err
	}
	return req, nil
}

// checkLimit rejects negative values and values above ceiling. A zero ceiling means unbounded.
func checkLimit(name, unit string, value, ceiling int) error {
	switch {
	case ceiling <= 0 && value < 0:
		return fmt.Errorf("%w: %s must be at least 1 %s", ErrInvalidRequest, name, unit)
	case ceiling > 0 && (value < 0 || value > ceiling):
		return fmt.Errorf("%w: %s must be between 1 and %d %s", ErrInvalidRequest, name, ceiling, unit)
	}
	return nil
}

// fail records a failed pipeline, removes any container it created and releases reservations.
func (s Service) fail(ctx context.Context, dep *domain.Deployment, stage string, cause error, logs []string, containerID string) {
	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	s.logger.Error("deployment failed", "deployment_id", dep.ID, "project_id", dep.ProjectID, "stage", stage, "error", cause)
	s.metrics.outcome("failed")

	if containerID != "" {
		if err := s.runtime.RemoveContainer(pctx, containerID); err != nil {
			s.logger.Warn("failed to remove container of failed deployment", "deployment_id", dep.ID, "container_id", containerID, "error", err)
		}
	}
	s.releaseReservations(pctx, dep.ID)

	message := cause.Error()
	var buildErr *BuildFailure
	if errors.As(cause, &buildErr) {
		message = buildErr.Err.Error()
	}
	s.appendLog(pctx, dep.ID, domain.StreamSystem, "error", fmt.Sprintf("%s failed: %s", stage, message))

	if len(logs) > storedLogTail {
		logs = logs[len(logs)-storedLogTail:]
	}
	completed := s.now().UTC()
	if err := s.deployments.UpdateDeployment(pctx, domain.DeploymentUpdate{
		ID:           dep.ID,
		Status:       domain.StatusFailed,
		Logs:         strings.Join(logs, "\n"),
		ErrorMessage: message,
		CompletedAt:  &completed,
	}); err != nil {
		s.logger.Error("failed to record deployment failure", "deployment_id", dep.ID, "error", err)
	}
	dep.Status = domain.StatusFailed
	dep.ErrorMessage = message
}

// abort fails a deployment that never reached the queue.
func (s Service) abort(ctx context.Context, dep *domain.Deployment, cause error) {
	s.fail(ctx, dep, "submit", cause, nil, "")
}

func (s Service) setStatus(ctx context.Context, id string, status domain.Status) error {
	current, err := s.deployments.GetDeploymentByID(ctx, id)
	if err != nil {
		return err
	}
	if err := domain.CheckTransition(current.Status, status); err != nil {
		return err
	}
	return s.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{ID: id, Status: status})
}

func (s Service) appendLog(ctx context.Context, deploymentID, stream, level, message string) {
	if s.logs == nil || strings.TrimSpace(message) == "" {
		return
	}
	err := s.logs.Append(ctx, domain.LogLine{
		DeploymentID: deploymentID,
		Stream:       stream,
		Level:        level,
		Message:      message,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to persist deployment log", "deployment_id", deploymentID, "error", err)
	}
}

func (s Service) releaseReservations(ctx context.Context, deploymentID string) {
	if err := s.allocator.Release(ctx, deploymentID); err != nil {
		s.logger.Warn("failed to release reservations", "deployment_id", deploymentID, "error", err)
	}
}

func (s Service) releaseLease(ctx context.Context, lease lock.Lease) {
	if lease.Key == "" {
		return
	}
	pctx, cancel := s.persistContext(ctx)
	defer cancel()
	if err := s.locker.Release(pctx, lease); err != nil {
		s.logger.Warn("failed to release project lock", "key", lease.Key, "error", err)
	}
}

// holdLease refreshes lease every third of the lock TTL until the returned stop
// func is called. Losing the lease cancels the returned context with lock.ErrLost.
func (s Service) holdLease(ctx context.Context, lease lock.Lease) (context.Context, func()) {
	if lease.Key == "" || s.cfg.LockTTL <= 0 {
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.locker.Refresh(ctx, lease); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Error("project lock heartbeat failed", "key", lease.Key, "error", err)
					cancel(fmt.Errorf("%w: %w", lock.ErrLost, err))
					return
				}
			}
		}
	}()
	return ctx, func() {
		cancel(nil)
		<-done
	}
}

// leaseCause attributes err to a lost lease when that is why ctx ended.
func leaseCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, lock.ErrLost) {
		return fmt.Errorf("project lock lost: %w", err)
	}
	return err
}

// persistContext detaches from ctx cancellation so bookkeeping survives pipeline timeouts.
func (s Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s Service) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
