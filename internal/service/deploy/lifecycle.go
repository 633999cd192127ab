package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
)

const (
	stopGracePeriod = 10 * time.Second
	defaultLogTail  = 100
	maxLogTail      = 5000
)

// ErrNoContainer is returned for lifecycle operations on deployments that never started a container.
var ErrNoContainer = errors.New("deployment has no container")

// Stop halts the container of a running deployment.
func (s Service) Stop(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.transition(ctx, id, domain.StatusStopped, "stopped", func(ctx context.Context, dep *domain.Deployment) error {
		if dep.ContainerID == "" {
			return ErrNoContainer
		}
		return s.runtime.StopContainer(ctx, dep.ContainerID, stopGracePeriod)
	})
}

// Restart restarts the container of a running or stopped deployment.
func (s Service) Restart(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.transition(ctx, id, domain.StatusRunning, "restarted", func(ctx context.Context, dep *domain.Deployment) error {
		if dep.ContainerID == "" {
			return ErrNoContainer
		}
		return s.runtime.RestartContainer(ctx, dep.ContainerID, stopGracePeriod)
	})
}

// Remove deletes the container of a deployment and frees its subdomain and port.
// A container that is already gone is not an error.
func (s Service) Remove(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.transition(ctx, id, domain.StatusRemoved, "removed", func(ctx context.Context, dep *domain.Deployment) error {
		target := dep.ContainerID
		if target == "" && dep.Subdomain != "" {
			target = ContainerName(dep.Subdomain)
		}
		if target != "" {
			if err := s.runtime.RemoveContainer(ctx, target); err != nil {
				return err
			}
		}
		if err := s.allocator.Release(ctx, dep.ID); err != nil {
			return fmt.Errorf("release reservations: %w", err)
		}
		if err := s.sources.DeleteSources(ctx, dep.ID); err != nil {
			s.logger.Warn("failed to delete stored sources", "deployment_id", dep.ID, "error", err)
		}
		return nil
	})
}

// Health reports the container state of a deployment. A deployment without a
// container, or whose container cannot be inspected, reports unknown.
func (s Service) Health(ctx context.Context, id string) (domain.Health, error) {
	dep, err := s.deployments.GetDeploymentByID(ctx, id)
	if err != nil {
		return domain.Health{}, err
	}
	if dep.ContainerID == "" {
		return domain.UnknownHealth, nil
	}
	return s.ContainerHealth(ctx, dep.ContainerID), nil
}

// ContainerHealth inspects a container directly. It never fails; errors read as unknown.
func (s Service) ContainerHealth(ctx context.Context, containerID string) domain.Health {
	ctx, cancel := s.withTimeout(ctx, s.cfg.LifecycleTimeout)
	defer cancel()
	state, err := s.runtime.InspectContainer(ctx, containerID)
	if err != nil {
		s.logger.Debug("container inspect failed", "container_id", containerID, "error", err)
		return domain.UnknownHealth
	}
	health := domain.Health{Status: state.Status}
	if health.Status == "" {
		health.Status = domain.UnknownHealth.Status
	}
	if state.Running && !state.StartedAt.IsZero() {
		if uptime := s.now().Sub(state.StartedAt); uptime > 0 {
			health.Uptime = int64(uptime / time.Second)
		}
	}
	return health
}

// Logs returns the last tail lines of container output. tail <= 0 means 100.
func (s Service) Logs(ctx context.Context, id string, tail int) ([]string, error) {
	dep, err := s.deployments.GetDeploymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dep.ContainerID == "" {
		return nil, ErrNoContainer
	}
	if tail <= 0 {
		tail = defaultLogTail
	}
	if tail > maxLogTail {
		tail = maxLogTail
	}
	ctx, cancel := s.withTimeout(ctx, s.cfg.LifecycleTimeout)
	defer cancel()
	return s.runtime.ContainerLogs(ctx, dep.ContainerID, tail)
}

// transition runs op under the project lock and records the new status.
func (s Service) transition(ctx context.Context, id string, to domain.Status, verb string, op func(context.Context, *domain.Deployment) error) (*domain.Deployment, error) {
	dep, err := s.deployments.GetDeploymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lease, err := s.locker.Acquire(ctx, lock.Key(dep.ProjectID))
	if err != nil {
		return nil, err
	}
	defer s.releaseLease(ctx, lease)

	// Re-read under the lock; a pipeline may have finished in between.
	dep, err = s.deployments.GetDeploymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckTransition(dep.Status, to); err != nil {
		return nil, err
	}

	opCtx, cancel := s.withTimeout(ctx, s.cfg.LifecycleTimeout)
	defer cancel()
	if err := op(opCtx, dep); err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s: %w", verb, s.cfg.LifecycleTimeout, err)
		}
		s.logger.Error("lifecycle operation failed", "deployment_id", dep.ID, "target", to, "error", err)
		return nil, err
	}

	update := domain.DeploymentUpdate{ID: dep.ID, Status: to}
	if to == domain.StatusRemoved {
		completed := s.now().UTC()
		update.CompletedAt = &completed
	}
	if err := s.deployments.UpdateDeployment(ctx, update); err != nil {
		return nil, fmt.Errorf("update deployment: %w", err)
	}
	s.appendLog(ctx, dep.ID, domain.StreamSystem, "info", "deployment "+verb)
	s.logger.Info("deployment "+verb, "deployment_id", dep.ID, "project_id", dep.ProjectID)
	return s.deployments.GetDeploymentByID(ctx, id)
}
