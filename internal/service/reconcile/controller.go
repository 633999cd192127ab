// Package reconcile converges stored deployment state with the containers that actually exist.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
)

const (
	reconcileTimeout = 30 * time.Second
	missingMessage   = "container missing from runtime"
	abandonedMessage = "worker lost before the pipeline finished"
)

// Runtime lists and removes managed containers.
type Runtime interface {
	ListManaged(ctx context.Context) ([]docker.ManagedContainer, error)
	RemoveContainer(ctx context.Context, nameOrID string) error
}

// Releaser frees the reservations of a deployment.
type Releaser interface {
	Release(ctx context.Context, deploymentID string) error
}

// Controller periodically repairs drift between deployments and containers.
type Controller struct {
	deployments repository.DeploymentRepository
	runtime     Runtime
	releaser    Releaser
	locker      lock.Locker
	logger      *slog.Logger

	interval      time.Duration
	removeOrphans bool
	staleAfter    time.Duration

	now func() time.Time
}

// Report summarises one pass.
type Report struct {
	Failed    int
	Stopped   int
	Resumed   int
	Orphans   int
	Removed   int
	Skipped   int
	Abandoned int
}

// New constructs a controller. It returns nil when reconciliation is disabled.
func New(deployments repository.DeploymentRepository, rt Runtime, releaser Releaser, locker lock.Locker, logger *slog.Logger, cfg config.Config) *Controller {
	if deployments == nil || rt == nil || locker == nil || cfg.ReconcileInterval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		deployments:   deployments,
		runtime:       rt,
		releaser:      releaser,
		locker:        locker,
		logger:        logger.With("component", "reconcile"),
		interval:      cfg.ReconcileInterval,
		removeOrphans: cfg.ReconcileRemoveOrphans,
		staleAfter:    cfg.BuildTimeout + cfg.RunTimeout,
		now:           time.Now,
	}
}

// Run executes the reconciliation loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	if c == nil {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("reconciler started", "interval", c.interval, "remove_orphans", c.removeOrphans)
	c.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			c.runIteration(ctx)
		}
	}
}

func (c *Controller) runIteration(parent context.Context) Report {
	timeout := reconcileTimeout
	if c.interval < timeout {
		timeout = c.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	report, err := c.Reconcile(ctx)
	if err != nil {
		c.logger.Warn("reconcile pass failed", "error", err)
		return report
	}
	if report != (Report{}) {
		c.logger.Info("reconcile pass finished",
			"failed", report.Failed,
			"stopped", report.Stopped,
			"resumed", report.Resumed,
			"orphans", report.Orphans,
			"removed", report.Removed,
			"skipped", report.Skipped,
			"abandoned", report.Abandoned,
		)
	}
	return report
}

// Reconcile runs a single pass. Deployments whose project is busy are skipped.
// In-flight records older than the build and run timeouts combined, whose
// project lock is free, lost their worker and are failed.
func (c *Controller) Reconcile(ctx context.Context) (Report, error) {
	var report Report
	containers, err := c.runtime.ListManaged(ctx)
	if err != nil {
		return report, err
	}
	deps, err := c.deployments.ListDeploymentsByStatus(ctx,
		domain.StatusPending, domain.StatusBuilding, domain.StatusDeploying,
		domain.StatusRunning, domain.StatusStopped)
	if err != nil {
		return report, err
	}

	byID := make(map[string]docker.ManagedContainer, len(containers))
	byDeployment := make(map[string]docker.ManagedContainer, len(containers))
	for _, ctr := range containers {
		byID[ctr.ID] = ctr
		if id := ctr.Labels[docker.LabelDeployment]; id != "" {
			byDeployment[id] = ctr
		}
	}

	owned := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		owned[dep.ID] = struct{}{}
		ctr, ok := byID[dep.ContainerID]
		if !ok {
			ctr, ok = byDeployment[dep.ID]
		}
		if inFlight(dep.Status) {
			if !c.stale(dep) {
				continue
			}
			switch c.abandon(ctx, dep, ctr, ok) {
			case outcomeAbandoned:
				report.Abandoned++
			case outcomeSkipped:
				report.Skipped++
			}
			continue
		}
		switch c.reconcileDeployment(ctx, dep, ctr, ok) {
		case outcomeFailed:
			report.Failed++
		case outcomeStopped:
			report.Stopped++
		case outcomeResumed:
			report.Resumed++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	for _, ctr := range containers {
		if _, ok := owned[ctr.Labels[docker.LabelDeployment]]; ok {
			continue
		}
		report.Orphans++
		if !c.removeOrphans {
			c.logger.Warn("orphaned container", "container_id", ctr.ID, "name", ctr.Name, "state", ctr.State)
			continue
		}
		if err := c.runtime.RemoveContainer(ctx, ctr.ID); err != nil {
			c.logger.Warn("failed to remove orphaned container", "container_id", ctr.ID, "error", err)
			continue
		}
		report.Removed++
		c.logger.Info("orphaned container removed", "container_id", ctr.ID, "name", ctr.Name)
	}
	return report, nil
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeFailed
	outcomeStopped
	outcomeResumed
	outcomeSkipped
	outcomeAbandoned
)

func inFlight(status domain.Status) bool {
	switch status {
	case domain.StatusPending, domain.StatusBuilding, domain.StatusDeploying:
		return true
	}
	return false
}

// stale reports whether dep has sat in flight longer than any live worker could take.
func (c *Controller) stale(dep domain.Deployment) bool {
	if c.staleAfter <= 0 {
		return false
	}
	since := dep.UpdatedAt
	if since.IsZero() {
		since = dep.CreatedAt
	}
	return c.now().Sub(since) > c.staleAfter
}

// abandon fails an in-flight deployment whose worker is gone, removing any
// container it started and releasing its reservations.
func (c *Controller) abandon(ctx context.Context, dep domain.Deployment, ctr docker.ManagedContainer, found bool) outcome {
	lease, err := c.locker.Acquire(ctx, lock.Key(dep.ProjectID))
	if err != nil {
		if !errors.Is(err, lock.ErrLocked) {
			c.logger.Warn("failed to lock project", "project_id", dep.ProjectID, "error", err)
		}
		return outcomeSkipped
	}
	defer c.release(ctx, lease)

	current, err := c.deployments.GetDeploymentByID(ctx, dep.ID)
	if err != nil || current.Status != dep.Status || !current.UpdatedAt.Equal(dep.UpdatedAt) {
		return outcomeSkipped
	}
	log := c.logger.With("deployment_id", dep.ID, "project_id", dep.ProjectID)

	if found {
		if err := c.runtime.RemoveContainer(ctx, ctr.ID); err != nil {
			log.Warn("failed to remove container of abandoned deployment", "container_id", ctr.ID, "error", err)
		}
	}
	completed := c.now().UTC()
	if err := c.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{
		ID:           dep.ID,
		Status:       domain.StatusFailed,
		ErrorMessage: abandonedMessage,
		CompletedAt:  &completed,
	}); err != nil {
		log.Warn("failed to mark abandoned deployment failed", "error", err)
		return outcomeNone
	}
	c.releaseReservations(ctx, dep.ID, log)
	log.Warn("abandoned deployment failed", "status", dep.Status, "since", dep.UpdatedAt)
	return outcomeAbandoned
}

func (c *Controller) release(ctx context.Context, lease lock.Lease) {
	if err := c.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
		c.logger.Warn("failed to release project lock", "key", lease.Key, "error", err)
	}
}

func (c *Controller) releaseReservations(ctx context.Context, deploymentID string, log *slog.Logger) {
	if c.releaser == nil {
		return
	}
	if err := c.releaser.Release(ctx, deploymentID); err != nil {
		log.Warn("failed to release reservations", "error", err)
	}
}

func (c *Controller) reconcileDeployment(ctx context.Context, dep domain.Deployment, ctr docker.ManagedContainer, found bool) outcome {
	lease, err := c.locker.Acquire(ctx, lock.Key(dep.ProjectID))
	if err != nil {
		if !errors.Is(err, lock.ErrLocked) {
			c.logger.Warn("failed to lock project", "project_id", dep.ProjectID, "error", err)
		}
		return outcomeSkipped
	}
	defer c.release(ctx, lease)

	// The record may have moved on while the containers were listed.
	current, err := c.deployments.GetDeploymentByID(ctx, dep.ID)
	if err != nil || current.Status != dep.Status {
		return outcomeSkipped
	}
	log := c.logger.With("deployment_id", dep.ID, "project_id", dep.ProjectID)

	switch {
	case !found:
		completed := c.now().UTC()
		if err := c.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{
			ID:           dep.ID,
			Status:       domain.StatusFailed,
			ErrorMessage: missingMessage,
			CompletedAt:  &completed,
		}); err != nil {
			log.Warn("failed to mark deployment failed", "error", err)
			return outcomeNone
		}
		c.releaseReservations(ctx, dep.ID, log)
		log.Warn("deployment container missing", "container_id", dep.ContainerID)
		return outcomeFailed
	case dep.Status == domain.StatusRunning && !isUp(ctr.State):
		if err := c.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{ID: dep.ID, Status: domain.StatusStopped}); err != nil {
			log.Warn("failed to mark deployment stopped", "error", err)
			return outcomeNone
		}
		log.Info("deployment container not running", "state", ctr.State)
		return outcomeStopped
	case dep.Status == domain.StatusStopped && ctr.State == "running":
		if err := c.deployments.UpdateDeployment(ctx, domain.DeploymentUpdate{ID: dep.ID, Status: domain.StatusRunning}); err != nil {
			log.Warn("failed to mark deployment running", "error", err)
			return outcomeNone
		}
		log.Info("stopped deployment found running")
		return outcomeResumed
	}
	return outcomeNone
}

// isUp treats transient states as running; the restart policy brings those back.
func isUp(state string) bool {
	switch state {
	case "running", "restarting", "created", "paused":
		return true
	}
	return false
}
