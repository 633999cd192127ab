package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
)

func TestStopRestartRemove(t *testing.T) {
	rt := &fakeRuntime{}
	h := newHarness(t, rt, testConfig())
	dep := deployRunning(t, h)
	ctx := context.Background()

	stopped, err := h.svc.Stop(ctx, dep.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != domain.StatusStopped || len(rt.stopped) != 1 {
		t.Fatalf("expected stopped deployment, got %s", stopped.Status)
	}
	if _, err := h.svc.Stop(ctx, dep.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition stopping twice, got %v", err)
	}

	restarted, err := h.svc.Restart(ctx, dep.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Status != domain.StatusRunning || len(rt.restarted) != 1 {
		t.Fatalf("expected running deployment, got %s", restarted.Status)
	}

	removed, err := h.svc.Remove(ctx, dep.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != domain.StatusRemoved || removed.CompletedAt == nil {
		t.Fatalf("expected removed deployment, got %+v", removed)
	}
	if !rt.removedContains(dep.ContainerID) {
		t.Fatalf("expected container removal, removed=%v", rt.removed)
	}
	reservations, _ := h.store.ListReservations(ctx, dep.ID)
	if len(reservations) != 0 {
		t.Fatalf("expected reservations released, got %v", reservations)
	}
	if _, err := h.svc.Restart(ctx, dep.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after removal, got %v", err)
	}
}

func TestLifecycleRejectsWhileProjectBusy(t *testing.T) {
	h := newHarness(t, &fakeRuntime{}, testConfig())
	dep := deployRunning(t, h)

	lease, err := h.locker.Acquire(context.Background(), lock.Key(dep.ProjectID))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.locker.Release(context.Background(), lease)

	if _, err := h.svc.Stop(context.Background(), dep.ID); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRemoveFailedDeploymentWithoutContainer(t *testing.T) {
	rt := &fakeRuntime{buildErr: errBuildFailed}
	h := newHarness(t, rt, testConfig())
	dep := submit(t, h, "project-1")
	if err := h.svc.Execute(context.Background(), h.queue.last(t)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	removed, err := h.svc.Remove(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != domain.StatusRemoved {
		t.Fatalf("expected removed, got %s", removed.Status)
	}
	if !rt.removedContains(ContainerName(dep.Subdomain)) {
		t.Fatalf("expected removal by container name, removed=%v", rt.removed)
	}
}

func TestHealthReportsUptime(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rt := &fakeRuntime{state: docker.ContainerState{Status: "running", Running: true, StartedAt: now.Add(-90 * time.Second)}}
	h := newHarness(t, rt, testConfig())
	dep := deployRunning(t, h)
	h.svc.now = func() time.Time { return now }

	health, err := h.svc.Health(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "running" || health.Uptime != 90 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestHealthFallsBackToUnknown(t *testing.T) {
	rt := &fakeRuntime{inspectErr: docker.ErrNotFound}
	h := newHarness(t, rt, testConfig())
	dep := deployRunning(t, h)

	health, err := h.svc.Health(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health != domain.UnknownHealth {
		t.Fatalf("expected unknown health, got %+v", health)
	}
	if got := h.svc.ContainerHealth(context.Background(), "missing"); got.Status != "unknown" || got.Uptime != 0 {
		t.Fatalf("expected unknown container health, got %+v", got)
	}

	if _, err := h.svc.Health(context.Background(), "does-not-exist"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLogsDefaultsTail(t *testing.T) {
	lines := make([]string, 150)
	for i := range lines {
		lines[i] = "line"
	}
	rt := &fakeRuntime{logs: lines}
	h := newHarness(t, rt, testConfig())
	dep := deployRunning(t, h)

	got, err := h.svc.Logs(context.Background(), dep.ID, 0)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(got))
	}
}
