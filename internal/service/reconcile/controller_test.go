package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
)

type fakeRuntime struct {
	mu         sync.Mutex
	containers []docker.ManagedContainer
	removed    []string
}

func (f *fakeRuntime) ListManaged(context.Context) ([]docker.ManagedContainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docker.ManagedContainer(nil), f.containers...), nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

type fakeReleaser struct {
	released []string
}

func (f *fakeReleaser) Release(_ context.Context, id string) error {
	f.released = append(f.released, id)
	return nil
}

func managed(id, deploymentID, state string) docker.ManagedContainer {
	return docker.ManagedContainer{
		ID:    id,
		Name:  "catalyst-" + id,
		State: state,
		Labels: map[string]string{
			docker.LabelManaged:    "true",
			docker.LabelDeployment: deploymentID,
		},
	}
}

func seed(t *testing.T, store *memory.Store, id, projectID, containerID string, status domain.Status) {
	t.Helper()
	if err := store.CreateDeployment(context.Background(), &domain.Deployment{
		ID:          id,
		ProjectID:   projectID,
		Status:      status,
		ContainerID: containerID,
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newController(t *testing.T, store *memory.Store, rt *fakeRuntime, rel *fakeReleaser, locker lock.Locker, removeOrphans bool) *Controller {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := New(store, rt, rel, locker, logger, config.Config{ReconcileInterval: time.Second, ReconcileRemoveOrphans: removeOrphans})
	if ctrl == nil {
		t.Fatalf("expected controller to be created")
	}
	return ctrl
}

func TestNewDisabledWithoutInterval(t *testing.T) {
	if ctrl := New(memory.New(), &fakeRuntime{}, nil, lock.NewMemory(0), nil, config.Config{}); ctrl != nil {
		t.Fatalf("expected nil controller when interval is zero")
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	store := memory.New()
	seed(t, store, "dep-missing", "p1", "c-gone", domain.StatusRunning)
	seed(t, store, "dep-exited", "p2", "c-exited", domain.StatusRunning)
	seed(t, store, "dep-back", "p3", "c-back", domain.StatusStopped)
	seed(t, store, "dep-ok", "p4", "c-ok", domain.StatusRunning)
	seed(t, store, "dep-deploying", "p5", "", domain.StatusDeploying)

	rt := &fakeRuntime{containers: []docker.ManagedContainer{
		managed("c-exited", "dep-exited", "exited"),
		managed("c-back", "dep-back", "running"),
		managed("c-ok", "dep-ok", "running"),
		managed("c-new", "dep-deploying", "created"),
		managed("c-orphan", "dep-unknown", "running"),
	}}
	rel := &fakeReleaser{}
	ctrl := newController(t, store, rt, rel, lock.NewMemory(0), true)

	report, err := ctrl.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	want := Report{Failed: 1, Stopped: 1, Resumed: 1, Orphans: 1, Removed: 1}
	if report != want {
		t.Fatalf("unexpected report %+v", report)
	}

	assertStatus := func(id string, status domain.Status) {
		t.Helper()
		dep, err := store.GetDeploymentByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if dep.Status != status {
			t.Fatalf("%s: expected %s, got %s", id, status, dep.Status)
		}
	}
	assertStatus("dep-missing", domain.StatusFailed)
	assertStatus("dep-exited", domain.StatusStopped)
	assertStatus("dep-back", domain.StatusRunning)
	assertStatus("dep-ok", domain.StatusRunning)
	assertStatus("dep-deploying", domain.StatusDeploying)

	missing, _ := store.GetDeploymentByID(context.Background(), "dep-missing")
	if missing.ErrorMessage != missingMessage || missing.CompletedAt == nil {
		t.Fatalf("unexpected failed record %+v", missing)
	}
	if len(rel.released) != 1 || rel.released[0] != "dep-missing" {
		t.Fatalf("expected reservations released for dep-missing, got %v", rel.released)
	}
	if len(rt.removed) != 1 || rt.removed[0] != "c-orphan" {
		t.Fatalf("expected only the orphan to be removed, got %v", rt.removed)
	}
}

func TestReconcileKeepsOrphansWhenDisabled(t *testing.T) {
	rt := &fakeRuntime{containers: []docker.ManagedContainer{managed("c-orphan", "", "exited")}}
	ctrl := newController(t, memory.New(), rt, &fakeReleaser{}, lock.NewMemory(0), false)

	report, err := ctrl.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Orphans != 1 || report.Removed != 0 || len(rt.removed) != 0 {
		t.Fatalf("orphans must only be reported, got %+v removed=%v", report, rt.removed)
	}
}

func TestReconcileSkipsBusyProjects(t *testing.T) {
	store := memory.New()
	seed(t, store, "dep-1", "p1", "c-gone", domain.StatusRunning)
	locker := lock.NewMemory(0)
	lease, err := locker.Acquire(context.Background(), lock.Key("p1"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer locker.Release(context.Background(), lease)

	ctrl := newController(t, store, &fakeRuntime{}, &fakeReleaser{}, locker, true)
	report, err := ctrl.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("expected busy project to be skipped, got %+v", report)
	}
	dep, _ := store.GetDeploymentByID(context.Background(), "dep-1")
	if dep.Status != domain.StatusRunning {
		t.Fatalf("expected status untouched, got %s", dep.Status)
	}
}

func TestReconcileFailsDeploymentsAbandonedByTheirWorker(t *testing.T) {
	store := memory.New()
	seed(t, store, "dep-pending", "p1", "", domain.StatusPending)
	seed(t, store, "dep-building", "p2", "", domain.StatusBuilding)
	seed(t, store, "dep-deploying", "p3", "", domain.StatusDeploying)
	seed(t, store, "dep-busy", "p4", "", domain.StatusPending)

	rt := &fakeRuntime{containers: []docker.ManagedContainer{managed("c-half", "dep-deploying", "created")}}
	rel := &fakeReleaser{}
	locker := lock.NewMemory(0)
	lease, err := locker.Acquire(context.Background(), lock.Key("p4"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer locker.Release(context.Background(), lease)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := New(store, rt, rel, locker, logger, config.Config{
		ReconcileInterval: time.Second,
		BuildTimeout:      time.Minute,
		RunTimeout:        time.Minute,
	})

	report, err := ctrl.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report != (Report{}) {
		t.Fatalf("fresh in-flight records must be left alone, got %+v", report)
	}

	ctrl.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	report, err = ctrl.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if want := (Report{Abandoned: 3, Skipped: 1}); report != want {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, id := range []string{"dep-pending", "dep-building", "dep-deploying"} {
		dep, _ := store.GetDeploymentByID(context.Background(), id)
		if dep.Status != domain.StatusFailed || dep.ErrorMessage != abandonedMessage || dep.CompletedAt == nil {
			t.Fatalf("%s: expected abandoned failure, got %+v", id, dep)
		}
	}
	busy, _ := store.GetDeploymentByID(context.Background(), "dep-busy")
	if busy.Status != domain.StatusPending {
		t.Fatalf("busy project must be left to its worker, got %s", busy.Status)
	}
	if len(rel.released) != 3 {
		t.Fatalf("expected reservations released for three deployments, got %v", rel.released)
	}
	if len(rt.removed) != 1 || rt.removed[0] != "c-half" {
		t.Fatalf("expected the half-started container to be removed, got %v", rt.removed)
	}
}
