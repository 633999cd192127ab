package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/allocator"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/queue"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/logs"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/workspace"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
)

type fakeRuntime struct {
	mu sync.Mutex

	buildOutput []string
	buildErr    error
	buildWait   bool
	dockerfile  string

	runID  string
	runErr error
	specs  []docker.RunSpec

	removed   []string
	stopped   []string
	restarted []string

	state      docker.ContainerState
	inspectErr error
	logs       []string
}

func (f *fakeRuntime) Ping(context.Context) error { return nil }

func (f *fakeRuntime) BuildImage(ctx context.Context, dir, _ string, _ map[string]string, onOutput docker.BuildOutputCallback) error {
	if data, err := os.ReadFile(filepath.Join(dir, "Dockerfile")); err == nil {
		f.mu.Lock()
		f.dockerfile = string(data)
		f.mu.Unlock()
	}
	for _, line := range f.buildOutput {
		onOutput(line)
	}
	if f.buildWait {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.buildErr
}

func (f *fakeRuntime) RunContainer(_ context.Context, spec docker.RunSpec) (docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	id := f.runID
	if id == "" {
		id = "container-1"
	}
	return docker.ContainerInfo{ID: id, HostPort: spec.HostPort}, f.runErr
}

func (f *fakeRuntime) StopContainer(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeRuntime) RestartContainer(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, id)
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, nameOrID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, nameOrID)
	return nil
}

func (f *fakeRuntime) InspectContainer(context.Context, string) (docker.ContainerState, error) {
	if f.inspectErr != nil {
		return docker.ContainerState{}, f.inspectErr
	}
	return f.state, nil
}

func (f *fakeRuntime) ContainerLogs(_ context.Context, _ string, tail int) ([]string, error) {
	if tail < len(f.logs) {
		return f.logs[len(f.logs)-tail:], nil
	}
	return f.logs, nil
}

func (f *fakeRuntime) removedContains(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.removed {
		if r == target {
			return true
		}
	}
	return false
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) last(t *testing.T) queue.Job {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		t.Fatalf("expected a queued job")
	}
	return q.jobs[len(q.jobs)-1]
}

type failingSources struct {
	repository.SourceRepository
	err error
}

func (f failingSources) SaveSources(context.Context, string, []domain.SourceFile) error {
	return f.err
}

type harness struct {
	svc     Service
	store   *memory.Store
	runtime *fakeRuntime
	queue   *captureQueue
	locker  *lock.Memory
	root    string
}

func testConfig() config.Config {
	return config.Config{
		ImagePrefix:          "catalyst",
		BaseDomain:           "catalyst.app",
		DefaultCPUMillicores: 1000,
		DefaultMemoryMB:      512,
		MaxCPUMillicores:     4000,
		MaxMemoryMB:          4096,
		BuildTimeout:         time.Minute,
		RunTimeout:           time.Minute,
		LifecycleTimeout:     time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, rt *fakeRuntime, cfg config.Config) *harness {
	t.Helper()
	store := memory.New()
	alloc, err := allocator.New(store, allocator.Options{PortStart: 20000, PortEnd: 20099, MaxAttempts: 8})
	if err != nil {
		t.Fatalf("allocator: %v", err)
	}
	root := t.TempDir()
	ws, err := workspace.New(root)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	q := &captureQueue{}
	locker := lock.NewMemory(cfg.LockTTL)
	svc, err := New(Dependencies{
		Deployments: store,
		Sources:     store,
		Allocator:   alloc,
		Locker:      locker,
		Queue:       q,
		Runtime:     rt,
		Workspace:   ws,
		Logs:        logs.New(store, nil, discardLogger()),
		Registerer:  prometheus.NewRegistry(),
	}, cfg, discardLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harness{svc: svc, store: store, runtime: rt, queue: q, locker: locker, root: root}
}

var errBuildFailed = errors.New("failed to solve: process \"/bin/sh -c npm install\" did not complete successfully: exit code: 1")
