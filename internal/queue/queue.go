// Package queue runs deployment pipelines off the request path.
package queue

import (
	"context"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
)

// Job asks a worker to build and run one deployment while holding lease.
type Job struct {
	DeploymentID string     `json:"deployment_id"`
	Lease        lock.Lease `json:"lease"`
}

// Handler executes a job.
type Handler func(ctx context.Context, job Job) error

// Queue accepts jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Backend is a Queue that also owns its workers.
type Backend interface {
	Queue
	Start(h Handler) error
	Shutdown(ctx context.Context) error
}
