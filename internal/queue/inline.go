package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue closed")

// Inline runs jobs on goroutines of the current process, bounded by a worker semaphore.
type Inline struct {
	mu      sync.Mutex
	handler Handler
	closed  bool
	wg      sync.WaitGroup
	slots   chan struct{}
	timeout time.Duration
	logger  *slog.Logger
}

// NewInline returns an Inline queue with at most workers concurrent jobs, each bounded by timeout.
func NewInline(workers int, timeout time.Duration, logger *slog.Logger) *Inline {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{slots: make(chan struct{}, workers), timeout: timeout, logger: logger.With("component", "queue")}
}

func (q *Inline) Start(h Handler) error {
	if h == nil {
		return errors.New("queue handler required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
	return nil
}

func (q *Inline) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.handler == nil {
		return errors.New("queue not started")
	}
	handler := q.handler
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.slots <- struct{}{}
		defer func() { <-q.slots }()

		ctx := context.Background()
		if q.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, q.timeout)
			defer cancel()
		}
		if err := handler(ctx, job); err != nil {
			q.logger.Error("job failed", "deployment_id", job.DeploymentID, "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running ones until ctx expires.
func (q *Inline) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
