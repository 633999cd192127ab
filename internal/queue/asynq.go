package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskExecuteDeployment is the asynq task type for deployment jobs.
const TaskExecuteDeployment = "deployment:execute"

// Asynq distributes jobs through Redis so any catalyst process can build them.
type Asynq struct {
	client  *asynq.Client
	server  *asynq.Server
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsynq connects a producer and a worker server to Redis.
func NewAsynq(opt asynq.RedisClientOpt, workers int, timeout time.Duration, logger *slog.Logger) *Asynq {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "queue")
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: workers,
		Logger:      slogAdapter{logger: logger},
		Queues:      map[string]int{"deployments": 1},
	})
	return &Asynq{client: asynq.NewClient(opt), server: server, timeout: timeout, logger: logger}
}

func (q *Asynq) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue("deployments"),
		asynq.TaskID(job.DeploymentID),
		asynq.MaxRetry(0),
	}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskExecuteDeployment, payload), opts...)
	if err != nil {
		return fmt.Errorf("enqueue deployment: %w", err)
	}
	q.logger.Debug("job enqueued", "deployment_id", job.DeploymentID, "task_id", info.ID)
	return nil
}

func (q *Asynq) Start(h Handler) error {
	if h == nil {
		return errors.New("queue handler required")
	}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExecuteDeployment, func(ctx context.Context, t *asynq.Task) error {
		var job Job
		if err := json.Unmarshal(t.Payload(), &job); err != nil {
			return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
		}
		return h(ctx, job)
	})
	return q.server.Start(mux)
}

func (q *Asynq) Shutdown(context.Context) error {
	q.server.Shutdown()
	return q.client.Close()
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
