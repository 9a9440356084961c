package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/queue"
)

// TaskSource is the slice of the queue the runner consumes.
type TaskSource interface {
	Dequeue(ctx context.Context) (*queue.Task, error)
	Delete(ctx context.Context, id string) error
}

// Runner drains the container task queue. Tasks execute one at a time in
// queue order; a failing task is logged and dropped so the queue never
// wedges on a broken image.
type Runner struct {
	tasks    TaskSource
	runtime  ContainerRuntime
	interval time.Duration
	logger   *slog.Logger
}

func New(tasks TaskSource, rt ContainerRuntime, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		tasks:    tasks,
		runtime:  rt,
		interval: interval,
		logger:   log.WithComponent("runner"),
	}
}

// Start blocks draining the queue until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("runner loop started")
	defer r.logger.Info("runner loop stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain executes queued tasks until the queue is empty.
func (r *Runner) drain(ctx context.Context) {
	for {
		task, err := r.tasks.Dequeue(ctx)
		if err != nil {
			r.logger.Error("dequeue failed", "error", err)
			return
		}
		if task == nil {
			return
		}
		r.execute(ctx, task)
		if err := r.tasks.Delete(ctx, task.ID); err != nil {
			r.logger.Error("failed to delete finished task", "task_id", task.ID, "error", err)
		}
	}
}

func (r *Runner) execute(ctx context.Context, task *queue.Task) {
	logger := r.logger.With("task_id", task.ID, "action", task.Action, "container", task.ContainerName)

	var err error
	switch task.Action {
	case queue.ActionStart:
		err = r.runtime.Start(ctx, task.ContainerName, task.Image, task.Environment)
	case queue.ActionStop:
		err = r.stop(ctx, task.ContainerName)
	case queue.ActionCleanup:
		err = r.cleanup(ctx, task.ContainerName)
	default:
		logger.Error("unknown task action dropped")
		return
	}
	if err != nil {
		logger.Error("task failed", "error", err)
		return
	}
	logger.Info("task executed")
}

// stop stops every running container whose name starts with the task's
// prefix. Stopped containers stay listed until a cleanup removes them.
func (r *Runner) stop(ctx context.Context, prefix string) error {
	infos, err := r.runtime.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.State != StateRunning {
			continue
		}
		if err := r.runtime.Stop(ctx, info.Name); err != nil {
			r.logger.Error("failed to stop container", "container", info.Name, "error", err)
		}
	}
	return nil
}

// cleanup removes every container whose name starts with the task's prefix.
func (r *Runner) cleanup(ctx context.Context, prefix string) error {
	infos, err := r.runtime.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := r.runtime.Remove(ctx, info.Name); err != nil {
			r.logger.Error("failed to remove container", "container", info.Name, "error", err)
		}
	}
	return nil
}
