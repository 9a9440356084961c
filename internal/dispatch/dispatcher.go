// Package dispatch turns node activations into container tasks. It owns
// instance naming and the environment contract containers are started with.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/queue"
)

// Environment variable names containers receive.
const (
	EnvPipelineID   = "PIPELINE_ID"
	EnvRunID        = "RUN_ID"
	EnvWorkerID     = "WORKER_ID"
	EnvInstanceName = "INSTANCE_NAME"
	EnvJobPayload   = "JOB_PAYLOAD"
	EnvWorkerConfig = "WORKER_CONFIG"
)

// TaskQueue is the slice of the queue the dispatcher needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// InstanceCounters hands out instance numbers for worker containers.
type InstanceCounters interface {
	Next(ctx context.Context, nodeID uuid.UUID) (int, error)
	Reset(ctx context.Context, nodeID uuid.UUID) error
}

// Dispatcher enqueues container start/stop/cleanup tasks for pipeline nodes.
type Dispatcher struct {
	queue    TaskQueue
	counters InstanceCounters
	registry *catalog.Registry
	logger   *slog.Logger
}

func New(q TaskQueue, c InstanceCounters, reg *catalog.Registry) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		counters: c,
		registry: reg,
		logger:   log.WithComponent("dispatch"),
	}
}

// NodePrefix is the shared container name prefix of every instance a node
// starts. Cleanup matches containers by this prefix.
func NodePrefix(nodeID uuid.UUID) string {
	return fmt.Sprintf("%s_instance", nodeID)
}

// TriggerInstanceName is the container name of a trigger node. Triggers run a
// single long-lived instance per node, so the name carries no number.
func TriggerInstanceName(nodeID uuid.UUID) string {
	return NodePrefix(nodeID)
}

// WorkerInstanceName is the container name of the n-th instance of a worker
// node.
func WorkerInstanceName(nodeID uuid.UUID, n int) string {
	return fmt.Sprintf("%s_instance_%d", nodeID, n)
}

// StartTrigger enqueues the start task for a pipeline's trigger container.
func (d *Dispatcher) StartTrigger(ctx context.Context, run *model.Run, t *model.Trigger) error {
	def, ok := d.registry.Get(t.Config.Type())
	if !ok {
		return fmt.Errorf("unknown trigger type %q", t.Config.Type())
	}

	cfg, err := marshalConfig(t.Config)
	if err != nil {
		return err
	}

	name := TriggerInstanceName(t.ID)
	_, err = d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Action:        queue.ActionStart,
		ContainerName: name,
		Image:         def.Image,
		Environment: map[string]string{
			EnvPipelineID:   run.PipelineID.String(),
			EnvRunID:        run.ID.String(),
			EnvWorkerID:     t.ID.String(),
			EnvInstanceName: name,
			EnvWorkerConfig: cfg,
		},
		PipelineID: run.PipelineID,
		RunID:      run.ID,
	})
	if err != nil {
		return fmt.Errorf("dispatch trigger %s: %w", t.ID, err)
	}
	d.logger.Info("trigger dispatched",
		"run_id", run.ID, "node_id", t.ID, "instance", name, "image", def.Image)
	return nil
}

// StartWorker enqueues a start task for one new instance of a worker node,
// carrying the payload produced by its upstream node.
func (d *Dispatcher) StartWorker(ctx context.Context, run *model.Run, w *model.Worker, payload *model.JobPayload) error {
	def, ok := d.registry.Get(w.Config.Type())
	if !ok {
		return fmt.Errorf("unknown worker type %q", w.Config.Type())
	}

	cfg, err := marshalConfig(w.Config)
	if err != nil {
		return err
	}

	env := map[string]string{
		EnvPipelineID:   run.PipelineID.String(),
		EnvRunID:        run.ID.String(),
		EnvWorkerID:     w.ID.String(),
		EnvWorkerConfig: cfg,
	}
	if payload != nil && !payload.Empty() {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal job payload: %w", err)
		}
		env[EnvJobPayload] = string(b)
	}

	n, err := d.counters.Next(ctx, w.ID)
	if err != nil {
		return fmt.Errorf("instance number for worker %s: %w", w.ID, err)
	}
	name := WorkerInstanceName(w.ID, n)
	env[EnvInstanceName] = name

	_, err = d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Action:        queue.ActionStart,
		ContainerName: name,
		Image:         def.Image,
		Environment:   env,
		PipelineID:    run.PipelineID,
		RunID:         run.ID,
	})
	if err != nil {
		return fmt.Errorf("dispatch worker %s: %w", w.ID, err)
	}
	d.logger.Info("worker dispatched",
		"run_id", run.ID, "node_id", w.ID, "instance", name, "image", def.Image)
	return nil
}

// StopInstance enqueues a stop task for a named container.
func (d *Dispatcher) StopInstance(ctx context.Context, name string) error {
	_, err := d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Action:        queue.ActionStop,
		ContainerName: name,
	})
	if err != nil {
		return fmt.Errorf("dispatch stop for %s: %w", name, err)
	}
	return nil
}

// CleanupInstance enqueues removal of a finished container.
func (d *Dispatcher) CleanupInstance(ctx context.Context, name string) error {
	_, err := d.queue.Enqueue(ctx, queue.EnqueueRequest{
		Action:        queue.ActionCleanup,
		ContainerName: name,
	})
	if err != nil {
		return fmt.Errorf("dispatch cleanup for %s: %w", name, err)
	}
	return nil
}

// StopNode enqueues a stop task covering every container the node has
// started. The task names the node's prefix and the runner stops all
// matches. Containers are left in place for inspection; CleanupNode removes
// them.
func (d *Dispatcher) StopNode(ctx context.Context, p *model.Pipeline, nodeID uuid.UUID) error {
	return d.StopInstance(ctx, NodePrefix(nodeID))
}

// CleanupNode enqueues removal of every container the node has started. The
// task names the node's prefix and the runner removes all matches. Worker
// counters restart at 1 afterwards.
func (d *Dispatcher) CleanupNode(ctx context.Context, p *model.Pipeline, nodeID uuid.UUID) error {
	if err := d.CleanupInstance(ctx, NodePrefix(nodeID)); err != nil {
		return err
	}
	if p.WorkerByID(nodeID) != nil {
		if err := d.counters.Reset(ctx, nodeID); err != nil {
			return fmt.Errorf("reset counter for node %s: %w", nodeID, err)
		}
	}
	return nil
}

// marshalConfig serializes a node config in its wrapped wire form, the same
// shape workers see in pipeline documents.
func marshalConfig(cfg model.NodeConfig) (string, error) {
	wrapped := map[string]model.NodeConfig{cfg.Type(): cfg}
	b, err := json.Marshal(wrapped)
	if err != nil {
		return "", fmt.Errorf("marshal node config: %w", err)
	}
	return string(b), nil
}
