// Package orchestrator advances pipeline runs. It starts runs, consumes
// worker completion callbacks, fans out to downstream nodes, and detects
// termination.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/events"
	"github.com/portwhine/portwhine/internal/graph"
	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/store"
)

// NodeDispatcher is the slice of the dispatcher the orchestrator drives.
type NodeDispatcher interface {
	StartTrigger(ctx context.Context, run *model.Run, t *model.Trigger) error
	StartWorker(ctx context.Context, run *model.Run, w *model.Worker, payload *model.JobPayload) error
	StopNode(ctx context.Context, p *model.Pipeline, nodeID uuid.UUID) error
	CleanupNode(ctx context.Context, p *model.Pipeline, nodeID uuid.UUID) error
}

// Orchestrator owns run state transitions. All mutations of a run document
// go through the store's UpdateRun so concurrent callbacks serialize.
type Orchestrator struct {
	pipelines  store.PipelineStore
	runs       store.RunStore
	results    store.ResultStore
	dispatcher NodeDispatcher
	registry   *catalog.Registry
	hub        *events.Hub
	logger     *slog.Logger
}

func New(ps store.PipelineStore, rs store.RunStore, res store.ResultStore, d NodeDispatcher, reg *catalog.Registry, hub *events.Hub) *Orchestrator {
	return &Orchestrator{
		pipelines:  ps,
		runs:       rs,
		results:    res,
		dispatcher: d,
		registry:   reg,
		hub:        hub,
		logger:     log.WithComponent("orchestrator"),
	}
}

// StartRun validates the pipeline, creates a run with every node Pending,
// and dispatches the trigger. A pipeline with an active run cannot be
// started again.
func (o *Orchestrator) StartRun(ctx context.Context, pipelineID uuid.UUID) (*model.Run, error) {
	p, err := o.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(p, o.registry); err != nil {
		return nil, fmt.Errorf("pipeline %s is not runnable: %w", pipelineID, err)
	}
	if p.Trigger == nil {
		return nil, fmt.Errorf("pipeline %s has no trigger", pipelineID)
	}
	existing, err := o.runs.ActiveRun(ctx, pipelineID)
	if err == nil {
		return nil, fmt.Errorf("pipeline %s already has active run %s", pipelineID, existing.ID)
	}
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		return nil, fmt.Errorf("check active run: %w", err)
	}

	fp, err := p.Fingerprint()
	if err != nil {
		return nil, err
	}
	run := model.NewRun(p, fp)

	triggerKey := p.Trigger.ID.String()
	now := time.Now().UTC()
	st := run.NodeStates[triggerKey]
	st.Status = model.StatusRunning
	st.StartTime = &now

	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := o.dispatcher.StartTrigger(ctx, run, p.Trigger); err != nil {
		// The run exists but its trigger never started. Record the
		// failure on the node; no callback will ever arrive for it.
		o.failNode(ctx, run.ID, triggerKey, fmt.Sprintf("trigger dispatch failed: %v", err))
		return nil, err
	}

	o.hub.Publish(events.TypeRunStarted, run.ID.String(), map[string]string{
		"pipeline_id": pipelineID.String(),
	})
	o.logger.Info("run started", "run_id", run.ID, "pipeline_id", pipelineID)
	return run, nil
}

// StopRun signals every container of the run's pipeline to stop. Run state
// is not touched: nodes whose container dies without reporting are settled
// by the health sweep through the normal completion path.
func (o *Orchestrator) StopRun(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, fmt.Errorf("run %s already finished", runID)
	}
	p, err := o.pipelines.GetPipeline(ctx, run.PipelineID)
	if err != nil {
		return nil, err
	}

	if p.Trigger != nil {
		if err := o.dispatcher.StopNode(ctx, p, p.Trigger.ID); err != nil {
			o.logger.Error("trigger stop failed", "node_id", p.Trigger.ID, "error", err)
		}
	}
	for i := range p.Workers {
		if err := o.dispatcher.StopNode(ctx, p, p.Workers[i].ID); err != nil {
			o.logger.Error("worker stop failed", "node_id", p.Workers[i].ID, "error", err)
		}
	}

	o.logger.Info("run stop requested", "run_id", runID)
	return run, nil
}

// HandleNodeCompletion applies one worker callback to its run. Callbacks for
// unknown runs or nodes, and repeated callbacks for nodes already terminal,
// are logged and dropped without error.
func (o *Orchestrator) HandleNodeCompletion(ctx context.Context, res *model.WorkerResult) error {
	logger := o.logger.With("run_id", res.RunID, "node_id", res.NodeID)

	if res.Status != model.StatusCompleted && res.Status != model.StatusError {
		return fmt.Errorf("completion status must be terminal, got %q", res.Status)
	}

	nodeKey := res.NodeID.String()
	dropped := false
	run, err := o.runs.UpdateRun(ctx, res.RunID, func(r *model.Run) error {
		st, ok := r.NodeStates[nodeKey]
		if !ok {
			logger.Warn("completion for unknown node dropped")
			dropped = true
			return nil
		}
		if st.Status.Terminal() {
			logger.Warn("duplicate completion dropped", "status", st.Status)
			dropped = true
			return nil
		}
		now := time.Now().UTC()
		st.Status = res.Status
		st.EndTime = &now
		st.Error = res.Error
		if st.StartTime == nil {
			st.StartTime = &now
		}
		return nil
	})
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			logger.Warn("completion for unknown run dropped")
			return nil
		}
		return err
	}
	if dropped {
		return nil
	}

	if len(res.RawData) > 0 {
		if err := o.results.SaveResult(ctx, res.RunID, res.NodeID, res.RawData); err != nil {
			logger.Error("failed to persist worker result", "error", err)
		}
	}

	o.hub.Publish(events.TypeNodeFinished, res.RunID.String(), map[string]string{
		"node_id": nodeKey,
		"status":  string(res.Status),
	})
	logger.Info("node finished", "status", res.Status)

	p, err := o.pipelines.GetPipeline(ctx, run.PipelineID)
	if err != nil {
		// The pipeline vanished under the run. Nothing downstream can
		// start, so let termination detection settle the run.
		logger.Error("pipeline missing for running run", "error", err)
		return o.checkTermination(ctx, res.RunID, nil)
	}

	if res.Status == model.StatusCompleted {
		if err := o.fanOut(ctx, run, p, res); err != nil {
			return err
		}
	}
	return o.checkTermination(ctx, res.RunID, p)
}

// fanOut starts every downstream node of the completed one. Any predecessor
// completing activates a target; each activation starts a fresh instance.
func (o *Orchestrator) fanOut(ctx context.Context, run *model.Run, p *model.Pipeline, res *model.WorkerResult) error {
	for _, targetID := range p.Downstream(res.NodeID) {
		w := p.WorkerByID(targetID)
		if w == nil {
			o.logger.Warn("edge target is not a worker", "run_id", run.ID, "node_id", targetID)
			continue
		}
		if err := o.startWorker(ctx, run.ID, p, w, res.OutputPayload); err != nil {
			o.logger.Error("failed to start downstream worker",
				"run_id", run.ID, "node_id", targetID, "error", err)
		}
	}
	return nil
}

// startWorker marks the node Running and dispatches one instance. A dispatch
// failure marks the node Error instead of surfacing.
func (o *Orchestrator) startWorker(ctx context.Context, runID uuid.UUID, p *model.Pipeline, w *model.Worker, payload *model.JobPayload) error {
	nodeKey := w.ID.String()
	run, err := o.runs.UpdateRun(ctx, runID, func(r *model.Run) error {
		st, ok := r.NodeStates[nodeKey]
		if !ok {
			return fmt.Errorf("node %s not in run", nodeKey)
		}
		if st.Status.Terminal() {
			return fmt.Errorf("node %s already finished", nodeKey)
		}
		if st.Status == model.StatusPending {
			now := time.Now().UTC()
			st.Status = model.StatusRunning
			st.StartTime = &now
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := o.dispatcher.StartWorker(ctx, run, w, payload); err != nil {
		o.failNode(ctx, runID, nodeKey, fmt.Sprintf("dispatch failed: %v", err))
		return err
	}

	o.hub.Publish(events.TypeNodeStarted, runID.String(), map[string]string{"node_id": nodeKey})
	return nil
}

// checkTermination finishes the run once no node is Pending or Running. The
// run then becomes Completed exactly once; node errors stay visible in the
// node states without changing the run's terminal status.
func (o *Orchestrator) checkTermination(ctx context.Context, runID uuid.UUID, p *model.Pipeline) error {
	finished := false
	_, err := o.runs.UpdateRun(ctx, runID, func(r *model.Run) error {
		if r.Status.Terminal() || r.Active() {
			return nil
		}
		now := time.Now().UTC()
		r.Status = model.StatusCompleted
		r.EndTime = &now
		finished = true
		return nil
	})
	if err != nil {
		return err
	}
	if !finished {
		return nil
	}

	if p != nil {
		o.cleanupRun(ctx, p)
	}
	o.hub.Publish(events.TypeRunFinished, runID.String(), map[string]string{"status": string(model.StatusCompleted)})
	o.logger.Info("run finished", "run_id", runID)
	return nil
}

// failNode marks one node Error. Used when dispatch breaks before a
// container ever starts, so no callback will arrive. The run keeps
// evaluating its other branches and terminates through the normal check.
func (o *Orchestrator) failNode(ctx context.Context, runID uuid.UUID, nodeKey, msg string) {
	_, err := o.runs.UpdateRun(ctx, runID, func(r *model.Run) error {
		now := time.Now().UTC()
		if st, ok := r.NodeStates[nodeKey]; ok && !st.Status.Terminal() {
			st.Status = model.StatusError
			st.EndTime = &now
			st.Error = msg
		}
		return nil
	})
	if err != nil {
		o.logger.Error("failed to record dispatch failure", "run_id", runID, "error", err)
	}
}

// cleanupRun enqueues container cleanup for every node of the pipeline.
func (o *Orchestrator) cleanupRun(ctx context.Context, p *model.Pipeline) {
	if p.Trigger != nil {
		if err := o.dispatcher.CleanupNode(ctx, p, p.Trigger.ID); err != nil {
			o.logger.Error("trigger cleanup failed", "node_id", p.Trigger.ID, "error", err)
		}
	}
	for i := range p.Workers {
		if err := o.dispatcher.CleanupNode(ctx, p, p.Workers[i].ID); err != nil {
			o.logger.Error("worker cleanup failed", "node_id", p.Workers[i].ID, "error", err)
		}
	}
}
