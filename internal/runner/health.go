package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/dispatch"
	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/store"
)

// CompletionHandler receives the synthetic Error completions the sweep
// produces for dead containers.
type CompletionHandler interface {
	HandleNodeCompletion(ctx context.Context, res *model.WorkerResult) error
}

// HealthSweeper periodically checks that every Running node of every active
// run still has a live container. A node whose containers all died without
// a callback is reported as Error so its run can settle.
type HealthSweeper struct {
	runs     store.RunStore
	runtime  ContainerRuntime
	handler  CompletionHandler
	interval time.Duration
	// grace shields freshly started nodes whose container is still queued.
	grace  time.Duration
	logger *slog.Logger
}

func NewHealthSweeper(runs store.RunStore, rt ContainerRuntime, h CompletionHandler, interval time.Duration) *HealthSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthSweeper{
		runs:     runs,
		runtime:  rt,
		handler:  h,
		interval: interval,
		grace:    2 * time.Minute,
		logger:   log.WithComponent("health"),
	}
}

// Start blocks sweeping until ctx is cancelled.
func (s *HealthSweeper) Start(ctx context.Context) error {
	s.logger.Info("health sweep started", "interval", s.interval)
	defer s.logger.Info("health sweep stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep checks every active run once.
func (s *HealthSweeper) Sweep(ctx context.Context) {
	runs, err := s.runs.ActiveRuns(ctx)
	if err != nil {
		s.logger.Error("failed to list active runs", "error", err)
		return
	}
	for _, run := range runs {
		s.sweepRun(ctx, run)
	}
}

func (s *HealthSweeper) sweepRun(ctx context.Context, run *model.Run) {
	now := time.Now().UTC()
	for nodeKey, st := range run.NodeStates {
		if st.Status != model.StatusRunning {
			continue
		}
		if st.StartTime == nil || now.Sub(*st.StartTime) < s.grace {
			continue
		}
		nodeID, err := uuid.Parse(nodeKey)
		if err != nil {
			continue
		}

		infos, err := s.runtime.List(ctx, dispatch.NodePrefix(nodeID))
		if err != nil {
			s.logger.Error("container listing failed", "run_id", run.ID, "node_id", nodeID, "error", err)
			continue
		}
		if alive(infos) {
			continue
		}

		s.logger.Warn("node containers dead without callback", "run_id", run.ID, "node_id", nodeID)
		res := &model.WorkerResult{
			RunID:      run.ID,
			PipelineID: run.PipelineID,
			NodeID:     nodeID,
			Status:     model.StatusError,
			Error:      "container exited without reporting a result",
		}
		if err := s.handler.HandleNodeCompletion(ctx, res); err != nil {
			s.logger.Error("failed to record dead node", "run_id", run.ID, "node_id", nodeID, "error", err)
		}
	}
}

func alive(infos []ContainerInfo) bool {
	for _, info := range infos {
		if info.State == StateRunning {
			return true
		}
	}
	return false
}
