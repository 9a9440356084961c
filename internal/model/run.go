package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NodeRunState is the status record of one node within one run. Exactly one
// exists per node per run; it is never shared across runs.
type NodeRunState struct {
	Status    NodeStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Run is one execution attempt of a pipeline. It is created when a pipeline
// is started, mutated only by the orchestrator, and immutable once Status is
// terminal.
type Run struct {
	ID         uuid.UUID `json:"id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
	// Fingerprint is the hash of the pipeline definition this run was
	// started from.
	Fingerprint string                   `json:"pipeline_fingerprint,omitempty"`
	StartTime   time.Time                `json:"start_time"`
	EndTime     *time.Time               `json:"end_time,omitempty"`
	Status      NodeStatus               `json:"status"`
	NodeStates  map[string]*NodeRunState `json:"node_states"`
}

// NewRun creates a run for the pipeline with every node state initialized to
// Pending.
func NewRun(p *Pipeline, fingerprint string) *Run {
	r := &Run{
		ID:          uuid.New(),
		PipelineID:  p.ID,
		Fingerprint: fingerprint,
		StartTime:   time.Now().UTC(),
		Status:      StatusRunning,
		NodeStates:  make(map[string]*NodeRunState),
	}
	if p.Trigger != nil {
		r.NodeStates[p.Trigger.ID.String()] = &NodeRunState{Status: StatusPending}
	}
	for _, w := range p.Workers {
		r.NodeStates[w.ID.String()] = &NodeRunState{Status: StatusPending}
	}
	return r
}

// Active reports whether any node is still Pending or Running.
func (r *Run) Active() bool {
	for _, st := range r.NodeStates {
		if st.Status == StatusPending || st.Status == StatusRunning {
			return true
		}
	}
	return false
}

// WorkerResult is the completion event an execution unit posts back to the
// engine. It is the sole input that advances a run.
type WorkerResult struct {
	RunID         uuid.UUID       `json:"run_id"`
	PipelineID    uuid.UUID       `json:"pipeline_id"`
	NodeID        uuid.UUID       `json:"node_id"`
	Status        NodeStatus      `json:"status"`
	OutputPayload *JobPayload     `json:"output_payload,omitempty"`
	RawData       json.RawMessage `json:"raw_data,omitempty"`
	Error         string          `json:"error,omitempty"`
}
