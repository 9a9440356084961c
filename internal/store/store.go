// Package store persists pipelines, runs, and worker results as JSON
// documents in SQLite.
package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/model"
)

// NotFoundError is returned when a lookup misses.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.ID.String()
}

// PipelineStore persists pipeline definitions.
type PipelineStore interface {
	SavePipeline(ctx context.Context, p *model.Pipeline) error
	GetPipeline(ctx context.Context, id uuid.UUID) (*model.Pipeline, error)
	ListPipelines(ctx context.Context) ([]*model.Pipeline, error)
	DeletePipeline(ctx context.Context, id uuid.UUID) error
}

// RunStore persists pipeline runs. UpdateRun is the single read-modify-write
// boundary for run state; all concurrent mutations of a run document go
// through it.
type RunStore interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*model.Run, error)
	ListRuns(ctx context.Context, pipelineID uuid.UUID) ([]*model.Run, error)
	ActiveRun(ctx context.Context, pipelineID uuid.UUID) (*model.Run, error)
	ActiveRuns(ctx context.Context) ([]*model.Run, error)
	UpdateRun(ctx context.Context, id uuid.UUID, mutate func(*model.Run) error) (*model.Run, error)
}

// ResultStore keeps raw worker output attached to a run.
type ResultStore interface {
	SaveResult(ctx context.Context, runID, nodeID uuid.UUID, data json.RawMessage) error
	ListResults(ctx context.Context, runID uuid.UUID) ([]StoredResult, error)
}

// StoredResult is one recorded worker output row.
type StoredResult struct {
	ID         uuid.UUID       `json:"id"`
	RunID      uuid.UUID       `json:"run_id"`
	NodeID     uuid.UUID       `json:"node_id"`
	RecordedAt string          `json:"recorded_at"`
	Data       json.RawMessage `json:"data"`
}
