// Package queue is the SQLite-backed container task queue. The orchestrator
// enqueues start/stop/cleanup tasks and the runner claims them in order.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	switch req.Action {
	case ActionStart, ActionStop, ActionCleanup:
	default:
		return "", fmt.Errorf("invalid action %q", req.Action)
	}
	if req.ContainerName == "" {
		return "", fmt.Errorf("container_name is empty")
	}
	if req.Action == ActionStart && req.Image == "" {
		return "", fmt.Errorf("image_name is empty for start task")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var env any
	if len(req.Environment) > 0 {
		b, err := json.Marshal(req.Environment)
		if err != nil {
			return "", fmt.Errorf("marshal environment: %w", err)
		}
		env = string(b)
	}

	var pipelineID, runID any
	if req.PipelineID != uuid.Nil {
		pipelineID = req.PipelineID.String()
	}
	if req.RunID != uuid.Nil {
		runID = req.RunID.String()
	}

	_, err := q.db.ExecContext(ctx, `
INSERT INTO container_tasks(
  id, action, container_name, image_name, environment, pipeline_id, run_id, status, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, string(req.Action), req.ContainerName, req.Image, env, pipelineID, runID, string(StatusQueued), now)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest queued task and marks it taken. Returns (nil, nil)
// if the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	nowS := time.Now().UTC().Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM container_tasks
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE container_tasks
SET status = ?, taken_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, action, container_name, image_name, environment, pipeline_id, run_id, status, created_at, taken_at;
`, string(StatusQueued), string(StatusTaken), nowS)

	var (
		t          Task
		image      sql.NullString
		env        sql.NullString
		pipelineID sql.NullString
		runID      sql.NullString
		actionS    string
		statusS    string
		createdAtS string
		takenAtS   sql.NullString
	)
	err := row.Scan(&t.ID, &actionS, &t.ContainerName, &image, &env, &pipelineID, &runID, &statusS, &createdAtS, &takenAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	t.Action = Action(actionS)
	t.Status = Status(statusS)
	if image.Valid {
		t.Image = image.String
	}
	if env.Valid && env.String != "" {
		if err := json.Unmarshal([]byte(env.String), &t.Environment); err != nil {
			return nil, fmt.Errorf("decode task environment: %w", err)
		}
	}
	if pipelineID.Valid {
		if t.PipelineID, err = uuid.Parse(pipelineID.String); err != nil {
			return nil, fmt.Errorf("parse pipeline id: %w", err)
		}
	}
	if runID.Valid {
		if t.RunID, err = uuid.Parse(runID.String); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		t.CreatedAt = ts
	}
	if takenAtS.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, takenAtS.String); err == nil {
			t.TakenAt = &ts
		}
	}
	return &t, nil
}

// Delete removes a finished task row.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("task id is empty")
	}
	_, err := q.db.ExecContext(ctx, "DELETE FROM container_tasks WHERE id = ?;", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Pending counts queued tasks, used by health reporting.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM container_tasks WHERE status = ?;", string(StatusQueued)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued tasks: %w", err)
	}
	return n, nil
}
