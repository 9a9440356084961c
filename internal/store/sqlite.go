package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/model"
)

// SQLite implements PipelineStore, RunStore, and ResultStore on a shared
// database handle.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) SavePipeline(ctx context.Context, p *model.Pipeline) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}
	fp, err := p.Fingerprint()
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO pipelines(id, name, fingerprint, doc, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name = excluded.name,
  fingerprint = excluded.fingerprint,
  doc = excluded.doc,
  updated_at = excluded.updated_at;
`, p.ID.String(), p.Name, fp, string(doc), now, now)
	if err != nil {
		return fmt.Errorf("upsert pipeline: %w", err)
	}
	return nil
}

func (s *SQLite) GetPipeline(ctx context.Context, id uuid.UUID) (*model.Pipeline, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM pipelines WHERE id = ?;", id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "pipeline", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	var p model.Pipeline
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode stored pipeline %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLite) ListPipelines(ctx context.Context) ([]*model.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM pipelines ORDER BY name, id;")
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*model.Pipeline
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		var p model.Pipeline
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode stored pipeline: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLite) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pipelines WHERE id = ?;", id.String())
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{Kind: "pipeline", ID: id}
	}
	return nil
}

func (s *SQLite) CreateRun(ctx context.Context, r *model.Run) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs(id, pipeline_id, status, doc, start_time, end_time)
VALUES(?, ?, ?, ?, ?, NULL);
`, r.ID.String(), r.PipelineID.String(), string(r.Status), string(doc),
		r.StartTime.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLite) GetRun(ctx context.Context, id uuid.UUID) (*model.Run, error) {
	return s.getRun(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) getRun(ctx context.Context, q querier, id uuid.UUID) (*model.Run, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT doc FROM runs WHERE id = ?;", id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	var r model.Run
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode stored run %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLite) ListRuns(ctx context.Context, pipelineID uuid.UUID) ([]*model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc FROM runs WHERE pipeline_id = ? ORDER BY start_time DESC;", pipelineID.String())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var r model.Run
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode stored run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ActiveRun returns the newest run of the pipeline whose status is not
// terminal, or a NotFoundError when every run has finished.
func (s *SQLite) ActiveRun(ctx context.Context, pipelineID uuid.UUID) (*model.Run, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
SELECT doc FROM runs
WHERE pipeline_id = ? AND status IN (?, ?)
ORDER BY start_time DESC LIMIT 1;
`, pipelineID.String(), string(model.StatusPending), string(model.StatusRunning)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "run", ID: pipelineID}
	}
	if err != nil {
		return nil, fmt.Errorf("read active run: %w", err)
	}
	var r model.Run
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode stored run: %w", err)
	}
	return &r, nil
}

// ActiveRuns returns every run across all pipelines that has not finished.
func (s *SQLite) ActiveRuns(ctx context.Context) ([]*model.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT doc FROM runs WHERE status IN (?, ?) ORDER BY start_time;
`, string(model.StatusPending), string(model.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var r model.Run
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode stored run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpdateRun loads the run, applies mutate, and writes the result back inside
// one transaction. Completion handling and node starts all funnel through
// here so concurrent callbacks serialize on the row.
func (s *SQLite) UpdateRun(ctx context.Context, id uuid.UUID, mutate func(*model.Run) error) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := s.getRun(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(r); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	var end any
	if r.EndTime != nil {
		end = r.EndTime.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
UPDATE runs SET status = ?, doc = ?, end_time = ? WHERE id = ?;
`, string(r.Status), string(doc), end, id.String())
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return r, nil
}

func (s *SQLite) SaveResult(ctx context.Context, runID, nodeID uuid.UUID, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return fmt.Errorf("worker result data is invalid JSON")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_results(id, run_id, node_id, recorded_at, data)
VALUES(?, ?, ?, ?, ?);
`, uuid.NewString(), runID.String(), nodeID.String(),
		time.Now().UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("insert run result: %w", err)
	}
	return nil
}

func (s *SQLite) ListResults(ctx context.Context, runID uuid.UUID) ([]StoredResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, node_id, recorded_at, data
FROM run_results WHERE run_id = ? ORDER BY recorded_at;
`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list run results: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var (
			r                    StoredResult
			idStr, runStr, ndStr string
			data                 string
		)
		if err := rows.Scan(&idStr, &runStr, &ndStr, &r.RecordedAt, &data); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		if r.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse result id: %w", err)
		}
		if r.RunID, err = uuid.Parse(runStr); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if r.NodeID, err = uuid.Parse(ndStr); err != nil {
			return nil, fmt.Errorf("parse node id: %w", err)
		}
		r.Data = json.RawMessage(data)
		out = append(out, r)
	}
	return out, rows.Err()
}
