package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/storage"
)

func openStore(t *testing.T) *SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db)
}

func testPipeline(t *testing.T) *model.Pipeline {
	t.Helper()
	var p model.Pipeline
	doc := `{
		"id": "` + uuid.NewString() + `",
		"name": "scan",
		"trigger": {"IPAddressTrigger": {
			"id": "` + uuid.NewString() + `",
			"gridPosition": {"x": 0, "y": 0},
			"ip_addresses": ["10.0.0.1"]
		}},
		"edges": []
	}`
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return &p
}

func TestPipelineRoundtrip(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	p := testPipeline(t)
	if err := s.SavePipeline(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != p.Name || got.Trigger == nil || got.Trigger.ID != p.Trigger.ID {
		t.Fatalf("roundtrip mismatch: got %+v", got)
	}

	list, err := s.ListPipelines(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(list))
	}

	if err := s.DeletePipeline(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPipeline(ctx, p.ID); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestPipelineUpsertUpdates(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	p := testPipeline(t)
	if err := s.SavePipeline(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.Name = "scan v2"
	if err := s.SavePipeline(ctx, p); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err := s.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "scan v2" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
}

func TestNotFoundError(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	_, err := s.GetPipeline(context.Background(), uuid.New())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Kind != "pipeline" {
		t.Fatalf("expected pipeline kind, got %q", nf.Kind)
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	p := testPipeline(t)
	run := model.NewRun(p, "blake3:abc")
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	active, err := s.ActiveRun(ctx, p.ID)
	if err != nil {
		t.Fatalf("active run: %v", err)
	}
	if active.ID != run.ID {
		t.Fatalf("expected active run %s, got %s", run.ID, active.ID)
	}

	nodeID := p.Trigger.ID.String()
	updated, err := s.UpdateRun(ctx, run.ID, func(r *model.Run) error {
		r.NodeStates[nodeID].Status = model.StatusCompleted
		r.Status = model.StatusCompleted
		now := time.Now().UTC()
		r.EndTime = &now
		return nil
	})
	if err != nil {
		t.Fatalf("update run: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Fatalf("expected Completed, got %s", updated.Status)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != model.StatusCompleted || got.EndTime == nil {
		t.Fatalf("persisted run not terminal: %+v", got)
	}
	if got.NodeStates[nodeID].Status != model.StatusCompleted {
		t.Fatalf("node state not persisted")
	}

	if _, err := s.ActiveRun(ctx, p.ID); err == nil {
		t.Fatal("expected no active run after completion")
	}

	runs, err := s.ListRuns(ctx, p.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
}

func TestUpdateRunMutateErrorRollsBack(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	p := testPipeline(t)
	run := model.NewRun(p, "")
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	wantErr := errors.New("boom")
	_, err := s.UpdateRun(ctx, run.ID, func(r *model.Run) error {
		r.Status = model.StatusError
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != model.StatusRunning {
		t.Fatalf("expected run unchanged, got %s", got.Status)
	}
}

func TestResults(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	runID, nodeID := uuid.New(), uuid.New()
	if err := s.SaveResult(ctx, runID, nodeID, json.RawMessage(`{"ports":[80,443]}`)); err != nil {
		t.Fatalf("save result: %v", err)
	}
	if err := s.SaveResult(ctx, runID, nodeID, nil); err != nil {
		t.Fatalf("save empty result: %v", err)
	}
	if err := s.SaveResult(ctx, runID, nodeID, json.RawMessage(`{broken`)); err == nil {
		t.Fatal("expected invalid JSON to be rejected")
	}

	got, err := s.ListResults(ctx, runID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].NodeID != nodeID {
		t.Fatalf("node id mismatch")
	}
}
