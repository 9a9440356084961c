package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/events"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/queue"
	"github.com/portwhine/portwhine/internal/storage"
	"github.com/portwhine/portwhine/internal/store"
)

type fakeControl struct {
	started     []uuid.UUID
	stopped     []uuid.UUID
	completions []*model.WorkerResult
	startErr    error
	run         *model.Run
}

func (f *fakeControl) StartRun(_ context.Context, pipelineID uuid.UUID) (*model.Run, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, pipelineID)
	return f.run, nil
}

func (f *fakeControl) StopRun(_ context.Context, runID uuid.UUID) (*model.Run, error) {
	f.stopped = append(f.stopped, runID)
	return f.run, nil
}

func (f *fakeControl) HandleNodeCompletion(_ context.Context, res *model.WorkerResult) error {
	f.completions = append(f.completions, res)
	return nil
}

type fakeCleaner struct {
	cleaned []string
}

func (f *fakeCleaner) CleanupInstance(_ context.Context, name string) error {
	f.cleaned = append(f.cleaned, name)
	return nil
}

type apiFixture struct {
	server  *Server
	store   *store.SQLite
	queue   *queue.Queue
	control *fakeControl
	cleaner *fakeCleaner
}

func newAPIFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.NewSQLite(db)
	q := queue.New(db)
	control := &fakeControl{}
	cleaner := &fakeCleaner{}
	srv := New(cfg, s, s, s, control, cleaner, q, catalog.Builtin(), events.NewHub(16))
	return &apiFixture{server: srv, store: s, queue: q, control: control, cleaner: cleaner}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(rec, req)
	return rec
}

func validPipelineDoc(t *testing.T) map[string]any {
	t.Helper()
	triggerID, workerID := uuid.NewString(), uuid.NewString()
	var doc map[string]any
	raw := `{
		"name": "web scan",
		"trigger": {"IPAddressTrigger": {
			"id": "` + triggerID + `",
			"gridPosition": {"x": 0, "y": 0},
			"ip_addresses": ["10.1.0.0/16"]
		}},
		"worker": [{"NmapWorker": {
			"id": "` + workerID + `",
			"gridPosition": {"x": 1, "y": 0},
			"ports": "--top-ports 1000"
		}}],
		"edges": [{"source": "` + triggerID + `", "target": "` + workerID + `",
			"source_port": "ip_out", "target_port": "ip_in"}]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.QueueDepth)

	_, err := f.queue.Enqueue(context.Background(), queue.EnqueueRequest{
		Action:        queue.ActionStart,
		ContainerName: "node_instance_1",
		Image:         "nmap:1.0",
	})
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.QueueDepth)
}

func TestCreateAndGetPipeline(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/", validPipelineDoc(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.Pipeline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/pipeline/"+created.ID.String()+"/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/pipeline/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []model.Pipeline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreatePipelineRejectsInvalidGraph(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	doc := validPipelineDoc(t)
	delete(doc, "trigger")
	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/", doc)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	doc = validPipelineDoc(t)
	doc["name"] = "bad/name!"
	rec = f.do(t, http.MethodPost, "/api/v1/pipeline/", doc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissingPipeline(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/v1/pipeline/"+uuid.NewString()+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/pipeline/not-a-uuid/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRejectedWhileRunActive(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/", validPipelineDoc(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Pipeline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	run := model.NewRun(&created, "blake3:x")
	require.NoError(t, f.store.CreateRun(ctx, run))

	rec = f.do(t, http.MethodPut, "/api/v1/pipeline/"+created.ID.String()+"/", validPipelineDoc(t))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/pipeline/"+created.ID.String()+"/", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type brokenRunStore struct {
	store.RunStore
}

func (b *brokenRunStore) ActiveRun(context.Context, uuid.UUID) (*model.Run, error) {
	return nil, errors.New("disk read failed")
}

func TestMutationsFailClosedWhenRunCheckFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.NewSQLite(db)
	srv := New(Config{}, s, &brokenRunStore{RunStore: s}, s,
		&fakeControl{}, &fakeCleaner{}, queue.New(db), catalog.Builtin(), events.NewHub(16))

	raw, err := json.Marshal(validPipelineDoc(t))
	require.NoError(t, err)
	var p model.Pipeline
	require.NoError(t, json.Unmarshal(raw, &p))
	p.ID = uuid.New()
	require.NoError(t, s.SavePipeline(ctx, &p))

	do := func(method string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/pipeline/"+p.ID.String()+"/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)
		return rec
	}

	// A broken run check must reject the mutation, never read as "no
	// active run".
	assert.Equal(t, http.StatusInternalServerError, do(http.MethodPut, raw).Code)
	assert.Equal(t, http.StatusInternalServerError, do(http.MethodDelete, nil).Code)

	_, err = s.GetPipeline(ctx, p.ID)
	assert.NoError(t, err, "pipeline must survive the failed delete")
}

func TestStartAndStopPipeline(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/", validPipelineDoc(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Pipeline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	f.control.run = model.NewRun(&created, "blake3:x")
	rec = f.do(t, http.MethodPost, "/api/v1/pipeline/"+created.ID.String()+"/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []uuid.UUID{created.ID}, f.control.started)

	// Stop needs a persisted active run to resolve.
	require.NoError(t, f.store.CreateRun(ctx, f.control.run))
	rec = f.do(t, http.MethodPost, "/api/v1/pipeline/"+created.ID.String()+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{f.control.run.ID}, f.control.stopped)
}

func TestJobResultCallback(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	runID, nodeID := uuid.New(), uuid.New()
	body := map[string]any{
		"run_id":        runID.String(),
		"node_id":       nodeID.String(),
		"status":        "Completed",
		"instance_name": nodeID.String() + "_instance_1",
		"output_payload": map[string]any{
			"ip": []map[string]any{{"ip": "10.0.0.9", "port": 443}},
		},
	}
	rec := f.do(t, http.MethodPost, "/api/v1/job/result", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, f.control.completions, 1)
	got := f.control.completions[0]
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, nodeID, got.NodeID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.OutputPayload)
	assert.Equal(t, "10.0.0.9", got.OutputPayload.IP[0].IP)

	assert.Equal(t, []string{nodeID.String() + "_instance_1"}, f.cleaner.cleaned)
}

func TestJobResultRequiresIDs(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/v1/job/result", map[string]any{"status": "Completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.control.completions)
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{APIKey: "secret"})

	rec := f.do(t, http.MethodGet, "/api/v1/pipeline/", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/pipeline/", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Liveness and the worker callback stay open.
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/job/result", map[string]any{
		"run_id":  uuid.NewString(),
		"node_id": uuid.NewString(),
		"status":  "Error",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var defs []catalog.NodeDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.Len(t, defs, 9)
}
