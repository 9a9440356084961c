package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/events"
	"github.com/portwhine/portwhine/internal/graph"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/store"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.stats.Pending(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.pipelines.ListPipelines(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pipelines == nil {
		pipelines = []*model.Pipeline{}
	}
	respondJSON(w, http.StatusOK, pipelines)
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := s.decodePipeline(w, r)
	if !ok {
		return
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	if err := s.pipelines.SavePipeline(r.Context(), p); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Publish(events.TypePipelineSaved, "", map[string]string{"pipeline_id": p.ID.String()})
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	p, err := s.pipelines.GetPipeline(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	if _, err := s.pipelines.GetPipeline(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	active, err := s.hasActiveRun(r, id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if active {
		s.writeError(w, http.StatusConflict, "pipeline has an active run")
		return
	}

	p, ok := s.decodePipeline(w, r)
	if !ok {
		return
	}
	p.ID = id

	if err := s.pipelines.SavePipeline(r.Context(), p); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Publish(events.TypePipelineSaved, "", map[string]string{"pipeline_id": p.ID.String()})
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	active, err := s.hasActiveRun(r, id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if active {
		s.writeError(w, http.StatusConflict, "pipeline has an active run")
		return
	}
	if err := s.pipelines.DeletePipeline(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	run, err := s.control.StartRun(r.Context(), id)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, StartRunResponse{Run: run})
}

func (s *Server) handleStopPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	active, err := s.runs.ActiveRun(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "no active run for pipeline")
		return
	}
	run, err := s.control.StopRun(r.Context(), active.ID)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "pipelineID")
	if !ok {
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "runID")
	if !ok {
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "runID")
	if !ok {
		return
	}
	results, err := s.results.ListResults(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []store.StoredResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// handleJobResult is the worker callback. It always answers 200 for
// well-formed bodies; unknown runs and nodes are dropped inside the
// orchestrator so crashed-and-restarted workers cannot wedge on retries.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	var req JobResultRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.RunID == uuid.Nil || req.NodeID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "run_id and node_id are required")
		return
	}

	if err := s.control.HandleNodeCompletion(r.Context(), &req.WorkerResult); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.InstanceName != "" {
		if err := s.cleaner.CleanupInstance(r.Context(), req.InstanceName); err != nil {
			s.logger.Error("failed to enqueue instance cleanup",
				"instance", req.InstanceName, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// decodePipeline reads, validates, and returns the pipeline body.
func (s *Server) decodePipeline(w http.ResponseWriter, r *http.Request) (*model.Pipeline, bool) {
	var p model.Pipeline
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pipeline: %v", err))
		return nil, false
	}
	if err := model.ValidateName(p.Name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := graph.Validate(&p, s.registry); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return &p, true
}

// hasActiveRun reports whether the pipeline has a non-terminal run. A store
// failure is returned as an error so callers reject the mutation instead of
// treating it as "no active run".
func (s *Server) hasActiveRun(r *http.Request, pipelineID uuid.UUID) (bool, error) {
	_, err := s.runs.ActiveRun(r.Context(), pipelineID)
	if err == nil {
		return true, nil
	}
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
