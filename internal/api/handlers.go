package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/payload"
	"github.com/maumercado/dbqueue/internal/queue"
	"github.com/maumercado/dbqueue/internal/store"
)

// SubmitTaskRequest is the body of POST /api/v1/tasks. Function names a
// handler registered on the workers; Kwargs are its arguments.
type SubmitTaskRequest struct {
	Function    string         `json:"function"`
	Kwargs      map[string]any `json:"kwargs,omitempty"`
	Creator     int64          `json:"creator"`
	RequiresTag string         `json:"requires_tag,omitempty"`
	Retries     *int           `json:"retries,omitempty"`
}

// TaskResponse describes a task row. The result blob is surfaced only by
// the dedicated result endpoint.
type TaskResponse struct {
	ID          int64     `json:"id"`
	Creator     int64     `json:"creator"`
	Owner       int64     `json:"owner"`
	Status      string    `json:"status"`
	Retries     int       `json:"retries"`
	RequiresTag string    `json:"requires_tag,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

func taskResponse(t *store.Task) *TaskResponse {
	return &TaskResponse{
		ID:          t.ID,
		Creator:     t.Creator,
		Owner:       t.Owner,
		Status:      t.Status.String(),
		Retries:     t.Retries,
		RequiresTag: t.RequiresTag,
		LastUpdated: t.LastUpdated,
	}
}

// submitTask handles POST /api/v1/tasks
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Function == "" {
		s.respondError(w, http.StatusBadRequest, "function is required")
		return
	}

	kwargs, err := payload.EncodeArgs(req.Kwargs)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid kwargs")
		return
	}

	opts := []queue.SubmitOption{queue.WithRequiresTag(req.RequiresTag)}
	if req.Retries != nil {
		opts = append(opts, queue.WithRetries(*req.Retries))
	}

	id, err := s.client.Submit(r.Context(), payload.EncodeFunction(req.Function), kwargs, req.Creator, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to submit task")
		s.respondError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": store.StatusPending.String()})
}

// getTask handles GET /api/v1/tasks/{taskID}
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	status, err := s.client.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			s.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Int64("task_id", id).Msg("failed to get task")
		s.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": status.String()})
}

// getTaskResult handles GET /api/v1/tasks/{taskID}/result
func (s *Server) getTaskResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	result, err := s.client.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			s.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Int64("task_id", id).Msg("failed to get task result")
		s.respondError(w, http.StatusInternalServerError, "failed to get task result")
		return
	}

	if result == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "result": nil})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "result": json.RawMessage(result)})
}

// listTasks handles GET /api/v1/tasks?creator=N
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	creatorParam := r.URL.Query().Get("creator")
	if creatorParam == "" {
		s.respondError(w, http.StatusBadRequest, "creator query parameter is required")
		return
	}
	creator, err := strconv.ParseInt(creatorParam, 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid creator")
		return
	}

	tasks, err := s.client.TasksOfCreator(r.Context(), creator)
	if err != nil {
		logger.Error().Err(err).Int64("creator", creator).Msg("failed to list tasks")
		s.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	out := make([]*TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskResponse(&tasks[i]))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"tasks": out, "count": len(out)})
}

// listWorkers handles GET /api/v1/workers
func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.client.ListWorkers(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list workers")
		s.respondError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"workers": workers, "count": len(workers)})
}

// killWorkers handles DELETE /api/v1/workers?tag=T
func (s *Server) killWorkers(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("tag") {
		s.respondError(w, http.StatusBadRequest, "tag query parameter is required")
		return
	}
	tag := r.URL.Query().Get("tag")

	killed, err := s.client.KillWorkers(r.Context(), tag)
	if err != nil {
		logger.Error().Err(err).Str("tag", tag).Msg("failed to kill workers")
		s.respondError(w, http.StatusInternalServerError, "failed to kill workers")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"killed": killed})
}

func (s *Server) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid task ID")
		return 0, false
	}
	return id, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
