package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brahmanda-ai/Parishad/internal/journal"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// TaskResponse is one journal entry as JSON.
type TaskResponse struct {
	TaskID       string     `json:"task_id"`
	Status       string     `json:"status"`
	Prompt       string     `json:"prompt"`
	PromptDigest string     `json:"prompt_digest"`
	Reason       *string    `json:"reason,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TaskListResponse is returned by GET /v1/tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Tasks = append(resp.Tasks, toTaskResponse(e))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	e, err := s.journal.Get(r.Context(), taskID)
	if errors.Is(err, journal.ErrEntryNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get task", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.writeJSON(w, http.StatusOK, toTaskResponse(e))
}

func toTaskResponse(e *journal.Entry) TaskResponse {
	return TaskResponse{
		TaskID:       e.ID,
		Status:       string(e.Status),
		Prompt:       e.Prompt,
		PromptDigest: e.PromptDigest,
		Reason:       e.Reason,
		SubmittedAt:  e.SubmittedAt,
		CompletedAt:  e.CompletedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
