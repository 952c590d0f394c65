// Package httpx provides HTTP handlers and utilities for the tweetvault archive API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/fimiwatch/tweetvault/internal/domain/model"
	"github.com/fimiwatch/tweetvault/internal/service"
)

// TaskHandlers provides HTTP handlers for archive task operations.
type TaskHandlers struct {
	Svc *service.TaskService
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Download accepts an archive job spec, enqueues it, and returns the task id
// immediately. The work itself happens on the runner.
func (h *TaskHandlers) Download(w http.ResponseWriter, r *http.Request) {
	var spec model.JobSpec
	if !DecodeJSON(w, r, &spec) {
		return
	}

	// A request without an explicit credential ref inherits the caller's
	// bearer key, under which stored sink tokens are keyed.
	if spec.CredentialRef == "" {
		if ref, ok := CredentialRefFromContext(r.Context()); ok {
			spec.CredentialRef = ref
		}
	}

	req := &model.CreateTaskRequest{Spec: spec}
	if err := req.Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
		return
	}

	task, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

// GetStatus returns the polling payload for one task.
func (h *TaskHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")},
		)
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), taskID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Stats returns task counts per lifecycle state.
func (h *TaskHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// List returns tasks matching the query filters with pagination.
func (h *TaskHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseTaskListOptions(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: err})
		return
	}

	tasks, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// Delete removes a terminal or pending task. Running tasks with a live lease
// are refused.
func (h *TaskHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")},
		)
		return
	}

	if err := h.Svc.Delete(r.Context(), taskID); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTaskListOptions(r *http.Request) (*model.TaskListOptions, error) {
	opts := &model.TaskListOptions{}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultListLimit, maxListLimit)

	if raw := r.URL.Query().Get("state"); raw != "" {
		var state model.TaskState
		if err := state.UnmarshalText([]byte(raw)); err != nil {
			return nil, err
		}
		opts.State = &state
	}
	if label := r.URL.Query().Get("event_label"); label != "" {
		opts.EventLabel = &label
	}
	if order := r.URL.Query().Get("order"); order != "" {
		if order != "asc" && order != "desc" {
			return nil, errors.New("order must be asc or desc")
		}
		opts.SortOrder = order
	}
	return opts, nil
}
