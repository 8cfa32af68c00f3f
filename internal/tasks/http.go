package tasks

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

type updateStatusRequest struct {
	Status Status `json:"status"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

var errInvalidJSON = &Error{Kind: ErrValidation, Op: "decode body", Message: "invalid JSON"}

type handler struct {
	repo   Repository
	logger *slog.Logger
}

// apiFunc is a handler that leaves error responses to handler.wrap, so each
// request produces exactly one response.
type apiFunc func(w http.ResponseWriter, r *http.Request) error

func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger) {
	h := &handler{repo: repo, logger: logger}
	r.Post("/tasks", h.wrap(h.createTask))
	r.Get("/tasks", h.wrap(h.listTasks))
	r.Get("/tasks/{id}", h.wrap(h.getTask))
	r.Patch("/tasks/{id}/status", h.wrap(h.updateTaskStatus))
	r.Delete("/tasks/{id}", h.wrap(h.deleteTask))
}

func (h *handler) wrap(fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.writeError(w, r, err)
		}
	}
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) error {
	var in NewTask
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	t, err := h.repo.Create(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, t)
	return nil
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) error {
	tasks, err := h.repo.List(r.Context())
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
	return nil
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	t, err := h.repo.Get(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

func (h *handler) updateTaskStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if err := validateStatus("update task status", req.Status); err != nil {
		return err
	}
	t, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	if _, err := h.repo.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	resp := errResponse{Details: FieldErrors(err)}
	switch status {
	case http.StatusBadRequest:
		resp.Error = "validation_error"
		if errors.Is(err, errInvalidJSON) {
			resp.Error = "invalid_json"
		}
		var e *Error
		if errors.As(err, &e) {
			resp.Message = e.Message
		}
	case http.StatusNotFound:
		resp.Error = "not_found"
		resp.Message = "Task not found"
	case http.StatusServiceUnavailable:
		resp.Error = "store_unavailable"
		resp.Message = "Task store is unavailable, try again later"
	default:
		resp.Error = "unexpected_error"
		resp.Message = "Something went wrong"
	}

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("req_id", chimw.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("store_error", attrs...)
	} else {
		h.logger.Debug("request_rejected", attrs...)
	}

	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return errInvalidJSON
	}
	return nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, validationError("parse id", "invalid task id",
			FieldError{Field: "id", Message: "id must be a positive integer"})
	}
	if err := validateID("parse id", id); err != nil {
		return 0, err
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
