package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/model"
	"github.com/sakif/collab-playground/internal/repository"
)

// RunHistory reads recorded runs.
type RunHistory interface {
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error)
}

// RunHandler serves the execution history.
type RunHandler struct {
	history RunHistory
	logger  *slog.Logger
}

func NewRunHandler(history RunHistory, logger *slog.Logger) *RunHandler {
	return &RunHandler{history: history, logger: logger}
}

// HandleList returns recent runs, newest first.
//
// HTTP: GET /api/runs?limit=20&offset=0&language=python&session=abc
//
// QUERY PARAMETERS:
// r.URL.Query() parses the query string into a map. Missing parameters come
// back as "", so only present values are converted.
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	runs, err := h.history.List(r.Context(), repository.ListOptions{
		Limit:     limit,
		Offset:    offset,
		Language:  q.Get("language"),
		SessionID: q.Get("session"),
	})
	if err != nil {
		h.logger.Error("failed to list runs", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleGetByID returns one run.
//
// HTTP: GET /api/runs/{id}
func (h *RunHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	run, err := h.history.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
