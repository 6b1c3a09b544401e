package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/executor"
)

// maxExecuteBody bounds the request body. The orchestrator enforces the real
// per-field limits; this only stops a client streaming an unbounded body.
const maxExecuteBody = executor.MaxCodeBytes + executor.MaxStdinBytes + 4<<10

// Runner executes code and records the run.
type Runner interface {
	Execute(ctx context.Context, req executor.Request, sessionID string) (*executor.Result, error)
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	runs      Runner
	languages *executor.Registry
	logger    *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(runs Runner, languages *executor.Registry, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		runs:      runs,
		languages: languages,
		logger:    logger,
	}
}

type executeRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Stdin     string `json:"stdin"`
	SessionID string `json:"sessionId"`
}

type executeResponse struct {
	Output     string `json:"output"`
	Status     string `json:"status"`
	RunID      string `json:"runId"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// HandleExecute runs a program in the sandbox.
//
// HTTP: POST /api/execute
// REQUEST BODY: {"code": "...", "language": "python", "stdin": "", "sessionId": "optional"}
//
// A program that fails to compile, exits non-zero or times out is still a
// 200: the outcome is in "status". Only requests that never reached the
// sandbox produce an error response.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxExecuteBody)

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	result, err := h.runs.Execute(r.Context(), executor.Request{
		Code:     req.Code,
		Language: req.Language,
		Stdin:    req.Stdin,
	}, req.SessionID)
	if err != nil {
		h.logger.Warn("execution rejected",
			slog.String("language", req.Language),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Output:     result.Output,
		Status:     string(result.Status),
		RunID:      result.RunID,
		ExitCode:   result.ExitCode,
		DurationMs: result.Duration.Milliseconds(),
	})
}

type languageResponse struct {
	Name     string `json:"name"`
	Compiled bool   `json:"compiled"`
}

// HandleLanguages lists the languages a session may select and run.
//
// HTTP: GET /api/languages
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	langs := h.languages.Languages()
	out := make([]languageResponse, 0, len(langs))
	for _, l := range langs {
		out = append(out, languageResponse{Name: l.Name, Compiled: l.Compiled()})
	}
	writeJSON(w, http.StatusOK, out)
}
