// Package service contains the business rules between the HTTP handlers and
// the sandbox and storage layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/executor"
	"github.com/sakif/collab-playground/internal/model"
	"github.com/sakif/collab-playground/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// RunService executes code and keeps the execution history.
type RunService struct {
	exec   executor.Executor
	repo   repository.RunRepository
	logger *slog.Logger
}

// NewRunService creates a RunService. exec may be nil when no sandbox
// backend could be started; Execute then reports the service unavailable
// while the history stays readable.
func NewRunService(exec executor.Executor, repo repository.RunRepository, logger *slog.Logger) *RunService {
	return &RunService{
		exec:   exec,
		repo:   repo,
		logger: logger,
	}
}

// Execute runs req and records the outcome. sessionID ties the run to the
// collaboration session it came from and may be empty.
//
// Requests rejected by validation are not recorded. A sandbox setup failure
// is recorded with status setup-error and returned.
func (s *RunService) Execute(ctx context.Context, req executor.Request, sessionID string) (*executor.Result, error) {
	if s.exec == nil {
		return nil, apperror.Unavailable("code execution is not available on this server")
	}

	sessionID = strings.TrimSpace(sessionID)

	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, apperror.ErrSandboxSetup) {
			s.record(ctx, &model.Run{
				SessionID: sessionID,
				Language:  req.Language,
				Status:    string(executor.StatusSetupError),
				ExitCode:  -1,
				CodeBytes: len(req.Code),
			})
		}
		return nil, err
	}

	s.record(ctx, &model.Run{
		ID:         res.RunID,
		SessionID:  sessionID,
		Language:   req.Language,
		Status:     string(res.Status),
		ExitCode:   res.ExitCode,
		DurationMs: res.Duration.Milliseconds(),
		CodeBytes:  len(req.Code),
	})

	return res, nil
}

// record stores run metadata. The caller already has its result, so a
// storage failure is logged rather than returned, and a client that hung up
// does not cancel the write.
func (s *RunService) record(ctx context.Context, run *model.Run) {
	if err := s.repo.Create(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record run",
			slog.String("run_id", run.ID),
			slog.String("status", run.Status),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RunService) GetByID(ctx context.Context, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}

	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err // Let the error propagate (it's already a proper apperror)
	}

	return run, nil
}

// List returns recent runs, newest first.
func (s *RunService) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	runs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}
