package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/executor"
	"github.com/sakif/collab-playground/internal/model"
	"github.com/sakif/collab-playground/internal/repository"
)

// mockRunRepo is an in-memory repository.RunRepository.
type mockRunRepo struct {
	runs      []model.Run
	lastOpts  repository.ListOptions
	createErr error
}

func (m *mockRunRepo) Create(_ context.Context, run *model.Run) error {
	if m.createErr != nil {
		return m.createErr
	}
	if run.ID == "" {
		run.ID = "generated"
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (*model.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("run", id)
}

func (m *mockRunRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Run, error) {
	m.lastOpts = opts
	return m.runs, nil
}

// mockExecutor returns a canned result or error.
type mockExecutor struct {
	res *executor.Result
	err error
}

func (m *mockExecutor) Execute(context.Context, executor.Request) (*executor.Result, error) {
	return m.res, m.err
}

func newTestService(exec executor.Executor, repo repository.RunRepository) *RunService {
	return NewRunService(exec, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecute_RecordsResult(t *testing.T) {
	repo := &mockRunRepo{}
	exec := &mockExecutor{res: &executor.Result{
		RunID:    "run-1",
		Output:   "hi\n",
		Status:   executor.StatusSuccess,
		Duration: 1500 * time.Millisecond,
	}}
	svc := newTestService(exec, repo)

	res, err := svc.Execute(context.Background(), executor.Request{Code: "print('hi')", Language: "python"}, " room ")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Output)

	require.Len(t, repo.runs, 1)
	assert.Equal(t, model.Run{
		ID:         "run-1",
		SessionID:  "room",
		Language:   "python",
		Status:     "success",
		DurationMs: 1500,
		CodeBytes:  11,
	}, repo.runs[0])
}

func TestExecute_ValidationNotRecorded(t *testing.T) {
	repo := &mockRunRepo{}
	svc := newTestService(&mockExecutor{err: apperror.UnsupportedLanguage("cobol")}, repo)

	_, err := svc.Execute(context.Background(), executor.Request{Code: "x", Language: "cobol"}, "")
	assert.ErrorIs(t, err, apperror.ErrUnsupportedLanguage)
	assert.Empty(t, repo.runs)
}

func TestExecute_SetupErrorRecorded(t *testing.T) {
	repo := &mockRunRepo{}
	svc := newTestService(&mockExecutor{err: apperror.SandboxSetup("workdir allocation", errors.New("disk full"))}, repo)

	_, err := svc.Execute(context.Background(), executor.Request{Code: "x", Language: "java"}, "")
	assert.ErrorIs(t, err, apperror.ErrSandboxSetup)

	require.Len(t, repo.runs, 1)
	assert.Equal(t, "setup-error", repo.runs[0].Status)
	assert.Equal(t, "java", repo.runs[0].Language)
}

func TestExecute_StorageFailureDoesNotFailRun(t *testing.T) {
	repo := &mockRunRepo{createErr: errors.New("database is locked")}
	svc := newTestService(&mockExecutor{res: &executor.Result{Status: executor.StatusTimeout}}, repo)

	res, err := svc.Execute(context.Background(), executor.Request{Code: "x", Language: "java"}, "")
	require.NoError(t, err)
	assert.Equal(t, executor.StatusTimeout, res.Status)
}

func TestExecute_NoBackend(t *testing.T) {
	svc := newTestService(nil, &mockRunRepo{})

	_, err := svc.Execute(context.Background(), executor.Request{Code: "x", Language: "java"}, "")
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestGetByID(t *testing.T) {
	repo := &mockRunRepo{runs: []model.Run{{ID: "abc", Status: "success"}}}
	svc := newTestService(nil, repo)

	run, err := svc.GetByID(context.Background(), " abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", run.ID)

	_, err = svc.GetByID(context.Background(), "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestList_ClampsPagination(t *testing.T) {
	tests := []struct {
		name string
		in   repository.ListOptions
		want repository.ListOptions
	}{
		{"defaults", repository.ListOptions{}, repository.ListOptions{Limit: DefaultListLimit}},
		{"too large", repository.ListOptions{Limit: 5000}, repository.ListOptions{Limit: MaxListLimit}},
		{"negative offset", repository.ListOptions{Limit: 5, Offset: -1}, repository.ListOptions{Limit: 5}},
		{"filters pass through", repository.ListOptions{Limit: 5, Language: "java", SessionID: "s"},
			repository.ListOptions{Limit: 5, Language: "java", SessionID: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRunRepo{}
			svc := newTestService(nil, repo)

			_, err := svc.List(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.lastOpts)
		})
	}
}
