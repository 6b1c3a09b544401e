package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/metrics"
)

const (
	MaxCodeBytes  = 64 * 1024
	MaxStdinBytes = 64 * 1024

	DefaultTimeout = 5 * time.Second
)

// Config holds the orchestrator's resource settings.
type Config struct {
	// WorkRoot is the parent of every per-run working directory.
	WorkRoot string
	// Timeout is the wall-clock budget shared by the build and run steps.
	Timeout time.Duration
}

// Orchestrator implements Executor: it validates a request, provisions a
// fresh working directory, launches the language's steps through a
// Launcher under a hard budget and always removes the directory afterwards.
//
// Runs share no mutable state. The in-flight table exists only so health
// checks and shutdown can observe how many sandboxes are allocated.
type Orchestrator struct {
	launcher  Launcher
	languages *Registry
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	inflight  *xsync.MapOf[string, time.Time]
}

var _ Executor = (*Orchestrator)(nil)

// NewOrchestrator creates the work root if needed and returns an orchestrator.
func NewOrchestrator(launcher Launcher, languages *Registry, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "collab-runs")
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("executor: creating work root: %w", err)
	}

	return &Orchestrator{
		launcher:  launcher,
		languages: languages,
		config:    cfg,
		logger:    logger,
		metrics:   m,
		inflight:  xsync.NewMapOf[string, time.Time](),
	}, nil
}

// Backend names the launcher in use.
func (o *Orchestrator) Backend() string {
	return o.launcher.Name()
}

// Languages exposes the supported language set.
func (o *Orchestrator) Languages() *Registry {
	return o.languages
}

// Active returns the number of runs currently holding a sandbox.
func (o *Orchestrator) Active() int {
	return o.inflight.Size()
}

// Drain blocks until no run holds a sandbox or ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for o.inflight.Size() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("executor: %d runs still active: %w", o.inflight.Size(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Execute runs req in a new sandbox.
//
// Validation failures return apperror ErrValidation or ErrUnsupportedLanguage
// before anything is allocated. Provisioning failures return ErrSandboxSetup.
// Every other outcome, including build failures, non-zero exits and
// timeouts, is reported through the Result.
//
// Cancelling ctx does not stop a run: the only way a run ends early is the
// configured budget.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	lang, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	dir := filepath.Join(o.config.WorkRoot, runID)
	logger := o.logger.With(slog.String("run_id", runID), slog.String("language", lang.Name))

	start := time.Now()
	o.inflight.Store(runID, start)
	o.metrics.ExecutionStarted(len(req.Code))

	status := StatusSetupError
	defer func() {
		o.inflight.Delete(runID)
		o.metrics.ExecutionFinished(lang.Name, string(status), time.Since(start))
	}()
	defer o.cleanup(logger, dir)

	if err := o.prepare(dir, lang, req.Code); err != nil {
		logger.Error("sandbox setup failed", slog.String("error", err.Error()))
		return nil, err
	}

	budget, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.Timeout)
	defer cancel()

	result, err := o.run(budget, runID, dir, lang, req.Stdin)
	if err != nil {
		logger.Error("sandbox launch failed", slog.String("error", err.Error()))
		return nil, err
	}

	status = result.Status
	result.RunID = runID
	result.Duration = time.Since(start)

	logger.Info("execution finished",
		slog.String("status", string(result.Status)),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

func (o *Orchestrator) validate(req Request) (Language, error) {
	if req.Code == "" {
		return Language{}, apperror.ValidationFailed("code", "code is required")
	}
	if req.Language == "" {
		return Language{}, apperror.ValidationFailed("language", "language is required")
	}
	if len(req.Code) > MaxCodeBytes {
		return Language{}, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeBytes))
	}
	if len(req.Stdin) > MaxStdinBytes {
		return Language{}, apperror.ValidationFailed("stdin",
			fmt.Sprintf("stdin must be %d bytes or less", MaxStdinBytes))
	}
	lang, ok := o.languages.Get(req.Language)
	if !ok {
		return Language{}, apperror.UnsupportedLanguage(req.Language)
	}
	return lang, nil
}

// prepare allocates the working directory and writes the entry-point file.
// os.Mkdir fails on an existing path, so two runs can never share a directory.
func (o *Orchestrator) prepare(dir string, lang Language, code string) error {
	if err := os.Mkdir(dir, 0o755); err != nil {
		return apperror.SandboxSetup("workdir allocation", err)
	}
	// Steps may run under another uid (nobody, when the server is root) and
	// compilers write next to the source.
	if err := os.Chmod(dir, 0o777); err != nil {
		return apperror.SandboxSetup("workdir permissions", err)
	}
	if err := os.WriteFile(filepath.Join(dir, lang.SourceFile), []byte(code), 0o644); err != nil {
		return apperror.SandboxSetup("source materialization", err)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, runID, dir string, lang Language, stdin string) (*Result, error) {
	if lang.Compiled() {
		out, err := o.launch(ctx, Step{
			RunID: runID,
			Phase: PhaseBuild,
			Dir:   dir,
			Image: lang.Image,
			Argv:  lang.Build,
		})
		if err != nil {
			return nil, err
		}
		if out.TimedOut {
			return o.timedOut(), nil
		}
		if out.ExitCode != 0 {
			return failed(out), nil
		}
	}

	out, err := o.launch(ctx, Step{
		RunID: runID,
		Phase: PhaseRun,
		Dir:   dir,
		Image: lang.Image,
		Argv:  lang.Run,
		Stdin: stdin,
	})
	if err != nil {
		return nil, err
	}
	if out.TimedOut {
		return o.timedOut(), nil
	}
	if out.ExitCode != 0 {
		return failed(out), nil
	}
	return &Result{Status: StatusSuccess, Output: out.Stdout}, nil
}

// launch runs one step. A launcher error caused by the budget expiring
// mid-provisioning is still a timeout, not a setup failure.
func (o *Orchestrator) launch(ctx context.Context, step Step) (*Outcome, error) {
	out, err := o.launcher.Launch(ctx, step)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Outcome{TimedOut: true}, nil
		}
		return nil, apperror.SandboxSetup(string(step.Phase)+" launch", err)
	}
	if !out.TimedOut && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out = &Outcome{TimedOut: true}
	}
	return out, nil
}

// timedOut discards whatever the program printed before it was killed.
func (o *Orchestrator) timedOut() *Result {
	return &Result{
		Status:   StatusTimeout,
		ExitCode: -1,
		Output: fmt.Sprintf("Execution timed out (%gs limit). Possible infinite loop or long-running computation.",
			o.config.Timeout.Seconds()),
	}
}

func failed(out *Outcome) *Result {
	output := out.Stderr
	if output == "" {
		output = out.Stdout
	}
	return &Result{Status: StatusRuntimeError, Output: output, ExitCode: out.ExitCode}
}

// cleanup removes the working directory. A program can leave behind
// directories it made unwritable, so a failed removal restores owner
// permissions on every directory and tries once more.
func (o *Orchestrator) cleanup(logger *slog.Logger, dir string) {
	err := os.RemoveAll(dir)
	if err != nil {
		unlockDirs(dir)
		err = os.RemoveAll(dir)
	}
	if err != nil {
		logger.Error("failed to remove working directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// unlockDirs makes every directory under root owner-writable. WalkDir visits
// a directory before reading it, so one without read permission is opened
// up before its entries are listed. Symlinks are never followed.
func unlockDirs(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(path, 0o700)
		}
		return nil
	})
}
