//go:build unix

// Package process launches sandbox steps as local child processes.
//
// Each step runs in its own process group so that a timeout kills the whole
// tree, not just the direct child. Without a Wrapper nothing stops the step
// from reading the rest of the host filesystem; that mode exists for tests
// and development machines without Docker.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"

	"github.com/sakif/collab-playground/internal/executor"
)

// Launcher implements executor.Launcher with os/exec.
type Launcher struct {
	config Config
	logger *slog.Logger
}

var _ executor.Launcher = (*Launcher)(nil)

// New creates a process launcher.
func New(cfg Config, logger *slog.Logger) *Launcher {
	def := DefaultConfig()
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = def.WaitDelay
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	return &Launcher{config: cfg, logger: logger}
}

// Name reports "process", or the wrapper's name when one is configured.
func (l *Launcher) Name() string {
	if l.config.Wrapper != nil {
		return l.config.Wrapper.Name()
	}
	return "process"
}

// Launch runs step and waits for it. When ctx ends first the step's process
// group is killed and the outcome is reported as timed out.
func (l *Launcher) Launch(ctx context.Context, step executor.Step) (*executor.Outcome, error) {
	if len(step.Argv) == 0 {
		return nil, errors.New("process: command is required")
	}

	argv := step.Argv
	if l.config.Wrapper != nil {
		wrapped, err := l.config.Wrapper.Wrap(step)
		if err != nil {
			return nil, fmt.Errorf("process: wrapping command: %w", err)
		}
		argv = wrapped
	}

	stdout := &executor.LimitedBuffer{Limit: l.config.MaxOutputBytes}
	stderr := &executor.LimitedBuffer{Limit: l.config.MaxOutputBytes}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = step.Dir
	cmd.Env = []string{
		"PATH=" + l.config.Path,
		"HOME=" + step.Dir,
		"LANG=C.UTF-8",
	}
	cmd.Stdin = strings.NewReader(step.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = l.config.WaitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: starting %s: %w", argv[0], err)
	}

	l.logger.Debug("step started",
		slog.String("run_id", step.RunID),
		slog.String("phase", string(step.Phase)),
		slog.Int("pid", cmd.Process.Pid),
	)

	waitErr := cmd.Wait()

	// Background children may outlive the group leader.
	_ = killGroup(cmd.Process.Pid)

	if ctx.Err() != nil {
		return &executor.Outcome{TimedOut: true, ExitCode: -1}, nil
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay):
			exitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("process: waiting for %s: %w", argv[0], waitErr)
		}
	}

	return &executor.Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
