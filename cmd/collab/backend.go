package main

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sakif/collab-playground/internal/config"
	"github.com/sakif/collab-playground/internal/executor"
	"github.com/sakif/collab-playground/internal/executor/docker"
	"github.com/sakif/collab-playground/internal/executor/process"
	"github.com/sakif/collab-playground/internal/metrics"
)

// newOrchestrator starts the configured launch backend and puts an
// orchestrator in front of it. The returned func releases the backend.
func newOrchestrator(cfg config.SandboxConfig, languages *executor.Registry, logger *slog.Logger, m *metrics.Metrics) (*executor.Orchestrator, func(), error) {
	launcher, release, err := newLauncher(cfg, languages, logger)
	if err != nil {
		return nil, nil, err
	}

	orch, err := executor.NewOrchestrator(launcher, languages, executor.Config{
		WorkRoot: cfg.WorkRoot,
		Timeout:  cfg.Timeout,
	}, logger, m)
	if err != nil {
		release()
		return nil, nil, err
	}
	return orch, release, nil
}

func newLauncher(cfg config.SandboxConfig, languages *executor.Registry, logger *slog.Logger) (executor.Launcher, func(), error) {
	switch cfg.Backend {
	case "docker":
		dcfg := docker.DefaultConfig()
		dcfg.MemoryLimit = cfg.MemoryMB << 20
		dcfg.CPULimit = cfg.CPUs
		dcfg.PidsLimit = cfg.PidsLimit
		dcfg.SkipPull = cfg.SkipPull

		l, err := docker.New(dcfg, languages, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting docker backend: %w", err)
		}
		return l, func() { l.Close() }, nil

	case "bwrap":
		bin, err := exec.LookPath(cfg.BwrapPath)
		if err != nil {
			return nil, nil, fmt.Errorf("starting bwrap backend: %w", err)
		}
		pcfg := process.DefaultConfig()
		pcfg.Wrapper = bubblewrap(bin, pcfg.Path, cfg.BwrapROBinds)
		return process.New(pcfg, logger), func() {}, nil

	case "process":
		logger.Warn("sandbox backend \"process\" runs code without isolation; use it for development only")
		return process.New(process.DefaultConfig(), logger), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}

// bubblewrap exposes each extra read-only directory inside the sandbox and
// puts its bin directory ahead of the system PATH.
func bubblewrap(bin, path string, roBinds []string) process.Bubblewrap {
	dirs := make([]string, 0, len(roBinds)+1)
	for _, dir := range roBinds {
		dirs = append(dirs, filepath.Join(dir, "bin"))
	}
	dirs = append(dirs, path)
	return process.Bubblewrap{
		Binary:   bin,
		ReadOnly: roBinds,
		Path:     strings.Join(dirs, ":"),
	}
}
