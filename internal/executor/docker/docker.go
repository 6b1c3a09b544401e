package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/collab-playground/internal/executor"
)

// Launcher implements the executor.Launcher interface using Docker.
// Every step gets its own short-lived container with only the run's working
// directory mounted.
type Launcher struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
}

var _ executor.Launcher = (*Launcher)(nil)

// New creates a new Docker Launcher and makes sure every image the
// languages need is present.
func New(cfg Config, languages *executor.Registry, logger *slog.Logger) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	l := &Launcher{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = DefaultConfig().PullTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultConfig().MaxOutputBytes
	}
	l.config = cfg

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PullTimeout)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	if !cfg.SkipPull {
		for _, ref := range languages.Images() {
			if err := l.pull(ctx, ref); err != nil {
				cli.Close()
				return nil, err
			}
		}
	}

	return l, nil
}

func (l *Launcher) pull(ctx context.Context, ref string) error {
	l.logger.Info("ensuring docker image is available", slog.String("image", ref))
	reader, err := l.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	l.logger.Info("docker image is ready", slog.String("image", ref))
	return nil
}

// Name implements executor.Launcher.
func (l *Launcher) Name() string { return "docker" }

// Close releases the docker client.
func (l *Launcher) Close() error {
	return l.cli.Close()
}

// Launch runs one step in a fresh container and waits for it to exit or for
// ctx to end.
func (l *Launcher) Launch(ctx context.Context, step executor.Step) (*executor.Outcome, error) {
	hostConfig := &container.HostConfig{
		Binds:       []string{step.Dir + ":" + workDir},
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    l.config.MemoryLimit,
			NanoCPUs:  int64(l.config.CPULimit * 1e9),
			PidsLimit: &l.config.PidsLimit,
		},
		// Filesystem is read-only except the working directory and /tmp
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,exec,size=64m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
	}

	resp, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:        step.Image,
		Cmd:          step.Argv,
		WorkingDir:   workDir,
		User:         l.config.User,
		Env:          []string{"HOME=/tmp"},
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			"collab.run-id": step.RunID,
			"collab.phase":  string(step.Phase),
		},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ContainerCreate failed: %w", err)
	}
	containerID := resp.ID

	// Always ensure we clean up the container, even after a timeout.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := l.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{
			Force: true,
		})
		if err != nil {
			l.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	attachResp, err := l.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ContainerAttach failed: %w", err)
	}
	defer attachResp.Close()

	// Register for the exit before starting so a fast program is not missed.
	waitCh, waitErrCh := l.cli.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	if err := l.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("ContainerStart failed: %w", err)
	}

	go func() {
		_, _ = io.Copy(attachResp.Conn, strings.NewReader(step.Stdin))
		_ = attachResp.CloseWrite()
	}()

	stdout := &executor.LimitedBuffer{Limit: l.config.MaxOutputBytes}
	stderr := &executor.LimitedBuffer{Limit: l.config.MaxOutputBytes}
	copied := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		close(copied)
	}()

	var exitCode int
	select {
	case res := <-waitCh:
		exitCode = int(res.StatusCode)
	case err := <-waitErrCh:
		if ctx.Err() != nil {
			return &executor.Outcome{TimedOut: true, ExitCode: -1}, nil
		}
		return nil, fmt.Errorf("ContainerWait failed: %w", err)
	case <-ctx.Done():
		// The deferred force-remove kills the container.
		return &executor.Outcome{TimedOut: true, ExitCode: -1}, nil
	}

	select {
	case <-copied:
	case <-ctx.Done():
		return &executor.Outcome{TimedOut: true, ExitCode: -1}, nil
	}

	return &executor.Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

const workDir = "/app"
