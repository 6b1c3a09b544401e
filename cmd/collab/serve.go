package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/collab-playground/internal/config"
	"github.com/sakif/collab-playground/internal/executor"
	"github.com/sakif/collab-playground/internal/handler"
	"github.com/sakif/collab-playground/internal/metrics"
	"github.com/sakif/collab-playground/internal/relay"
	"github.com/sakif/collab-playground/internal/repository/sqlite"
	"github.com/sakif/collab-playground/internal/server"
	"github.com/sakif/collab-playground/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay and execution server",
	Long: `Start the HTTP server: the WebSocket session relay on /ws, the execution
and history API under /api, /healthz and /metrics.

When the sandbox backend cannot start (for example Docker is not running)
the server still serves sessions and /api/execute answers 503.

Examples:
  collab serve
  collab serve --port 9090 --backend bwrap`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"server.port":     "port",
			"sandbox.backend": "backend",
			"storage.db_path": "db",
		})
	},
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.Int("port", 0, "Port to listen on")
	flags.String("backend", "", "Sandbox backend (docker, bwrap, process)")
	flags.String("db", "", "Path to the SQLite run history")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(settings)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	languages := executor.DefaultRegistry()

	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// The sandbox is optional: sessions work without it.
	var (
		exec    executor.Executor
		sandbox handler.Sandbox
	)
	orch, release, err := newOrchestrator(cfg.Sandbox, languages, logger, m)
	if err != nil {
		logger.Warn("sandbox unavailable, /api/execute will return 503",
			slog.String("backend", cfg.Sandbox.Backend),
			slog.String("error", err.Error()),
		)
	} else {
		defer release()
		exec, sandbox = orch, orch
		logger.Info("sandbox ready",
			slog.String("backend", orch.Backend()),
			slog.Duration("timeout", cfg.Sandbox.Timeout),
		)
	}

	hub := relay.NewHub(relay.Config{
		DefaultLanguage: cfg.Session.DefaultLanguage,
		SendBuffer:      cfg.Session.SendBuffer,
		PongWait:        cfg.Session.PongWait,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, languages, logger, m)

	runs := service.NewRunService(exec, db, logger)

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		ReadTimeout: cfg.Server.ReadTimeout,
		// An execution holds its response for at most the sandbox budget.
		WriteTimeout:    cfg.Sandbox.Timeout + 15*time.Second,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Hub:       hub,
		Runs:      runs,
		History:   runs,
		Languages: languages,
		Sandbox:   sandbox,
		Metrics:   m,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()

	if orch != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Sandbox.Timeout+5*time.Second)
		defer cancel()
		if derr := orch.Drain(drainCtx); derr != nil {
			logger.Warn("sandbox runs still active at exit", slog.Int("active", orch.Active()))
		}
	}

	return err
}
