package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/collab-playground/internal/config"
	"github.com/sakif/collab-playground/internal/executor"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run one source file in the sandbox",
	Long: `Run one source file through the same sandbox the server uses and print its
output. The language is taken from --language or the file extension.

The process exits 0 on success, 1 on a runtime or build error and 124 on
timeout, matching what the server reports as the run's status.

Examples:
  collab run main.py
  echo 42 | collab run --stdin - Main.java
  collab run --backend process --timeout 2s loop.py`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"sandbox.backend": "backend",
			"sandbox.timeout": "timeout",
		})
	},
	RunE: runRun,
}

var (
	runLanguage string
	runStdin    string
)

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runLanguage, "language", "l", "", "Language (default: from the file extension)")
	flags.StringVar(&runStdin, "stdin", "", `File whose contents become the program's stdin, or "-" for this process's stdin`)
	flags.String("backend", "", "Sandbox backend (docker, bwrap, process)")
	flags.Duration("timeout", 0, "Wall-clock budget for build and run")
	rootCmd.AddCommand(runCmd)
}

// extensions maps source file extensions to language names.
var extensions = map[string]string{
	".java": "java",
	".py":   "python",
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(settings)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	language := runLanguage
	if language == "" {
		ext := strings.ToLower(filepath.Ext(args[0]))
		if language = extensions[ext]; language == "" {
			return fmt.Errorf("cannot tell the language of %s; pass --language", args[0])
		}
	}

	stdin, err := readStdin(cmd.InOrStdin(), runStdin)
	if err != nil {
		return err
	}

	orch, release, err := newOrchestrator(cfg.Sandbox, executor.DefaultRegistry(), logger, nil)
	if err != nil {
		return err
	}
	defer release()

	res, err := orch.Execute(cmd.Context(), executor.Request{
		Code:     string(code),
		Language: language,
		Stdin:    stdin,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), res.Output)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s, exit %d, %s]\n", res.Status, res.ExitCode, res.Duration.Round(time.Millisecond))

	switch res.Status {
	case executor.StatusSuccess:
		return nil
	case executor.StatusTimeout:
		return exitCode(124)
	default:
		return exitCode(1)
	}
}

func readStdin(in io.Reader, source string) (string, error) {
	switch source {
	case "":
		return "", nil
	case "-":
		b, err := io.ReadAll(io.LimitReader(in, executor.MaxStdinBytes+1))
		return string(b), err
	default:
		b, err := os.ReadFile(source)
		return string(b), err
	}
}
