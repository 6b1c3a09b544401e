package executor

import (
	"context"
	"time"
)

// Status classifies how a run ended.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusRuntimeError Status = "runtime-error"
	StatusTimeout      Status = "timeout"
	// StatusSetupError is never carried by a returned Result; it is the status
	// recorded in the run history when Execute fails with a sandbox setup error.
	StatusSetupError Status = "setup-error"
)

// Request represents a request to execute code in a given language.
type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Stdin    string `json:"stdin"`
}

// Result represents the output and status of the code execution.
type Result struct {
	RunID    string        `json:"runId"`
	Output   string        `json:"output"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
