package executor

import "context"

// Phase names the step of a run a launcher is asked to execute.
type Phase string

const (
	PhaseBuild Phase = "build"
	PhaseRun   Phase = "run"
)

// Step is one isolated process launch inside a run's working directory.
type Step struct {
	RunID string
	Phase Phase
	// Dir is the host working directory. It is the only location the step
	// may see or write.
	Dir   string
	Image string
	Argv  []string
	Stdin string
}

// Outcome is what a launcher observed. A step killed because the context
// ended reports TimedOut and carries no output.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Launcher starts a step inside an isolated environment and waits for it.
//
// Launch must honour ctx: once it is done the launcher kills the step and
// every descendant, then returns an Outcome with TimedOut set. An error is
// returned only when the environment could not be provisioned or started.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, step Step) (*Outcome, error)
}

// LimitedBuffer keeps the first Limit bytes written to it and silently
// discards the rest, so a chatty program cannot exhaust server memory.
// It always reports a full write so the producer is never blocked.
type LimitedBuffer struct {
	Limit int
	buf   []byte
}

func (b *LimitedBuffer) Write(p []byte) (int, error) {
	if room := b.Limit - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(len(p), room)]...)
	}
	return len(p), nil
}

func (b *LimitedBuffer) String() string {
	return string(b.buf)
}
