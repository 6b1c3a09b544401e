package process

import (
	"errors"

	"github.com/sakif/collab-playground/internal/executor"
)

// Wrapper turns a step into the argv that actually gets executed.
type Wrapper interface {
	Name() string
	Wrap(step executor.Step) ([]string, error)
}

// SandboxDir is where the run's working directory appears inside bubblewrap.
const SandboxDir = "/app"

// Bubblewrap isolates each step with bwrap: fresh namespaces, no network,
// read-only system directories, and the working directory as the only
// writable bind.
type Bubblewrap struct {
	// Binary is the bwrap executable, "bwrap" when empty.
	Binary string
	// ReadOnly lists extra host paths bound read-only when they exist,
	// e.g. a JDK installed outside /usr.
	ReadOnly []string
	// Path is PATH inside the sandbox.
	Path string
}

func (b Bubblewrap) Name() string { return "bwrap" }

// Wrap builds the bwrap argument vector for step. The step's own argv is
// appended after "--" untouched.
func (b Bubblewrap) Wrap(step executor.Step) ([]string, error) {
	if step.Dir == "" {
		return nil, errors.New("bwrap: working directory is required")
	}
	if len(step.Argv) == 0 {
		return nil, errors.New("bwrap: command is required")
	}

	binary := b.Binary
	if binary == "" {
		binary = "bwrap"
	}
	path := b.Path
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}

	args := []string{
		binary,
		"--unshare-all",
		"--die-with-parent",
		"--new-session",
		"--ro-bind", "/usr", "/usr",
	}
	for _, dir := range []string{"/bin", "/lib", "/lib64", "/etc/alternatives", "/etc/ssl"} {
		args = append(args, "--ro-bind-try", dir, dir)
	}
	for _, dir := range b.ReadOnly {
		args = append(args, "--ro-bind-try", dir, dir)
	}
	args = append(args,
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--bind", step.Dir, SandboxDir,
		"--chdir", SandboxDir,
		"--clearenv",
		"--setenv", "PATH", path,
		"--setenv", "HOME", SandboxDir,
		"--",
	)
	return append(args, step.Argv...), nil
}
