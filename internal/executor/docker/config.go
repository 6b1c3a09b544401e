package docker

import (
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit caps the number of processes inside the container.
	PidsLimit int64
	// User is the uid:gid the step runs as. It defaults to the server's own
	// ids so everything a program writes stays removable by the server.
	User string
	// PullTimeout bounds pulling every language image at startup.
	PullTimeout time.Duration
	// SkipPull trusts that the images are already present locally.
	SkipPull bool
	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int
}

// DefaultConfig provides sensible defaults for a sandboxed run. The memory
// limit leaves room for a JVM.
func DefaultConfig() Config {
	return Config{
		// 256 MB memory limit
		MemoryLimit: 256 * 1024 * 1024,
		// Half a CPU
		CPULimit:       0.5,
		PidsLimit:      64,
		User:           hostUser(),
		PullTimeout:    5 * time.Minute,
		MaxOutputBytes: 1 << 20,
	}
}

// hostUser returns the server's uid:gid. A server running as root keeps its
// steps off uid 0 and runs them as nobody instead.
func hostUser() string {
	uid := os.Getuid()
	if uid <= 0 {
		return "nobody"
	}
	return strconv.Itoa(uid) + ":" + strconv.Itoa(os.Getgid())
}
