package process

import "time"

// Config holds the configuration for local process execution.
type Config struct {
	// Wrapper, when set, rewrites every step's argv so it runs inside an
	// isolation tool such as bubblewrap. A nil Wrapper runs the argv directly.
	Wrapper Wrapper
	// WaitDelay bounds how long Launch waits for output pipes held open by
	// descendants after the step's process group has been killed.
	WaitDelay time.Duration
	// MaxOutputBytes caps each captured stream. Output past the cap is dropped.
	MaxOutputBytes int
	// Path is the PATH handed to the step.
	Path string
}

// DefaultConfig runs steps directly, with no namespace isolation.
func DefaultConfig() Config {
	return Config{
		WaitDelay:      500 * time.Millisecond,
		MaxOutputBytes: 1 << 20,
		Path:           "/usr/local/bin:/usr/bin:/bin",
	}
}
