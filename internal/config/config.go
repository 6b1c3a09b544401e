// Package config loads server configuration from defaults, an optional
// collab.yaml, and COLLAB_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type SessionConfig struct {
	DefaultLanguage string        `mapstructure:"default_language"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

type SandboxConfig struct {
	// Backend is docker, bwrap or process.
	Backend   string        `mapstructure:"backend"`
	WorkRoot  string        `mapstructure:"work_root"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MemoryMB  int64         `mapstructure:"memory_mb"`
	CPUs      float64       `mapstructure:"cpus"`
	PidsLimit int64         `mapstructure:"pids_limit"`
	SkipPull  bool          `mapstructure:"skip_pull"`
	BwrapPath string        `mapstructure:"bwrap_path"`
	// BwrapROBinds are extra host directories visible read-only inside
	// bwrap, e.g. a JDK under /opt. Their bin directories join PATH.
	BwrapROBinds []string `mapstructure:"bwrap_ro_binds"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is text, json or pretty.
	Format string `mapstructure:"format"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// New returns a viper instance with every default set and the environment
// bound. Callers may bind flags onto it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("collab")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.collab")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("session.default_language", "java")
	v.SetDefault("session.send_buffer", 64)
	v.SetDefault("session.pong_wait", 60*time.Second)
	v.SetDefault("session.max_message_bytes", 1<<20)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.work_root", filepath.Join(os.TempDir(), "collab-runs"))
	v.SetDefault("sandbox.timeout", 5*time.Second)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.skip_pull", false)
	v.SetDefault("sandbox.bwrap_path", "bwrap")
	v.SetDefault("sandbox.bwrap_ro_binds", []string{})

	v.SetDefault("storage.db_path", "data/collab.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// COLLAB_SANDBOX_TIMEOUT=10s overrides sandbox.timeout.
	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms hand the port over as a bare PORT.
	_ = v.BindEnv("server.port", "COLLAB_SERVER_PORT", "PORT")

	return v
}

// Load reads the optional config file and decodes everything into a Config.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Sandbox.Backend {
	case "docker", "bwrap", "process":
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend %q must be docker, bwrap or process", c.Sandbox.Backend))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("sandbox.timeout must be positive"))
	}
	if c.Sandbox.WorkRoot == "" {
		errs = append(errs, errors.New("sandbox.work_root is required"))
	}
	if c.Session.DefaultLanguage == "" {
		errs = append(errs, errors.New("session.default_language is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text, json or pretty", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case "pretty":
		return slog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}
