package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDir runs the test from dir so only its collab.yaml is visible.
func inDir(t *testing.T, dir string) {
	t.Helper()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
}

func TestLoad_Defaults(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "java", cfg.Session.DefaultLanguage)
	assert.Equal(t, "docker", cfg.Sandbox.Backend)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, int64(256), cfg.Sandbox.MemoryMB)
	assert.Equal(t, "data/collab.db", cfg.Storage.DBPath)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)

	yaml := []byte(`
server:
  port: 9000
  allowed_origins: ["https://collab.example"]
sandbox:
  backend: bwrap
  timeout: 2s
  bwrap_ro_binds: ["/opt/java"]
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collab.yaml"), yaml, 0o644))

	t.Setenv("COLLAB_SANDBOX_TIMEOUT", "750ms")
	t.Setenv("COLLAB_SESSION_DEFAULT_LANGUAGE", "python")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://collab.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "bwrap", cfg.Sandbox.Backend)
	assert.Equal(t, []string{"/opt/java"}, cfg.Sandbox.BwrapROBinds)
	assert.Equal(t, 750*time.Millisecond, cfg.Sandbox.Timeout, "env wins over file")
	assert.Equal(t, "python", cfg.Session.DefaultLanguage)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BarePortEnv(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("PORT", "3000")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoad_ROBindsFromEnv(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("COLLAB_SANDBOX_BWRAP_RO_BINDS", "/opt/java,/opt/pypy")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/java", "/opt/pypy"}, cfg.Sandbox.BwrapROBinds)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collab.yaml"), []byte("server: [port"), 0o644))

	_, err := Load(New())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inDir(t, t.TempDir())

	base, err := Load(New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Sandbox.Backend = "firecracker" }},
		{"zero timeout", func(c *Config) { c.Sandbox.Timeout = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"no work root", func(c *Config) { c.Sandbox.WorkRoot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	LogConfig{Level: "info", Format: "pretty"}.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "hello")
}
