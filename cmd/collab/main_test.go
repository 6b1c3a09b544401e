package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/collab-playground/internal/executor"
)

func TestReadStdin(t *testing.T) {
	got, err := readStdin(strings.NewReader("ignored"), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = readStdin(strings.NewReader("from pipe"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from pipe", got)

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	got, err = readStdin(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)
}

func TestExitCode(t *testing.T) {
	var err error = exitCode(124)

	var exit exitCode
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, exitCode(124), exit)
	assert.Equal(t, "exit status 124", err.Error())
}

func TestRunRejectsUnknownExtension(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("prog.rb", []byte("puts 1"), 0o644))

	rootCmd.SetArgs([]string{"run", "--backend", "process", "prog.rb"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --language")
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "run", "watch"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestBubblewrapReadOnlyBinds(t *testing.T) {
	b := bubblewrap("/usr/bin/bwrap", "/usr/bin:/bin", []string{"/opt/java"})
	assert.Equal(t, "/usr/bin/bwrap", b.Binary)
	assert.Equal(t, []string{"/opt/java"}, b.ReadOnly)
	assert.Equal(t, "/opt/java/bin:/usr/bin:/bin", b.Path)

	argv, err := b.Wrap(executor.Step{Dir: t.TempDir(), Argv: []string{"java", "Main"}})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(argv, " "), "--ro-bind-try /opt/java /opt/java")
	assert.Contains(t, strings.Join(argv, " "), "--setenv PATH /opt/java/bin:/usr/bin:/bin")
}
