package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestResolveLogPathUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "rehearse", "log.jsonl"), path)
}

func TestResolveLogPathFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "rehearse", "log.jsonl"), path)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(Config{Level: "debug"})
	require.NoError(t, err)

	logger := runtime.WithComponent("logging")
	logger.Debug().Msg("unit-test-log")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"message":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)
	require.Contains(t, string(contents), `"service":"rehearse"`)

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(Config{Level: "warn"})
	require.NoError(t, err)

	runtime.Logger.Info().Msg("dropped")
	runtime.Logger.Warn().Msg("kept")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.NotContains(t, string(contents), "dropped")
	require.Contains(t, string(contents), "kept")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	require.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}
