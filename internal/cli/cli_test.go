package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	t.Parallel()

	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]string{"--config", "/tmp/rehearse.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/rehearse.jsonc", parsed.ConfigPath)
}

func TestParseArgMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantErr    string
		wantCmd    Command
		wantPath   string
		wantLimit  int
		wantRemote bool
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp},
		{name: "help command", args: []string{"help"}, wantCmd: CommandHelp},
		{name: "serve", args: []string{"serve"}, wantCmd: CommandServe},
		{name: "answer", args: []string{"answer"}, wantCmd: CommandAnswer},
		{name: "stop", args: []string{"stop"}, wantCmd: CommandStop},
		{name: "next", args: []string{"next"}, wantCmd: CommandNext},
		{name: "retry save", args: []string{"retry-save"}, wantCmd: CommandRetrySave},
		{name: "reset", args: []string{"reset"}, wantCmd: CommandReset},
		{name: "version command", args: []string{"version"}, wantCmd: CommandVersion},
		{
			name:      "history defaults",
			args:      []string{"history"},
			wantCmd:   CommandHistory,
			wantLimit: defaultHistoryLimit,
		},
		{
			name:       "history flags",
			args:       []string{"history", "--limit", "3", "--remote"},
			wantCmd:    CommandHistory,
			wantLimit:  3,
			wantRemote: true,
		},
		{
			name:     "config after command",
			args:     []string{"status", "--config", "/tmp/a.jsonc"},
			wantCmd:  CommandStatus,
			wantPath: "/tmp/a.jsonc",
		},
		{name: "missing config value", args: []string{"--config"}, wantErr: "flag needs an argument"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag: --bogus"},
		{name: "unknown command", args: []string{"wat"}, wantErr: "unknown command \"wat\""},
		{name: "extra args", args: []string{"status", "extra"}, wantErr: "unknown command \"extra\""},
		{name: "bad limit", args: []string{"history", "--limit", "many"}, wantErr: "invalid argument"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantLimit, parsed.Limit)
			require.Equal(t, tc.wantRemote, parsed.Remote)
		})
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	root := NewRoot(&stdout, &bytes.Buffer{}, func(context.Context, Parsed) error { return nil })
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())

	help := stdout.String()
	require.Contains(t, help, "Usage:")
	for _, name := range []string{"serve", "answer", "stop", "next", "status", "retry-save", "history", "reset", "devices", "doctor", "version"} {
		require.Contains(t, help, name)
	}
	require.Contains(t, help, "--config")
}

func TestRootVersionFlagPrintsVersion(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	root := NewRoot(&stdout, &bytes.Buffer{}, func(context.Context, Parsed) error {
		t.Fatal("action must not run for --version")
		return nil
	})
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	require.Contains(t, stdout.String(), "rehearse")
}

func TestActionErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	root := NewRoot(&bytes.Buffer{}, &bytes.Buffer{}, func(_ context.Context, p Parsed) error {
		require.Equal(t, CommandNext, p.Command)
		return boom
	})
	root.SetArgs([]string{"next"})
	require.ErrorIs(t, root.Execute(), boom)
}
